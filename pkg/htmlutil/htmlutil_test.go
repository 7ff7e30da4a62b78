package htmlutil

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestFold(t *testing.T) {
	require.Equal(t, "DEBITOS NA INSCRICAO ESTADUAL", Fold("  Débitos na   Inscrição Estadual "))
	require.True(t, ContainsFolded("Código / Descrição", "CODIGO"))
	require.True(t, ContainsFolded("CÓDIGO", "código"))
	require.False(t, ContainsFolded("Periodo", "codigo"))
}

func TestText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<table><tr><td>  R$ <b>1.234,56</b>
		</td></tr></table>`,
	))
	require.Nil(t, err)
	require.Equal(t, "R$ 1.234,56", Text(doc.Find("td")))
}

func TestGetAnchors(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<td><a href="/adm/emitir?id=1"> DARE </a><a name="top">x</a><a href="">vazio</a></td>`,
	))
	require.Nil(t, err)
	require.Equal(t, []Anchor{
		{Name: "DARE", Href: "/adm/emitir?id=1"},
		{Name: "vazio", Href: ""},
	}, GetAnchors(doc.Find("a")))
}

func TestResolveURL(t *testing.T) {
	base := "https://portal.example.com/app/consultadebitos/lista.jsp"
	require.Equal(t, "https://portal.example.com/app/consultadebitos/extrato.jsp?id=1", ResolveURL(base, "extrato.jsp?id=1"))
	require.Equal(t, "https://portal.example.com/root", ResolveURL(base, "/root"))
	require.Equal(t, "https://other.example.com/x", ResolveURL(base, "https://other.example.com/x"))
}

func TestFormFields(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<form><input name="a" value="1"><input name="b"><input value="orphan"></form>`,
	))
	require.Nil(t, err)
	require.Equal(t, map[string]string{"a": "1", "b": ""}, FormFields(doc.Find("form")))
}

func TestAbsolutizeResources(t *testing.T) {
	out, err := AbsolutizeResources(
		`<img src="img/logo.png"><img src="data:image/png;base64,AAAA">`+
			`<a href="#top">top</a><a href="javascript:print()">p</a><a href="/css/a.css">css</a>`+
			`<img src="https://cdn.example.com/x.png">`,
		"https://guide.example.com/adm/",
	)
	require.Nil(t, err)
	require.Contains(t, out, `src="https://guide.example.com/adm/img/logo.png"`)
	require.Contains(t, out, `src="data:image/png;base64,AAAA"`)
	require.Contains(t, out, `href="#top"`)
	require.Contains(t, out, `href="javascript:print()"`)
	require.Contains(t, out, `href="https://guide.example.com/css/a.css"`)
	require.Contains(t, out, `src="https://cdn.example.com/x.png"`)
	require.NotContains(t, out, "<body>")
}

func TestWrapDocument(t *testing.T) {
	body := BodyContents(`<html><head><title>x</title></head><body><p>guide</p></body></html>`)
	require.Equal(t, "<p>guide</p>", body)
	require.Equal(
		t,
		`<!doctype html><html><head><meta charset="utf-8"><base href="https://guide.example.com/"></head><body><p>guide</p></body></html>`,
		WrapDocument(body, "https://guide.example.com/"),
	)
}
