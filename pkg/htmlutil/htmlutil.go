package htmlutil

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

func collectStrings(node *html.Node, out *[]string) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		trimmed := strings.TrimSpace(node.Data)
		if trimmed != "" {
			*out = append(*out, trimmed)
		}
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectStrings(child, out)
	}
}

// Text returns every non-empty text node under the selection, trimmed and
// joined by a single space.
func Text(sel *goquery.Selection) string {
	var parts []string
	for _, n := range sel.Nodes {
		collectStrings(n, &parts)
	}
	return NormalizeSpace(strings.Join(parts, " "))
}

var innerWhitespace = regexp.MustCompile(`\s+`)

func NormalizeSpace(s string) string {
	return strings.TrimSpace(innerWhitespace.ReplaceAllString(s, " "))
}

var foldTransformer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Fold strips diacritics and upper cases the text so that headings like
// "Código" and "CODIGO" compare equal.
func Fold(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	return strings.ToUpper(NormalizeSpace(folded))
}

// ContainsFolded reports whether needle occurs in haystack ignoring case and accents.
func ContainsFolded(haystack, needle string) bool {
	return strings.Contains(Fold(haystack), Fold(needle))
}

// ResolveURL resolves ref against base, a ref that cannot be parsed is returned untouched.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	baseUrl, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refUrl, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseUrl.ResolveReference(refUrl).String()
}

// FormFields collects every named input of a form, inputs without a value
// attribute map to the empty string.
func FormFields(form *goquery.Selection) map[string]string {
	fields := map[string]string{}
	form.Find("input").Each(func(_ int, input *goquery.Selection) {
		name, ok := input.Attr("name")
		if !ok || name == "" {
			return
		}
		fields[name] = input.AttrOr("value", "")
	})
	return fields
}

func hasPrefix(s string, prefixes ...string) bool {
	lower := strings.ToLower(s)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// AbsolutizeResources rewrites relative src and href attributes of an html
// fragment against base and returns the rewritten body contents.
func AbsolutizeResources(fragment, base string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", fmt.Errorf("parse fragment: %w", err)
	}

	doc.Find("[src]").Each(func(_ int, s *goquery.Selection) {
		src := s.AttrOr("src", "")
		if src == "" || hasPrefix(src, "http://", "https://", "data:") {
			return
		}
		s.SetAttr("src", ResolveURL(base, src))
	})
	doc.Find("[href]").Each(func(_ int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		if href == "" || hasPrefix(href, "http://", "https://", "data:", "javascript:", "#") {
			return
		}
		s.SetAttr("href", ResolveURL(base, href))
	})

	return doc.Find("body").Html()
}

// BodyContents returns the inner html of the document body, or the input
// itself when the body is empty.
func BodyContents(document string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return document
	}
	body, err := doc.Find("body").Html()
	if err != nil || strings.TrimSpace(body) == "" {
		return document
	}
	return body
}

// WrapDocument wraps body contents in a standalone utf-8 document carrying a
// <base> element so relative references keep resolving against base.
func WrapDocument(body, base string) string {
	return fmt.Sprintf(
		`<!doctype html><html><head><meta charset="utf-8"><base href="%s"></head><body>%s</body></html>`,
		html.EscapeString(base),
		body,
	)
}

type Anchor struct {
	Name string
	Href string
}

// GetAnchors lists the text and href of every anchor in the selection.
func GetAnchors(sel *goquery.Selection) []Anchor {
	anchors := []Anchor{}
	sel.Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		anchors = append(anchors, Anchor{
			Name: Text(a),
			Href: href,
		})
	})
	return anchors
}
