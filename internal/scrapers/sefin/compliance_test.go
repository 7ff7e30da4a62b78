package sefin

import (
	"context"
	"errors"
	"fisconforme-backend/internal/components/telemetry"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

const pendencyPage = `<html><body><table>
	<thead><tr><th>Código</th><th>Inscrição</th><th>Razão Social</th><th>Período</th><th>Descrição</th></tr></thead>
	<tbody><tr><td>55</td><td>00000000123</td><td>ACME LTDA</td><td>09/2026</td><td>GIAM não entregue</td></tr></tbody>
</table></body></html>`

func homePage(f fakeSefin, form string) Page {
	return Page{
		StatusCode: http.StatusOK,
		URL:        f.portal.URL + "/app/home/?exibir_modal=true",
		Body:       []byte(`<html><body>` + form + `</body></html>`),
	}
}

func TestComplianceLookup(t *testing.T) {
	f := newFakeSefin(t)
	f.portal.handle("POST /app/fisconforme/entrar", func(w http.ResponseWriter, r *http.Request) {
		require.Nil(t, r.ParseForm())
		require.Equal(t, "tok-1", r.PostForm.Get("token"))
		writeHTML(w, http.StatusOK, pendencyPage)
	})

	endpoints := f.endpoints()
	service := NewComplianceService(authenticatedSession(t, endpoints), endpoints, &telemetry.Recorder{})
	issues, err := service.Lookup(context.Background(), homePage(f,
		`<form action="../fisconforme/entrar" method="post"><input type="hidden" name="token" value="tok-1"></form>`))
	require.Nil(t, err)
	require.Equal(t, []ComplianceIssue{{
		Code:           "55",
		RegistrationID: "00000000123",
		Name:           "ACME LTDA",
		Period:         "09/2026",
		Description:    "GIAM não entregue",
	}}, issues)
}

func TestComplianceLookupLatin1(t *testing.T) {
	latin1, err := charmap.ISO8859_1.NewEncoder().String(pendencyPage)
	require.Nil(t, err)

	f := newFakeSefin(t)
	f.portal.handle("POST /app/fisconforme/entrar", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=ISO-8859-1")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(latin1))
	})

	endpoints := f.endpoints()
	service := NewComplianceService(authenticatedSession(t, endpoints), endpoints, &telemetry.Recorder{})
	issues, err := service.Lookup(context.Background(), homePage(f,
		`<form action="/app/fisconforme/entrar"><input name="token" value="tok-1"></form>`))
	require.Nil(t, err)
	require.Len(t, issues, 1)
	require.Equal(t, "GIAM não entregue", issues[0].Description)
}

func TestComplianceLookupWithoutTable(t *testing.T) {
	f := newFakeSefin(t)
	f.portal.handle("POST /app/fisconforme/entrar", html(`<p>Nenhuma pendência</p>`))

	endpoints := f.endpoints()
	service := NewComplianceService(authenticatedSession(t, endpoints), endpoints, &telemetry.Recorder{})
	issues, err := service.Lookup(context.Background(), homePage(f,
		`<form action="/app/fisconforme/entrar"><input name="token" value="tok-1"></form>`))
	require.Nil(t, err)
	require.NotNil(t, issues)
	require.Empty(t, issues)
}

func TestComplianceLookupFailures(t *testing.T) {
	t.Run("no form", func(t *testing.T) {
		f := newFakeSefin(t)
		endpoints := f.endpoints()
		tel := &telemetry.Recorder{}
		service := NewComplianceService(authenticatedSession(t, endpoints), endpoints, tel)

		_, err := service.Lookup(context.Background(), homePage(f, `<p>bem vindo</p>`))
		var miss *ExtractionMiss
		require.True(t, errors.As(err, &miss))
		require.Equal(t, "compliance form", miss.Target)
		require.Len(t, tel.Find("warning", report_compliance_lookup), 1)
	})

	t.Run("status", func(t *testing.T) {
		f := newFakeSefin(t)
		f.portal.handle("/app/fisconforme/entrar", status(http.StatusInternalServerError))
		endpoints := f.endpoints()
		service := NewComplianceService(authenticatedSession(t, endpoints), endpoints, &telemetry.Recorder{})

		_, err := service.Lookup(context.Background(), homePage(f,
			`<form action="/app/fisconforme/entrar"><input name="token" value="tok-1"></form>`))
		var transportErr *TransportError
		require.True(t, errors.As(err, &transportErr))
		require.Equal(t, http.StatusInternalServerError, transportErr.StatusCode)
	})
}
