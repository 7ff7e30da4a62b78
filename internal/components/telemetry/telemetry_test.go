package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func TestScopedAPI(t *testing.T) {
	rec := &Recorder{}
	scoped := NewScopedAPI("sefin", rec)
	scoped.ReportBroken("session.authenticate", "boom")
	scoped.ReportCount("batch.entities", 3)

	broken := rec.Find("broken", "session.authenticate")
	require.Len(t, broken, 1)
	require.Equal(t, "sefin: session.authenticate", broken[0].Id)
	require.Equal(t, []any{"boom"}, broken[0].Params)

	counts := rec.Find("count", "batch.entities")
	require.Len(t, counts, 1)
	require.Equal(t, []any{int64(3)}, counts[0].Params)
}

func TestRedaction(t *testing.T) {
	require.Equal(
		t,
		`{"clientKey":"<REDACTED>","task":{"type":"ImageToTextTask"}}`,
		redactBody(`{"clientKey":"secret-key","task":{"type":"ImageToTextTask"}}`),
	)
	redactedUrl := redactURL("https://example.com/rest?apikey=secret&user=eq.abc")
	require.NotContains(t, redactedUrl, "secret")
	require.Contains(t, redactedUrl, "user=eq.abc")
	require.Equal(t, "https://example.com/a?b=c", redactURL("https://example.com/a?b=c"))
	require.Equal(t, "Authorization: <REDACTED>", formatHeaders(http.Header{"Authorization": {"Bearer x"}}))
}

func TestInstrumentResty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "dumps")
	output, err := NewFilesystemOutput(dir)
	require.Nil(t, err)

	rec := &Recorder{}
	client := resty.New()
	InstrumentResty(client, rec, output)

	res, err := client.R().
		SetHeader("Authorization", "Bearer secret").
		SetBody(`{"clientKey":"secret"}`).
		Post(srv.URL + "/x")
	require.Nil(t, err)
	require.Equal(t, "hello", res.String())

	require.Len(t, rec.Find("debug", report_resty_request), 1)
	require.Len(t, rec.Find("debug", report_resty_response), 1)

	dump, err := os.ReadFile(filepath.Join(dir, "1"))
	require.Nil(t, err)
	require.True(t, strings.Contains(string(dump), "---- RESPONSE ----"))
	require.NotContains(t, string(dump), "secret")
}

func TestInstrumentRestyError(t *testing.T) {
	rec := &Recorder{}
	client := resty.New()
	InstrumentResty(client, rec, nil)

	_, err := client.R().Get("http://127.0.0.1:1/unreachable")
	require.NotNil(t, err)
	require.Len(t, rec.Find("broken", report_resty_response), 1)
}

func TestSlogAttrs(t *testing.T) {
	require.Equal(
		t,
		[]any{"id", "sefin: guide", "params.0", "https://x", "err", "boom", "params.2", 3},
		attrs("sefin: guide", []any{"https://x", errors.New("boom"), 3}),
	)
	require.Equal(
		t,
		[]any{"err", "first", "params.1", errors.New("second")},
		attrs("", []any{errors.New("first"), errors.New("second")}),
	)
}
