package sefin

import (
	"fisconforme-backend/internal/components/telemetry"
	"fisconforme-backend/internal/credentials"
	"fisconforme-backend/internal/credentials/credtest"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeHost is an httptest server with per route handlers and hit counters,
// routes are keyed by "METHOD /path" or just "/path".
type fakeHost struct {
	*httptest.Server

	mutex  sync.Mutex
	routes map[string]http.HandlerFunc
	hits   map[string]int
}

func newFakeHost(t testing.TB) *fakeHost {
	h := &fakeHost{
		routes: map[string]http.HandlerFunc{},
		hits:   map[string]int{},
	}
	h.Server = httptest.NewServer(http.HandlerFunc(h.serve))
	t.Cleanup(h.Close)
	return h
}

func (h *fakeHost) serve(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path

	h.mutex.Lock()
	h.hits[key]++
	handler, ok := h.routes[key]
	if !ok {
		handler, ok = h.routes[r.URL.Path]
	}
	h.mutex.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	handler(w, r)
}

func (h *fakeHost) handle(route string, handler http.HandlerFunc) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.routes[route] = handler
}

func (h *fakeHost) count(key string) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.hits[key]
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func html(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, http.StatusOK, body)
	}
}

func status(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, code, "<html><body>error</body></html>")
	}
}

func redirect(target string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target, http.StatusFound)
	}
}

type fakeSefin struct {
	det    *fakeHost
	portal *fakeHost
	guide  *fakeHost
}

func newFakeSefin(t testing.TB) fakeSefin {
	return fakeSefin{
		det:    newFakeHost(t),
		portal: newFakeHost(t),
		guide:  newFakeHost(t),
	}
}

func (f fakeSefin) endpoints() Endpoints {
	return Endpoints{
		DetHome:        f.det.URL + "/certificados",
		DetEnter:       f.det.URL + "/entrar",
		PostLoginPath:  "/certificado/acessos",
		RedirectPortal: f.det.URL + "/contribuinte/notificacoes/redirect_portal",
		PortalBase:     f.portal.URL + "/",
		PortalHome:     f.portal.URL + "/app/home/?exibir_modal=true",
		DebtQuery:      f.portal.URL + "/app/consultadebitos/",
		DebtList:       f.portal.URL + "/app/consultadebitos/lista.jsp",
		GuideBase:      f.guide.URL + "/",
	}
}

// loginDET installs the DET pages up to the portal redirect.
func (f fakeSefin) loginDET(redirectPortalBody string) {
	f.det.handle("/certificados", html(`<html><body><form action="/entrar" method="get"></form></body></html>`))
	f.det.handle("/entrar", redirect("/certificado/acessos"))
	f.det.handle("/certificado/acessos", html(`<html><body>acessos</body></html>`))
	f.det.handle("/contribuinte/notificacoes/redirect_portal", html(redirectPortalBody))
}

func (f fakeSefin) loginTokenForm() string {
	return fmt.Sprintf(
		`<html><body><form method="post" action="%s/LoginToken/verify">`+
			`<input type="hidden" name="jwt" value="abc"><input type="hidden" name="empty"></form></body></html>`,
		f.portal.URL,
	)
}

func testIdentity(t testing.TB) *credentials.Identity {
	certPEM, keyPEM := credtest.KeyPair(t, "ACME LTDA")
	identity, err := credentials.EntityCredential{CertificatePEM: certPEM, PrivateKeyPEM: keyPEM}.Identity()
	if err != nil {
		t.Fatal(err)
	}
	return identity
}

func newTestSession(t testing.TB, endpoints Endpoints) *Session {
	session, err := NewSession(testIdentity(t), SessionOptions{
		Endpoints:         endpoints,
		RequestsPerSecond: 1000,
	}, &telemetry.Recorder{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(session.Close)
	return session
}

// authenticatedSession skips the handshake.
func authenticatedSession(t testing.TB, endpoints Endpoints) *Session {
	session := newTestSession(t, endpoints)
	session.state = StatePortalHome
	return session
}

func debtRow(launch, due, revenue, original, updated, guideHref, extractHref string) string {
	cells := []string{
		fmt.Sprintf(`<a href="%s">DARE</a>`, guideHref),
		fmt.Sprintf(`<a href="%s">Extrato</a>`, extractHref),
		launch, "1", "01/2026", "", revenue, "EM ABERTO", due, original, updated,
	}
	if guideHref == "" {
		cells[0] = ""
	}
	if extractHref == "" {
		cells[1] = ""
	}
	return "<tr><td>" + strings.Join(cells, "</td><td>") + "</td></tr>"
}

func debtListPage(rows ...string) string {
	return `<html><body>
	<table><tr><th>Resumo</th></tr><tr><td>nada</td></tr></table>
	<table>
		<tr><th colspan="11">Débitos na Inscrição Estadual: 00000000123</th></tr>
		<tr><th>DARE</th><th>Extrato</th><th>Nº Lançamento</th><th>Parcela</th><th>Referência</th>
		<th>Complemento</th><th>Receita</th><th>Situação</th><th>Vencimento</th><th>Valor</th><th>Valor Atualizado</th></tr>
		` + strings.Join(rows, "\n") + `
	</table></body></html>`
}

func captchaPage(action string) string {
	return `<html><body><form id="adm_processar_form" action="` + action + `" method="post">
	<input type="hidden" name="adm[id]" value="77"><input type="hidden" name="captcha[id]" value="c1">
	<select name="adm[forma]"><option value="a">A</option><option value="b" selected>B</option></select>
	<select name="adm[banco]"><option value="001">BB</option><option value="104">CEF</option></select>
	<img id="captcha-imagem" src="data:image/png;base64,iVBORw0KGgo=">
	<input type="text" name="captcha[resposta]">
	</form></body></html>`
}

const finalGuidePage = `<html><body><div class="copy-cb">83600000001-2</div><img src="/img/logo.png"></body></html>`
