package sefin

import (
	"bytes"
	"context"
	"fisconforme-backend/internal/components/assert"
	"fisconforme-backend/internal/components/telemetry"
	"fisconforme-backend/internal/credentials"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/time/rate"
)

const (
	report_session_authenticate = "session.authenticate"
	report_session_request      = "session.request"
)

const (
	step_det_home        = "det-home"
	step_det_enter       = "det-enter"
	step_redirect_portal = "redirect-portal"
	step_login_token     = "login-token"
	step_script_redirect = "script-redirect"
	step_portal_home     = "portal-home"
)

// allowedRedirectSuffix covers the sefin hosts the identity provider bounces
// through that are not part of Endpoints.
const allowedRedirectSuffix = ".sefin.ro.gov.br"

type State int

const (
	StateInit State = iota
	StateDetHome
	StateEntered
	StatePortalRedirected
	StateLoginTokenResolved
	StatePortalHome
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateDetHome:
		return "det-home"
	case StateEntered:
		return "entered"
	case StatePortalRedirected:
		return "portal-redirected"
	case StateLoginTokenResolved:
		return "login-token-resolved"
	case StatePortalHome:
		return "portal-home"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Page is a fully read response, URL is the final url after redirects. Body
// holds the raw bytes as sent, HTML and Text decode them.
type Page struct {
	StatusCode  int
	URL         string
	ContentType string
	Body        []byte
}

func (p Page) OK() bool {
	return p.StatusCode == http.StatusOK
}

// HTML is the body transcoded to utf-8 following the content type, a meta
// charset or, for undeclared bodies that are not utf-8, windows-1252.
func (p Page) HTML() []byte {
	enc, _, certain := charset.DetermineEncoding(p.Body, p.ContentType)
	if enc == encoding.Nop {
		// only the first kilobyte was sniffed
		if certain || utf8.Valid(p.Body) {
			return p.Body
		}
		enc = charmap.Windows1252
	}
	decoded, err := enc.NewDecoder().Bytes(p.Body)
	if err != nil {
		return p.Body
	}
	return decoded
}

func (p Page) Text() string {
	return string(p.HTML())
}

func (p Page) Contains(marker string) bool {
	return bytes.Contains(p.HTML(), []byte(marker))
}

func (p Page) Document() (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.HTML()))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Browser is the authenticated http capability handed to the later stages.
type Browser interface {
	Get(ctx context.Context, step, target string) (Page, error)
	PostForm(ctx context.Context, step, target string, fields map[string]string) (Page, error)
}

type SessionOptions struct {
	Endpoints         Endpoints
	Timeout           time.Duration
	RequestsPerSecond float64
	Output            telemetry.InstrumentOutput
}

// Session is bound to one client certificate for its whole life. It must be
// closed, which erases the identity.
type Session struct {
	http      *resty.Client
	identity  *credentials.Identity
	endpoints Endpoints
	tel       telemetry.API

	state  State
	home   Page
	closed bool
}

func NewSession(identity *credentials.Identity, opts SessionOptions, tel telemetry.API) (*Session, error) {
	assert.NotNil(identity)
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("sefin_scraper", tel)
	endpoints := opts.Endpoints.WithDefaults()
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 4
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.SetCertificates(identity.Certificate)
	client.SetHeader("user-agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	client.SetHeader("accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	client.SetRedirectPolicy(
		resty.FlexibleRedirectPolicy(10),
		redirectPolicy(endpoints.hostnames()),
	)
	client.SetTimeout(opts.Timeout)

	burst := int(opts.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(client, tel, opts.Output)

	return &Session{
		http:      client,
		identity:  identity,
		endpoints: endpoints,
		tel:       tel,
		state:     StateInit,
	}, nil
}

func redirectPolicy(hostnames []string) resty.RedirectPolicy {
	allowed := map[string]bool{}
	for _, h := range hostnames {
		allowed[h] = true
	}
	return resty.RedirectPolicyFunc(func(req *http.Request, _ []*http.Request) error {
		host := strings.ToLower(req.URL.Hostname())
		if allowed[host] || strings.HasSuffix(host, allowedRedirectSuffix) {
			return nil
		}
		return fmt.Errorf("redirect to %s is not allowed", host)
	})
}

func (s *Session) State() State {
	return s.state
}

func (s *Session) Authenticated() bool {
	return s.state == StatePortalHome && !s.closed
}

// Home is the portal home page reached by Authenticate.
func (s *Session) Home() Page {
	return s.home
}

func (s *Session) Endpoints() Endpoints {
	return s.endpoints
}

func (s *Session) do(ctx context.Context, step, method, target string, fields map[string]string) (Page, error) {
	req := s.http.R().SetContext(ctx)
	if fields != nil {
		req.SetFormData(fields)
	}
	res, err := req.Execute(method, target)
	if err != nil {
		s.tel.ReportWarning(report_session_request, step, err)
		return Page{}, &TransportError{Step: step, Err: err}
	}

	final := target
	if res.RawResponse != nil && res.RawResponse.Request != nil && res.RawResponse.Request.URL != nil {
		final = res.RawResponse.Request.URL.String()
	}
	return Page{
		StatusCode:  res.StatusCode(),
		URL:         final,
		ContentType: res.Header().Get("Content-Type"),
		Body:        res.Body(),
	}, nil
}

// Get requires an authenticated session.
func (s *Session) Get(ctx context.Context, step, target string) (Page, error) {
	assert.True(s.Authenticated(), "sefin session used before authentication")
	return s.do(ctx, step, http.MethodGet, target, nil)
}

// PostForm requires an authenticated session.
func (s *Session) PostForm(ctx context.Context, step, target string, fields map[string]string) (Page, error) {
	assert.True(s.Authenticated(), "sefin session used before authentication")
	return s.do(ctx, step, http.MethodPost, target, fields)
}

func (s *Session) onPortal(page Page) bool {
	u, err := url.Parse(page.URL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, s.endpoints.portalHost())
}

func (s *Session) landedHome(page Page) bool {
	return page.OK() && s.onPortal(page) && !strings.Contains(page.URL, loginTokenMarker)
}

func (s *Session) fail(reason string, err error) error {
	authErr := &AuthenticationError{State: s.state, Reason: reason, Err: err}
	s.state = StateFailed
	s.tel.ReportWarning(report_session_authenticate, authErr)
	return authErr
}

func (s *Session) reachHome(page Page) error {
	s.state = StatePortalHome
	s.home = page
	s.tel.ReportDebug("session.authenticate: reached portal home", page.URL)
	return nil
}

// Authenticate drives the DET to portal handshake. Both redirect shapes of
// the identity provider are accepted: a login-token POST that lands directly
// on the portal, and one that answers with a script redirect.
func (s *Session) Authenticate(ctx context.Context) error {
	assert.True(s.state == StateInit, "sefin session authenticated twice")

	page, err := s.do(ctx, step_det_home, http.MethodGet, s.endpoints.DetHome, nil)
	if err != nil {
		return s.fail("det home", err)
	}
	if !page.OK() {
		return s.fail("det home", statusError(step_det_home, page.StatusCode))
	}
	s.state = StateDetHome

	doc, err := page.Document()
	if err != nil {
		return s.fail("det home", err)
	}
	action, ok := FindEntryForm(doc, s.endpoints.DetHome, s.endpoints.DetEnter)
	if !ok {
		return s.fail("det home", &ExtractionMiss{Target: "login form"})
	}
	page, err = s.do(ctx, step_det_enter, http.MethodGet, action, nil)
	if err != nil {
		return s.fail("enter", err)
	}
	if !page.OK() {
		return s.fail("enter", statusError(step_det_enter, page.StatusCode))
	}
	if !strings.Contains(page.URL, s.endpoints.PostLoginPath) {
		return s.fail(fmt.Sprintf("enter landed on %s instead of the post-login page", page.URL), nil)
	}
	s.state = StateEntered

	page, err = s.do(ctx, step_redirect_portal, http.MethodGet, s.endpoints.RedirectPortal, nil)
	if err != nil {
		return s.fail("portal redirect", err)
	}
	if !page.OK() {
		return s.fail("portal redirect", statusError(step_redirect_portal, page.StatusCode))
	}
	s.state = StatePortalRedirected

	doc, err = page.Document()
	if err != nil {
		return s.fail("portal redirect", err)
	}
	form, ok := FindLoginTokenForm(doc, s.endpoints.portalHost(), s.endpoints.RedirectPortal)
	if ok {
		home, resolved := s.resolveLoginToken(ctx, form)
		if resolved {
			return s.reachHome(home)
		}
	}

	// no login-token form, or it did not lead anywhere: try the portal directly
	page, err = s.do(ctx, step_portal_home, http.MethodGet, s.endpoints.PortalHome, nil)
	if err != nil {
		return s.fail("portal home", err)
	}
	if s.landedHome(page) {
		return s.reachHome(page)
	}
	if !page.OK() {
		return s.fail("portal home", statusError(step_portal_home, page.StatusCode))
	}
	return s.fail(fmt.Sprintf("portal home landed on %s", page.URL), nil)
}

func (s *Session) resolveLoginToken(ctx context.Context, form Form) (Page, bool) {
	page, err := s.do(ctx, step_login_token, http.MethodPost, form.Action, form.Fields)
	if err != nil || !page.OK() {
		return Page{}, false
	}
	s.state = StateLoginTokenResolved

	if !strings.Contains(page.URL, loginTokenMarker) {
		return page, s.onPortal(page)
	}

	target, ok := FindRedirectTarget(page.Text(), s.endpoints.PortalBase)
	if !ok {
		target = s.endpoints.PortalHome
	}
	page, err = s.do(ctx, step_script_redirect, http.MethodGet, target, nil)
	if err != nil {
		return Page{}, false
	}
	return page, s.landedHome(page)
}

// Close erases the identity and drops idle connections, the session cannot be
// used afterwards.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.identity.Erase()
	transport, ok := s.http.GetClient().Transport.(*http.Transport)
	if ok && transport.TLSClientConfig != nil {
		transport.TLSClientConfig.Certificates = nil
	}
	s.http.GetClient().CloseIdleConnections()
}
