package sefin

import (
	"context"
	"fisconforme-backend/internal/captcha"
	"fisconforme-backend/internal/components/assert"
	"fisconforme-backend/internal/components/telemetry"
	"fisconforme-backend/internal/credentials"
)

const step_extract = "extract"

// Portal bundles an authenticated session with the services that use it.
type Portal struct {
	session    *Session
	debts      DebtService
	compliance ComplianceService
	guides     *GuideIssuer
}

type PortalOptions struct {
	Session    SessionOptions
	Guide      GuideOptions
	DebtLayout DebtTableLayout
}

// Opener authenticates a new Portal per identity.
type Opener struct {
	opts   PortalOptions
	oracle captcha.Oracle
	tel    telemetry.API
}

func NewOpener(opts PortalOptions, oracle captcha.Oracle, tel telemetry.API) Opener {
	assert.NotNil(tel)
	return Opener{opts: opts, oracle: oracle, tel: tel}
}

// Open takes ownership of the identity, it is erased when the returned portal
// is closed or when authentication fails.
func (o Opener) Open(ctx context.Context, identity *credentials.Identity) (*Portal, error) {
	session, err := NewSession(identity, o.opts.Session, o.tel)
	if err != nil {
		identity.Erase()
		return nil, err
	}
	err = session.Authenticate(ctx)
	if err != nil {
		session.Close()
		return nil, err
	}
	return NewPortal(session, o.oracle, o.opts, o.tel), nil
}

func NewPortal(session *Session, oracle captcha.Oracle, opts PortalOptions, tel telemetry.API) *Portal {
	assert.NotNil(session)
	tel = telemetry.NewScopedAPI("sefin_scraper", tel)
	endpoints := session.Endpoints()
	return &Portal{
		session:    session,
		debts:      NewDebtService(session, endpoints, opts.DebtLayout, tel),
		compliance: NewComplianceService(session, endpoints, tel),
		guides:     NewGuideIssuer(session, oracle, endpoints, opts.Guide, tel),
	}
}

func (p *Portal) ComplianceIssues(ctx context.Context) ([]ComplianceIssue, error) {
	return p.compliance.Lookup(ctx, p.session.Home())
}

func (p *Portal) QueryDebts(ctx context.Context, year int) (DebtQueryResult, error) {
	return p.debts.Query(ctx, year)
}

func (p *Portal) IssueGuide(ctx context.Context, guideURL string) (Guide, error) {
	return p.guides.Issue(ctx, guideURL)
}

// FetchExtract returns the extract page, the caller decides what a non-200 means.
func (p *Portal) FetchExtract(ctx context.Context, extractURL string) (Page, error) {
	return p.session.Get(ctx, step_extract, extractURL)
}

func (p *Portal) Close() {
	p.session.Close()
}
