package batch

import (
	"context"
	"fisconforme-backend/internal/archive"
	"fisconforme-backend/internal/components/assert"
	"fisconforme-backend/internal/components/chrono"
	"fisconforme-backend/internal/components/telemetry"
	"fisconforme-backend/internal/credentials"
	"fisconforme-backend/internal/documents"
	"fisconforme-backend/internal/scrapers/sefin"
	"fmt"
	"strings"
	"time"

	"github.com/mazen160/go-random"
)

const (
	report_batch_entity   = "batch.entity"
	report_batch_provider = "batch.provider"
)

// Portal is an authenticated portal session of one entity.
type Portal interface {
	documents.GuideSource
	ComplianceIssues(ctx context.Context) ([]sefin.ComplianceIssue, error)
	QueryDebts(ctx context.Context, year int) (sefin.DebtQueryResult, error)
	Close()
}

// Opener authenticates a portal for an identity, it owns the identity from
// then on.
type Opener interface {
	Open(ctx context.Context, identity *credentials.Identity) (Portal, error)
}

type sefinOpener struct {
	opener sefin.Opener
}

func (o sefinOpener) Open(ctx context.Context, identity *credentials.Identity) (Portal, error) {
	portal, err := o.opener.Open(ctx, identity)
	if err != nil {
		return nil, err
	}
	return portal, nil
}

func NewSefinOpener(opener sefin.Opener) Opener {
	return sefinOpener{opener: opener}
}

// Builder turns debt records into artifacts, documents.Pipeline is the
// production implementation.
type Builder interface {
	Build(ctx context.Context, source documents.GuideSource, entityID string, records []sefin.DebtRecord) (documents.Result, error)
}

type EntityResult struct {
	EntityID  string
	LegalName string
	Code      string

	Artifacts     []documents.Artifact
	Records       []sefin.DebtRecord
	Errors        []string
	BeyondHorizon int
	NonActionable int
	// Failed is set when nothing could be gathered for the entity.
	Failed bool
}

// Run is the aggregate of one batch over a tenant.
type Run struct {
	ID         string
	Tenant     string
	StartedAt  time.Time
	FinishedAt time.Time
	Entities   []EntityResult
}

type Summary struct {
	Entities  int `json:"entities"`
	Failed    int `json:"failed"`
	Artifacts int `json:"artifacts"`
}

func (r Run) Summary() Summary {
	s := Summary{Entities: len(r.Entities)}
	for _, e := range r.Entities {
		if e.Failed {
			s.Failed++
		}
		s.Artifacts += len(e.Artifacts)
	}
	return s
}

// Bundle converts the run for archive assembly.
func (r Run) Bundle() archive.Bundle {
	summary := r.Summary()
	bundle := archive.Bundle{
		RunID:       r.ID,
		Tenant:      r.Tenant,
		GeneratedAt: r.FinishedAt,
		Entities:    summary.Entities,
		Failed:      summary.Failed,
	}
	for _, e := range r.Entities {
		bundle.Entries = append(bundle.Entries, archive.Entry{
			EntityID:  e.EntityID,
			Code:      e.Code,
			LegalName: e.LegalName,
			Artifacts: e.Artifacts,
			Errors:    e.Errors,
		})
	}
	return bundle
}

type Orchestrator struct {
	provider credentials.Provider
	opener   Opener
	pipeline Builder
	clock    chrono.API
	config   Config
	tel      telemetry.API
}

func NewOrchestrator(
	provider credentials.Provider,
	opener Opener,
	pipeline Builder,
	clock chrono.API,
	config Config,
	tel telemetry.API,
) *Orchestrator {
	assert.NotNil(provider)
	assert.NotNil(opener)
	assert.NotNil(pipeline)
	assert.NotNil(clock)
	assert.NotNil(tel)

	return &Orchestrator{
		provider: provider,
		opener:   opener,
		pipeline: pipeline,
		clock:    clock,
		config:   config.WithDefaults(),
		tel:      telemetry.NewScopedAPI("batch", tel),
	}
}

func newRunID() string {
	id, err := random.String(12)
	if err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return strings.ToLower(id)
}

// years is the current year first, then the configured prior years.
func (o *Orchestrator) years() []int {
	current := o.clock.Now().Year()
	out := []int{current}
	for i := 1; i <= o.config.PriorYears; i++ {
		out = append(out, current-i)
	}
	return out
}

// open decodes the entity identity and authenticates a portal. The identity
// is always erased before open returns with an error.
func (o *Orchestrator) open(ctx context.Context, cred credentials.EntityCredential) (Portal, error) {
	identity, err := cred.Identity()
	if err != nil {
		return nil, err
	}
	portal, err := o.opener.Open(ctx, identity)
	if err != nil {
		identity.Erase()
		return nil, err
	}
	return portal, nil
}

// Run processes every entity of the tenant in credential order. Only a
// failing credential lookup is returned as an error, everything else is
// recorded on the entity it happened to.
func (o *Orchestrator) Run(ctx context.Context, tenant string) (Run, error) {
	run := Run{
		ID:        newRunID(),
		Tenant:    tenant,
		StartedAt: o.clock.Now(),
	}

	creds, err := o.provider.Lookup(ctx, tenant)
	if err != nil {
		o.tel.ReportBroken(report_batch_provider, err, tenant)
		return run, fmt.Errorf("lookup credentials: %w", err)
	}

	for _, cred := range creds {
		result := o.runEntity(ctx, cred)
		run.Entities = append(run.Entities, result)
	}
	run.FinishedAt = o.clock.Now()

	summary := run.Summary()
	o.tel.ReportCount("batch.entities", int64(summary.Entities))
	o.tel.ReportCount("batch.failed", int64(summary.Failed))
	o.tel.ReportCount("batch.artifacts", int64(summary.Artifacts))
	o.tel.ReportDebug("batch.run: done", run.ID, tenant, summary.Entities, summary.Failed, summary.Artifacts)
	return run, nil
}

func (o *Orchestrator) runEntity(ctx context.Context, cred credentials.EntityCredential) EntityResult {
	result := EntityResult{
		EntityID:  cred.EntityID,
		LegalName: cred.DisplayName(),
		Code:      cred.Code,
	}
	fail := func(err error) EntityResult {
		o.tel.ReportWarning(report_batch_entity, err, cred.EntityID)
		result.Failed = true
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	portal, err := o.open(ctx, cred)
	if err != nil {
		return fail(err)
	}
	defer portal.Close()

	queried := 0
	for _, year := range o.years() {
		debts, err := portal.QueryDebts(ctx, year)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("debts %d: %s", year, err.Error()))
			continue
		}
		for _, regErr := range debts.Errors {
			result.Errors = append(result.Errors, fmt.Sprintf("debts %d: %s", year, regErr.Error()))
		}
		if debts.Failed() {
			continue
		}
		queried++
		result.Records = append(result.Records, debts.Records...)
	}
	if queried == 0 {
		return fail(fmt.Errorf("debt query failed for every year"))
	}

	built, err := o.pipeline.Build(ctx, portal, cred.EntityID, result.Records)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	result.Artifacts = built.Artifacts
	result.BeyondHorizon = built.BeyondHorizon
	result.NonActionable = built.NonActionable
	for _, failure := range built.Failures {
		result.Errors = append(result.Errors, failure.Error())
	}
	return result
}
