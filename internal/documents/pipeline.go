package documents

import (
	"context"
	"fisconforme-backend/internal/components/assert"
	"fisconforme-backend/internal/components/chrono"
	"fisconforme-backend/internal/components/telemetry"
	"fisconforme-backend/internal/scrapers/sefin"
	"fisconforme-backend/pkg/htmlutil"
	"fmt"
	"strings"
	"time"
)

const (
	report_pipeline_guide   = "pipeline.guide"
	report_pipeline_extract = "pipeline.extract"
	report_pipeline_render  = "pipeline.render"
	report_pipeline_merge   = "pipeline.merge"
)

type Options struct {
	// Horizon is how far past today a due date may be and still get a guide.
	Horizon time.Duration
	// GuideBase and PortalBase are the bases relative resources of guides and
	// extracts are resolved against.
	GuideBase  string
	PortalBase string
}

// Failure is a record whose artifact was dropped.
type Failure struct {
	Record sefin.DebtRecord
	Stage  string
	Err    error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s %s (%s): %s", f.Stage, f.Record.LaunchNumber, f.Record.DueDate, f.Err.Error())
}

func (f Failure) Unwrap() error {
	return f.Err
}

type Result struct {
	Artifacts []Artifact
	Failures  []Failure
	// BeyondHorizon counts actionable records skipped for their due date.
	BeyondHorizon int
	// NonActionable counts records without a guide url.
	NonActionable int
}

type Pipeline struct {
	renderer Renderer
	merger   Merger
	clock    chrono.API
	opts     Options
	tel      telemetry.API
}

func NewPipeline(renderer Renderer, merger Merger, clock chrono.API, opts Options, tel telemetry.API) Pipeline {
	assert.NotNil(renderer)
	assert.NotNil(merger)
	assert.NotNil(clock)
	assert.NotNil(tel)

	defaults := sefin.DefaultEndpoints()
	if opts.Horizon <= 0 {
		opts.Horizon = 30 * 24 * time.Hour
	}
	if opts.GuideBase == "" {
		opts.GuideBase = defaults.GuideBase
	}
	if opts.PortalBase == "" {
		opts.PortalBase = defaults.PortalBase
	}
	return Pipeline{
		renderer: renderer,
		merger:   merger,
		clock:    clock,
		opts:     opts,
		tel:      telemetry.NewScopedAPI("documents", tel),
	}
}

// Build produces one artifact per eligible record. Failures are scoped to a
// single record, the returned error is only set when ctx is done.
func (p Pipeline) Build(ctx context.Context, source GuideSource, entityID string, records []sefin.DebtRecord) (Result, error) {
	assert.NotNil(source)

	result := Result{}
	now := p.clock.Now()
	names := map[string]int{}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !rec.Actionable() {
			result.NonActionable++
			continue
		}
		if !Eligible(rec, now, p.opts.Horizon) {
			result.BeyondHorizon++
			p.tel.ReportDebug("pipeline: beyond horizon", rec.LaunchNumber, rec.DueDate)
			continue
		}

		pdf, failure := p.buildRecord(ctx, source, rec)
		if failure != nil {
			result.Failures = append(result.Failures, *failure)
			continue
		}

		name := FileName(rec)
		names[name]++
		if n := names[name]; n > 1 {
			name = fmt.Sprintf("%s_%d.pdf", strings.TrimSuffix(name, ".pdf"), n)
		}
		result.Artifacts = append(result.Artifacts, Artifact{
			EntityID: entityID,
			FileName: name,
			PDF:      pdf,
			Record:   rec,
		})
	}
	return result, nil
}

// prepare absolutizes the body of a fetched page and wraps it in a document
// carrying base.
func prepare(body []byte, base string) string {
	contents := htmlutil.BodyContents(string(body))
	absolute, err := htmlutil.AbsolutizeResources(contents, base)
	if err != nil {
		absolute = contents
	}
	return htmlutil.WrapDocument(absolute, base)
}

func (p Pipeline) buildRecord(ctx context.Context, source GuideSource, rec sefin.DebtRecord) ([]byte, *Failure) {
	guide, err := source.IssueGuide(ctx, rec.GuideURL)
	if err != nil {
		p.tel.ReportWarning(report_pipeline_guide, err, rec.LaunchNumber)
		return nil, &Failure{Record: rec, Stage: "guide", Err: err}
	}
	if !guide.Finalized {
		p.tel.ReportDebug("pipeline: guide page without finalization marker", rec.GuideURL)
	}

	guidePDF, err := p.renderer.Render(ctx, prepare(guide.HTML, p.opts.GuideBase), p.opts.GuideBase)
	if err != nil {
		p.tel.ReportWarning(report_pipeline_render, err, "guide", rec.LaunchNumber)
		return nil, &Failure{Record: rec, Stage: "render", Err: err}
	}

	extractPDF := p.renderExtract(ctx, source, rec)
	if len(extractPDF) == 0 {
		return guidePDF, nil
	}

	merged, err := p.merger.Merge(guidePDF, extractPDF)
	if err != nil {
		p.tel.ReportWarning(report_pipeline_merge, err, rec.LaunchNumber)
		return nil, &Failure{Record: rec, Stage: "merge", Err: err}
	}
	return merged, nil
}

// renderExtract returns nil whenever the extract is missing, unreachable or
// does not render, the guide is then used alone.
func (p Pipeline) renderExtract(ctx context.Context, source GuideSource, rec sefin.DebtRecord) []byte {
	if strings.TrimSpace(rec.ExtractURL) == "" {
		return nil
	}
	page, err := source.FetchExtract(ctx, rec.ExtractURL)
	if err != nil {
		p.tel.ReportWarning(report_pipeline_extract, err, rec.ExtractURL)
		return nil
	}
	if !page.OK() {
		p.tel.ReportDebug("pipeline: extract unavailable", rec.ExtractURL, page.StatusCode)
		return nil
	}
	pdf, err := p.renderer.Render(ctx, prepare(page.HTML(), p.opts.PortalBase), p.opts.PortalBase)
	if err != nil {
		p.tel.ReportWarning(report_pipeline_render, err, "extract", rec.LaunchNumber)
		return nil
	}
	return pdf
}
