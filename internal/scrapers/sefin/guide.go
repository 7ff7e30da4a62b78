package sefin

import (
	"context"
	"fisconforme-backend/internal/captcha"
	"fisconforme-backend/internal/components/assert"
	"fisconforme-backend/internal/components/telemetry"
	"fmt"
	"time"
)

const (
	report_guide_issue = "guide.issue"
)

const (
	step_guide_open   = "guide-open"
	step_guide_submit = "guide-submit"
)

type GuideOptions struct {
	MaxAttempts       int
	NoSolutionBackoff time.Duration
	RetryBackoff      time.Duration
}

func (o GuideOptions) withDefaults() GuideOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.NoSolutionBackoff <= 0 {
		o.NoSolutionBackoff = 1500 * time.Millisecond
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 1200 * time.Millisecond
	}
	return o
}

// Guide is the final html of a payment guide.
type Guide struct {
	HTML []byte
	URL  string
	// Attempts is the number of GET requests made to the guide url.
	Attempts int
	// Finalized is false when the site answered with a page that is neither a
	// finished guide nor a captcha form, that page is used as is.
	Finalized bool
}

type GuideIssuer struct {
	browser   Browser
	oracle    captcha.Oracle
	endpoints Endpoints
	opts      GuideOptions
	tel       telemetry.API

	sleep func(ctx context.Context, d time.Duration) error
}

func NewGuideIssuer(browser Browser, oracle captcha.Oracle, endpoints Endpoints, opts GuideOptions, tel telemetry.API) *GuideIssuer {
	assert.NotNil(browser)
	assert.NotNil(tel)
	if oracle == nil {
		oracle = captcha.Noop{}
	}
	return &GuideIssuer{
		browser:   browser,
		oracle:    oracle,
		endpoints: endpoints.WithDefaults(),
		opts:      opts.withDefaults(),
		tel:       tel,
		sleep:     sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Issue resolves a guide url into its final html, solving the captcha of the
// processing form when the site asks for one. It gives up with
// ErrCaptchaExhausted after MaxAttempts.
func (g *GuideIssuer) Issue(ctx context.Context, guideURL string) (Guide, error) {
	for attempt := 1; attempt <= g.opts.MaxAttempts; attempt++ {
		page, err := g.browser.Get(ctx, step_guide_open, guideURL)
		if err != nil {
			g.tel.ReportBroken(report_guide_issue, err, guideURL)
			return Guide{}, err
		}
		if !page.OK() {
			err = statusError(step_guide_open, page.StatusCode)
			g.tel.ReportBroken(report_guide_issue, err, guideURL)
			return Guide{}, err
		}
		if page.Contains(finalizationMarker) {
			return Guide{HTML: page.HTML(), URL: page.URL, Attempts: attempt, Finalized: true}, nil
		}

		doc, err := page.Document()
		if err != nil {
			return Guide{}, err
		}
		base := page.URL
		if base == "" {
			base = g.endpoints.GuideBase
		}
		challenge, ok, err := FindGuideChallenge(doc, base)
		if err != nil {
			g.tel.ReportWarning(report_guide_issue, err, guideURL, attempt)
			if err := g.sleep(ctx, g.opts.NoSolutionBackoff); err != nil {
				return Guide{}, err
			}
			continue
		}
		if !ok {
			return Guide{HTML: page.HTML(), URL: page.URL, Attempts: attempt}, nil
		}

		answer, solved := g.oracle.Solve(ctx, challenge.Image)
		if !solved {
			g.tel.ReportDebug("guide.issue: no captcha solution", guideURL, attempt)
			if err := g.sleep(ctx, g.opts.NoSolutionBackoff); err != nil {
				return Guide{}, err
			}
			continue
		}

		fields := make(map[string]string, len(challenge.Fields)+1)
		for k, v := range challenge.Fields {
			fields[k] = v
		}
		fields[captchaAnswerField] = answer

		submitted, err := g.browser.PostForm(ctx, step_guide_submit, challenge.Action, fields)
		if err == nil && submitted.OK() && submitted.Contains(finalizationMarker) {
			return Guide{HTML: submitted.HTML(), URL: submitted.URL, Attempts: attempt, Finalized: true}, nil
		}
		if err != nil {
			g.tel.ReportWarning(report_guide_issue, err, guideURL, attempt)
		}
		if err := g.sleep(ctx, g.opts.RetryBackoff); err != nil {
			return Guide{}, err
		}
	}

	err := fmt.Errorf("%s: %w", guideURL, ErrCaptchaExhausted)
	g.tel.ReportWarning(report_guide_issue, err, g.opts.MaxAttempts)
	return Guide{}, err
}
