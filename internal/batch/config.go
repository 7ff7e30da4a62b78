package batch

import (
	"fisconforme-backend/internal/components/telemetry"
	"fisconforme-backend/internal/documents"
	"fisconforme-backend/internal/scrapers/sefin"
	"fisconforme-backend/pkg/configutil"
	"time"
)

// Config is the explicit run configuration, zero values mean defaults.
type Config struct {
	FutureHorizonDays        int                 `json:"future_horizon_days"`
	MaxCaptchaAttempts       int                 `json:"max_captcha_attempts"`
	CaptchaNoSolutionBackoff configutil.Duration `json:"captcha_no_solution_backoff"`
	CaptchaRetryBackoff      configutil.Duration `json:"captcha_retry_backoff"`
	RequestTimeout           configutil.Duration `json:"request_timeout"`
	RenderTimeout            configutil.Duration `json:"render_timeout"`
	RequestsPerSecond        float64             `json:"requests_per_second"`
	PriorYears               int                 `json:"prior_years"`
	Endpoints                sefin.Endpoints     `json:"endpoints"`
	DebtLayout               string              `json:"debt_layout"`
}

func (c Config) WithDefaults() Config {
	if c.FutureHorizonDays <= 0 {
		c.FutureHorizonDays = 30
	}
	if c.MaxCaptchaAttempts <= 0 {
		c.MaxCaptchaAttempts = 3
	}
	if c.CaptchaNoSolutionBackoff <= 0 {
		c.CaptchaNoSolutionBackoff = configutil.Duration(1500 * time.Millisecond)
	}
	if c.CaptchaRetryBackoff <= 0 {
		c.CaptchaRetryBackoff = configutil.Duration(1200 * time.Millisecond)
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = configutil.Duration(30 * time.Second)
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = configutil.Duration(60 * time.Second)
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 4
	}
	if c.PriorYears <= 0 {
		c.PriorYears = 1
	}
	if !sefin.ValidLayout(sefin.DebtTableLayout(c.DebtLayout)) {
		c.DebtLayout = string(sefin.LayoutFull)
	}
	c.Endpoints = c.Endpoints.WithDefaults()
	return c
}

func (c Config) Horizon() time.Duration {
	return time.Duration(c.FutureHorizonDays) * 24 * time.Hour
}

func (c Config) PortalOptions(output telemetry.InstrumentOutput) sefin.PortalOptions {
	return sefin.PortalOptions{
		Session: sefin.SessionOptions{
			Endpoints:         c.Endpoints,
			Timeout:           c.RequestTimeout.Std(),
			RequestsPerSecond: c.RequestsPerSecond,
			Output:            output,
		},
		Guide: sefin.GuideOptions{
			MaxAttempts:       c.MaxCaptchaAttempts,
			NoSolutionBackoff: c.CaptchaNoSolutionBackoff.Std(),
			RetryBackoff:      c.CaptchaRetryBackoff.Std(),
		},
		DebtLayout: sefin.DebtTableLayout(c.DebtLayout),
	}
}

func (c Config) PipelineOptions() documents.Options {
	return documents.Options{
		Horizon:    c.Horizon(),
		GuideBase:  c.Endpoints.GuideBase,
		PortalBase: c.Endpoints.PortalBase,
	}
}
