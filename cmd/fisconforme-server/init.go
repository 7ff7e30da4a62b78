package main

import (
	"context"
	"fisconforme-backend/internal/batch"
	"fisconforme-backend/internal/captcha"
	"fisconforme-backend/internal/components/chrono"
	"fisconforme-backend/internal/components/telemetry"
	"fisconforme-backend/internal/credentials"
	"fisconforme-backend/internal/delivery"
	"fisconforme-backend/internal/documents"
	"fisconforme-backend/internal/scrapers/sefin"
	"fmt"
	"log/slog"
)

type CredentialsConfig struct {
	// Source is "store" (the default) or "supabase".
	Source   string                     `json:"source"`
	Database credentials.DatabaseConfig `json:"database"`
	Supabase credentials.SupabaseConfig `json:"supabase"`
}

func InitCredentials(ctx context.Context, cfg CredentialsConfig, tel telemetry.API) (credentials.Provider, func(), error) {
	switch cfg.Source {
	case "supabase":
		if cfg.Supabase.Url == "" {
			return nil, nil, fmt.Errorf("supabase url is empty")
		}
		return credentials.NewSupabase(cfg.Supabase, tel), func() {}, nil
	case "", "store":
		database, err := cfg.Database.OpenDB()
		if err != nil {
			return nil, nil, err
		}
		store, err := credentials.NewStore(ctx, database)
		if err != nil {
			database.Close()
			return nil, nil, err
		}
		return store, func() { database.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown credential source '%s'", cfg.Source)
	}
}

func InitOrchestrator(
	cfg Config,
	provider credentials.Provider,
	clock chrono.API,
	tel telemetry.API,
	output telemetry.InstrumentOutput,
) (*batch.Orchestrator, error) {
	batchConfig := cfg.Batch.WithDefaults()

	renderer := documents.NewLazyChromeRenderer(documents.ChromeOptions{
		Binary:  cfg.Chrome.Binary,
		Timeout: batchConfig.RenderTimeout.Std(),
	})
	err := renderer.Resolve()
	if err != nil {
		slog.Warn("guides cannot be rendered, /dares will report every guide as failed", "err", err)
	}
	pipeline := documents.NewPipeline(renderer, documents.PdfcpuMerger{}, clock, batchConfig.PipelineOptions(), tel)

	oracle := captcha.NewOracle(cfg.Captcha, tel, output)
	if _, ok := oracle.(captcha.Noop); ok {
		slog.Warn("no anticaptcha key configured, guides behind a captcha will not be issued")
	}
	opener := sefin.NewOpener(batchConfig.PortalOptions(output), oracle, tel)

	return batch.NewOrchestrator(provider, batch.NewSefinOpener(opener), pipeline, clock, batchConfig, tel), nil
}

func InitSinks(ctx context.Context, cfg Config, tel telemetry.API) (delivery.Fanout, error) {
	var sinks delivery.Fanout
	if cfg.ObjectStore != nil {
		store, err := delivery.NewObjectStore(ctx, *cfg.ObjectStore, tel)
		if err != nil {
			return nil, fmt.Errorf("object store: %w", err)
		}
		sinks = append(sinks, store)
	}
	if cfg.Smtp != nil {
		sinks = append(sinks, delivery.NewMailer(*cfg.Smtp, tel))
	}
	return sinks, nil
}

// InitSchedule registers the delivery job, it returns nil when no schedule is
// configured.
func InitSchedule(
	ctx context.Context,
	cfg Config,
	runner delivery.Runner,
	clock chrono.API,
	tel telemetry.API,
	runNow bool,
) (chrono.CronAPI, error) {
	if cfg.Schedule.Cron == "" {
		return nil, nil
	}
	if len(cfg.Schedule.Tenants) == 0 {
		return nil, fmt.Errorf("a schedule needs at least one tenant")
	}
	sinks, err := InitSinks(ctx, cfg, tel)
	if err != nil {
		return nil, err
	}
	if len(sinks) == 0 {
		return nil, fmt.Errorf("a schedule needs an object_store or smtp sink")
	}

	job := delivery.NewJob(runner, sinks, cfg.Schedule.Tenants, clock, tel)
	run := func() {
		err := job.RunOnce(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "scheduled delivery", "err", err)
		}
	}

	cron := chrono.NewStandardCron(clock, tel)
	err = cron.Cron(cfg.Schedule.Cron, run)
	if err != nil {
		cron.Stop()
		return nil, err
	}
	if runNow {
		go run()
	}
	return cron, nil
}
