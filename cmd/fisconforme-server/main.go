package main

import (
	"fisconforme-backend/internal/api"
	"fisconforme-backend/internal/batch"
	"fisconforme-backend/internal/captcha"
	"fisconforme-backend/internal/components/chrono"
	"fisconforme-backend/internal/components/telemetry"
	"fisconforme-backend/internal/delivery"
	"fisconforme-backend/pkg/configutil"
	"fisconforme-backend/pkg/serviceutil"
	"flag"
	"log/slog"
)

type HttpConfig struct {
	Port        int    `json:"port"`
	AccessToken string `json:"access_token"`
}

type ChromeConfig struct {
	Binary string `json:"binary"`
}

type ScheduleConfig struct {
	// Cron is a standard 5 field expression, empty disables scheduled runs.
	Cron    string   `json:"cron"`
	Tenants []string `json:"tenants"`
}

type Config struct {
	Timezone    string                      `json:"timezone"`
	Http        HttpConfig                  `json:"http"`
	Credentials CredentialsConfig           `json:"credentials"`
	Captcha     captcha.AntiCaptchaConfig   `json:"captcha"`
	Chrome      ChromeConfig                `json:"chrome"`
	Batch       batch.Config                `json:"batch"`
	Schedule    ScheduleConfig              `json:"schedule"`
	ObjectStore *delivery.ObjectStoreConfig `json:"object_store"`
	Smtp        *delivery.SmtpConfig        `json:"smtp"`
}

// applyEnv lets secrets live outside of config.json5.
func applyEnv(cfg *Config) {
	env := configutil.NewEnv("fisconforme")
	cfg.Http.AccessToken = env.String("access_token", cfg.Http.AccessToken)
	cfg.Captcha.ClientKey = env.String("anticaptcha_key", cfg.Captcha.ClientKey)
	cfg.Credentials.Supabase.Url = env.String("supabase_url", cfg.Credentials.Supabase.Url)
	cfg.Credentials.Supabase.Key = env.String("supabase_key", cfg.Credentials.Supabase.Key)
	cfg.Credentials.Database.AuthToken = env.String("database_auth_token", cfg.Credentials.Database.AuthToken)
	if cfg.ObjectStore != nil {
		cfg.ObjectStore.SecretKey = env.String("object_store_secret_key", cfg.ObjectStore.SecretKey)
	}
	if cfg.Smtp != nil {
		cfg.Smtp.Password = env.String("smtp_password", cfg.Smtp.Password)
	}
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	runNow := flag.Bool("run", false, "Trigger the scheduled delivery immediately on start.")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	output := InitTelemetry(ctx, *verbose)
	tel := telemetry.SlogAPI{}

	cfg, err := configutil.ReadConfig[Config](configutil.PathFromEnv("FISCONFORME_CONFIG", "config.json5"))
	if err != nil {
		serviceutil.Fatal("read config", err)
	}
	applyEnv(&cfg)
	if cfg.Http.Port == 0 {
		cfg.Http.Port = 8000
	}

	clock, err := chrono.NewStandardImpl(cfg.Timezone)
	if err != nil {
		serviceutil.Fatal("load timezone", err)
	}

	provider, closeProvider, err := InitCredentials(ctx, cfg.Credentials, tel)
	if err != nil {
		serviceutil.Fatal("init credentials", err)
	}
	defer closeProvider()

	orchestrator, err := InitOrchestrator(cfg, provider, clock, tel, output)
	if err != nil {
		serviceutil.Fatal("init orchestrator", err)
	}

	cron, err := InitSchedule(ctx, cfg, orchestrator, clock, tel, *runNow)
	if err != nil {
		serviceutil.Fatal("init schedule", err)
	}
	if cron != nil {
		defer cron.Stop()
	}

	server := api.NewServer(orchestrator, clock, tel)
	err = serviceutil.StartHttpServer(ctx, cfg.Http.Port, server.Handler(cfg.Http.AccessToken))
	if err != nil {
		serviceutil.Fatal("http server", err)
	}
	slog.Info("shut down")
}
