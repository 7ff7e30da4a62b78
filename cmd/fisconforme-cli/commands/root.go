package commands

import (
	"context"
	"fisconforme-backend/internal/batch"
	"fisconforme-backend/internal/captcha"
	"fisconforme-backend/internal/components/chrono"
	"fisconforme-backend/internal/components/telemetry"
	"fisconforme-backend/internal/credentials"
	"fisconforme-backend/internal/documents"
	"fisconforme-backend/internal/scrapers/sefin"
	"fisconforme-backend/pkg/configutil"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type Config struct {
	Timezone string                     `json:"timezone"`
	Database credentials.DatabaseConfig `json:"database"`
	Captcha  captcha.AntiCaptchaConfig  `json:"captcha"`
	Chrome   string                     `json:"chrome"`
	Batch    batch.Config               `json:"batch"`
}

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "fisconforme-cli",
	Short: "fisconforme-cli queries the SEFIN-RO portal and manages entity certificates.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", configutil.PathFromEnv("FISCONFORME_CONFIG", "config.json5"), "The configuration file to read.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging and http dumps.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func readConfig() (Config, error) {
	cfg, err := configutil.ReadConfig[Config](configPath)
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", configPath, err)
	}
	env := configutil.NewEnv("fisconforme")
	cfg.Captcha.ClientKey = env.String("anticaptcha_key", cfg.Captcha.ClientKey)
	cfg.Database.AuthToken = env.String("database_auth_token", cfg.Database.AuthToken)
	return cfg, nil
}

func openStore(ctx context.Context, cfg Config) (credentials.Store, func(), error) {
	database, err := cfg.Database.OpenDB()
	if err != nil {
		return credentials.Store{}, nil, err
	}
	store, err := credentials.NewStore(ctx, database)
	if err != nil {
		database.Close()
		return credentials.Store{}, nil, err
	}
	return store, func() { database.Close() }, nil
}

func newOrchestrator(cfg Config, provider credentials.Provider) (*batch.Orchestrator, chrono.API, error) {
	clock, err := chrono.NewStandardImpl(cfg.Timezone)
	if err != nil {
		return nil, nil, err
	}
	tel := telemetry.SlogAPI{}
	batchConfig := cfg.Batch.WithDefaults()

	var output telemetry.InstrumentOutput
	if verbose {
		dump, err := telemetry.NewFilesystemOutput(".dev/resty/cli")
		if err != nil {
			return nil, nil, err
		}
		output = dump
	}

	// status never renders, dares reports a missing binary per guide
	renderer := documents.NewLazyChromeRenderer(documents.ChromeOptions{
		Binary:  cfg.Chrome,
		Timeout: batchConfig.RenderTimeout.Std(),
	})
	pipeline := documents.NewPipeline(renderer, documents.PdfcpuMerger{}, clock, batchConfig.PipelineOptions(), tel)
	opener := sefin.NewOpener(
		batchConfig.PortalOptions(output),
		captcha.NewOracle(cfg.Captcha, tel, output),
		tel,
	)
	return batch.NewOrchestrator(provider, batch.NewSefinOpener(opener), pipeline, clock, batchConfig, tel), clock, nil
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
