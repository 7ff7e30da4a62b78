package main

import (
	"context"
	"fisconforme-backend/internal/components/telemetry"
	"log/slog"
)

// InitTelemetry returns the directory output used to dump http exchanges, it
// is nil unless verbose.
func InitTelemetry(ctx context.Context, verbose bool) telemetry.InstrumentOutput {
	telemetry.InitSlog(verbose)

	if verbose {
		slog.DebugContext(ctx, "verbose logging enabled")
	}

	tel, err := telemetry.SetupFromEnv(ctx, "fisconforme-server")
	if err != nil {
		slog.WarnContext(ctx, "telemetry.json5 not loaded, reporting to slog only", "err", err)
	} else {
		go func() {
			<-ctx.Done()
			tel.Shutdown(context.Background())
		}()
	}
	telemetry.InstrumentPerfStats(ctx)

	if !verbose {
		return nil
	}
	output, err := telemetry.NewFilesystemOutput(".dev/resty/sefin")
	if err != nil {
		slog.WarnContext(ctx, "http dumps disabled", "err", err)
		return nil
	}
	return output
}
