package telemetry

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// SlogAPI implements API using the log/slog package.
type SlogAPI struct{}

// attrs turns report params into slog pairs. The first error is keyed "err",
// everything else is keyed by position.
func attrs(id string, params []any) []any {
	out := make([]any, 0, 2+2*len(params))
	if id != "" {
		out = append(out, "id", id)
	}
	keyedErr := false
	for i, p := range params {
		if err, ok := p.(error); ok && !keyedErr {
			out = append(out, "err", err.Error())
			keyedErr = true
			continue
		}
		out = append(out, fmt.Sprintf("params.%d", i), p)
	}
	return out
}

func (SlogAPI) ReportBroken(id string, params ...any) {
	slog.Error("broken component", attrs(id, params)...)
}

func (SlogAPI) ReportWarning(id string, params ...any) {
	slog.Warn("warning", attrs(id, params)...)
}

func (SlogAPI) ReportDebug(message string, params ...any) {
	slog.Debug(message, attrs("", params)...)
}

func (SlogAPI) ReportCount(id string, count int64) {
	slog.Info("count", "id", id, "n", count)
	recordCount(id, count)
}

// InitSlog installs the default slog handler on stderr, at debug level when
// verbose. LOG_FORMAT=json switches to the json handler.
func InitSlog(verbose bool) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
