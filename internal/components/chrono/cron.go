package chrono

import (
	"fisconforme-backend/internal/components/telemetry"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// CronAPI schedules callbacks on standard 5 field expressions.
type CronAPI interface {
	Cron(spec string, callback func()) error
	Stop()
}

// StandardCron runs callbacks in the clock location with `github.com/robfig/cron/v3`.
// A callback still running when its next tick arrives is skipped for that
// tick, a panicking callback is reported and does not stop the scheduler.
type StandardCron struct {
	cron  *cron.Cron
	clock API
	tel   telemetry.API
}

func NewStandardCron(clock API, tel telemetry.API) StandardCron {
	logger := cronLogger{tel: tel}
	cronner := cron.New(
		cron.WithLogger(logger),
		cron.WithLocation(clock.Location()),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	cronner.Start()

	return StandardCron{
		cron:  cronner,
		clock: clock,
		tel:   tel,
	}
}

func (s StandardCron) Cron(spec string, callback func()) error {
	_, err := s.cron.AddFunc(spec, callback)
	if err != nil {
		return fmt.Errorf("schedule '%s': %w", spec, err)
	}
	next, err := NextRun(spec, s.clock.Now())
	if err == nil {
		s.tel.ReportDebug("cron: scheduled", spec, next.Format(time.RFC3339))
	}
	return nil
}

// Stop halts the scheduler, jobs already running are left to finish.
func (s StandardCron) Stop() {
	s.cron.Stop()
}

// NextRun is the first activation of spec strictly after from, in the
// location of from.
func NextRun(spec string, from time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from), nil
}

type cronLogger struct {
	tel telemetry.API
}

func (l cronLogger) formatParams(keysAndValues []any) []any {
	params := make([]any, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		params = append(params, fmt.Sprintf("%v: %v", keysAndValues[i], keysAndValues[i+1]))
	}
	return params
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.tel.ReportDebug("cron: "+msg, l.formatParams(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	params := append([]any{fmt.Errorf("%s: %w", msg, err)}, l.formatParams(keysAndValues)...)
	l.tel.ReportBroken("cron", params...)
}
