package telemetry

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var countGauges sync.Map

func gaugeName(id string) string {
	r := strings.NewReplacer(": ", ".", " ", "_")
	return r.Replace(id)
}

// recordCount mirrors a ReportCount onto an otel gauge, when no meter provider
// was installed the global no-op provider swallows it.
func recordCount(id string, count int64) {
	name := gaugeName(id)
	cached, ok := countGauges.Load(name)
	if !ok {
		gauge, err := otel.Meter("fisconforme").Int64Gauge(name)
		if err != nil {
			return
		}
		cached, _ = countGauges.LoadOrStore(name, gauge)
	}
	cached.(metric.Int64Gauge).Record(context.Background(), count, metric.WithAttributes(
		attribute.String("id", id),
	))
}

// InstrumentPerfStats periodically records process level gauges until ctx is done.
func InstrumentPerfStats(ctx context.Context) {
	meter := otel.Meter("go.perf_stats")
	cpuGauge, _ := meter.Float64Gauge("cpu_usage")
	memoryGauge, _ := meter.Int64Gauge("allocated_mb")
	liveObjectsGauge, _ := meter.Int64Gauge("live_objects")
	goroutineGauge, _ := meter.Int64Gauge("goroutine_count")

	go func() {
		var memStats runtime.MemStats
		ticker := time.NewTicker(time.Second * 30)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				runtime.ReadMemStats(&memStats)

				cpuUsage, err := cpu.Percent(time.Second, false)
				if err == nil && len(cpuUsage) > 0 {
					cpuGauge.Record(ctx, cpuUsage[0])
				} else {
					fmt.Println("failed to read cpu usage", err)
				}

				memoryGauge.Record(ctx, int64(memStats.Alloc/1_000_000))
				liveObjectsGauge.Record(ctx, int64(memStats.Mallocs)-int64(memStats.Frees))
				goroutineGauge.Record(ctx, int64(runtime.NumGoroutine()))
			case <-ctx.Done():
				return
			}
		}
	}()
}
