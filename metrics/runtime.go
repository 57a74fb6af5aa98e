package metrics

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// RuntimeMetricsSamplingInterval is how often Runtime samples.
var RuntimeMetricsSamplingInterval = 30 * time.Second

// Runtime samples runtime and process stats until ctx is done.
//
//	go metrics.Runtime(ctx)
func Runtime(ctx context.Context) {
	proc, _ := process.NewProcess(int32(os.Getpid()))

	t := time.NewTicker(RuntimeMetricsSamplingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			ReportRuntimeMetrics(proc)
		}
	}
}

// ReportRuntimeMetrics emits one sample. proc may be nil, in which case only
// Go runtime stats are reported.
func ReportRuntimeMetrics(proc *process.Process) {
	var memstats runtime.MemStats
	runtime.ReadMemStats(&memstats)

	r := map[string]float64{
		"runtime.goroutines":     float64(runtime.NumGoroutine()),
		"runtime.heap_alloc":     float64(memstats.HeapAlloc),
		"runtime.heap_sys":       float64(memstats.HeapSys),
		"runtime.heap_idle":      float64(memstats.HeapIdle),
		"runtime.heap_objects":   float64(memstats.HeapObjects),
		"runtime.num_gc":         float64(memstats.NumGC),
		"runtime.pause_total_ms": float64(memstats.PauseTotalNs) / float64(time.Millisecond),
	}

	if proc != nil {
		if pct, err := proc.CPUPercent(); err == nil {
			r["process.cpu_percent"] = pct
		}
		if mem, err := proc.MemoryInfo(); err == nil {
			r["process.rss"] = float64(mem.RSS)
		}
	}

	for name, value := range r {
		Gauge(name, value, nil, 1.0)
	}
}
