// Package metrics periodically samples process/host resource usage and
// the in-memory size of the record cache, and reports them to an
// InfluxDB-compatible sink. This is ambient operational tooling, not part
// of the wire protocol: a client can run indefinitely with it disabled.
package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/fjl/memsize"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
	"golang.org/x/sync/errgroup"
	_ "go.uber.org/automaxprocs" // sets GOMAXPROCS from the cgroup quota before any sampling starts
)

// Sample is one point-in-time snapshot reported to Sink.
type Sample struct {
	Timestamp       time.Time
	Goroutines      int
	HeapAllocBytes  uint64
	CPUPercent      float64
	MemUsedPercent  float64
	RecordCacheSize uint64
}

// Sink accepts samples for writing to a metrics backend (InfluxDB v1 or
// v2; see metrics/influx1.go and metrics/influx2.go for reference
// implementations).
type Sink interface {
	Write(ctx context.Context, s Sample) error
}

// SizeOf reports the deep memory footprint of v via
// github.com/fjl/memsize, used to size the record cache for Sample's
// RecordCacheSize field.
func SizeOf(v interface{}) uint64 {
	r := memsize.Scan(v)
	return r.Total
}

// Reporter periodically collects a Sample and writes it to Sink.
type Reporter struct {
	sink     Sink
	interval time.Duration
	cacheRef func() interface{}
}

// New constructs a Reporter. cacheRef, if non-nil, is called on every tick
// to obtain the live record cache for sizing via SizeOf.
func New(sink Sink, interval time.Duration, cacheRef func() interface{}) *Reporter {
	return &Reporter{sink: sink, interval: interval, cacheRef: cacheRef}
}

// Run blocks, sampling and writing on every tick until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := r.collect(ctx)
			_ = r.sink.Write(ctx, s)
		}
	}
}

func (r *Reporter) collect(ctx context.Context) Sample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s := Sample{
		Timestamp:      time.Now(),
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: ms.HeapAlloc,
	}

	// CPU and memory sampling each block briefly on their own syscalls;
	// running them concurrently keeps one tick's collect() close to the
	// cost of the slower of the two rather than their sum.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pcts, err := cpu.PercentWithContext(gctx, 0, false)
		if err == nil && len(pcts) > 0 {
			s.CPUPercent = pcts[0]
		}
		return nil
	})
	g.Go(func() error {
		vm, err := mem.VirtualMemoryWithContext(gctx)
		if err == nil {
			s.MemUsedPercent = vm.UsedPercent
		}
		return nil
	})
	_ = g.Wait()

	if r.cacheRef != nil {
		if c := r.cacheRef(); c != nil {
			s.RecordCacheSize = SizeOf(c)
		}
	}
	return s
}
