package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeSink struct {
	mu      sync.Mutex
	samples []Sample
}

func (f *fakeSink) Write(ctx context.Context, s Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, s)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples)
}

func TestReporterWritesOnEachTick(t *testing.T) {
	sink := &fakeSink{}
	r := New(sink, 10*time.Millisecond, func() interface{} { return map[string]int{"a": 1} })

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	r.Run(ctx)

	assert.GreaterOrEqual(t, sink.count(), 2)
}

func TestSizeOfReportsNonZeroForNonEmptyValue(t *testing.T) {
	v := map[string]string{"a": "b", "c": "d"}
	assert.Greater(t, SizeOf(v), uint64(0))
}
