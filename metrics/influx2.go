package metrics

import (
	"context"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// InfluxV2Sink writes Samples to an InfluxDB 2.x bucket via the official
// client.
type InfluxV2Sink struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
}

// NewInfluxV2Sink connects to an InfluxDB 2.x server at url using token,
// writing into org/bucket.
func NewInfluxV2Sink(url, token, org, bucket string) *InfluxV2Sink {
	client := influxdb2.NewClient(url, token)
	return &InfluxV2Sink{
		client: client,
		write:  client.WriteAPIBlocking(org, bucket),
	}
}

// Write implements Sink.
func (s *InfluxV2Sink) Write(ctx context.Context, sample Sample) error {
	p := influxdb2.NewPoint(
		"deepstream_client",
		map[string]string{},
		map[string]interface{}{
			"goroutines":        sample.Goroutines,
			"heap_alloc_bytes":  sample.HeapAllocBytes,
			"cpu_percent":       sample.CPUPercent,
			"mem_used_percent":  sample.MemUsedPercent,
			"record_cache_size": sample.RecordCacheSize,
		},
		sample.Timestamp,
	)
	return s.write.WritePoint(ctx, p)
}

// Close releases the underlying client.
func (s *InfluxV2Sink) Close() { s.client.Close() }
