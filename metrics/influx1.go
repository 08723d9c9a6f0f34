package metrics

import (
	"context"

	influxdb1 "github.com/influxdata/influxdb1-client/v2"
)

// InfluxV1Sink writes Samples to a legacy InfluxDB 1.x database, for
// deployments that have not migrated to 2.x. Kept alongside InfluxV2Sink
// rather than replacing it, since both are real ecosystem clients with
// disjoint server-version support.
type InfluxV1Sink struct {
	client   influxdb1.Client
	database string
}

// NewInfluxV1Sink connects to an InfluxDB 1.x server at addr.
func NewInfluxV1Sink(addr, username, password, database string) (*InfluxV1Sink, error) {
	client, err := influxdb1.NewHTTPClient(influxdb1.HTTPConfig{
		Addr:     addr,
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, err
	}
	return &InfluxV1Sink{client: client, database: database}, nil
}

// Write implements Sink.
func (s *InfluxV1Sink) Write(ctx context.Context, sample Sample) error {
	bp, err := influxdb1.NewBatchPoints(influxdb1.BatchPointsConfig{Database: s.database})
	if err != nil {
		return err
	}

	fields := map[string]interface{}{
		"goroutines":        sample.Goroutines,
		"heap_alloc_bytes":  sample.HeapAllocBytes,
		"cpu_percent":       sample.CPUPercent,
		"mem_used_percent":  sample.MemUsedPercent,
		"record_cache_size": sample.RecordCacheSize,
	}
	pt, err := influxdb1.NewPoint("deepstream_client", nil, fields, sample.Timestamp)
	if err != nil {
		return err
	}
	bp.AddPoint(pt)

	return s.client.Write(bp)
}

// Close releases the underlying client.
func (s *InfluxV1Sink) Close() error { return s.client.Close() }
