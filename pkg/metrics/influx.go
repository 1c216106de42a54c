package metrics

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// InfluxConfig holds the InfluxDB v2 connection settings
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Enabled reports whether enough settings are present to connect
func (c InfluxConfig) Enabled() bool {
	return c.URL != "" && c.Token != ""
}

// InfluxWriter delivers batches to an InfluxDB v2 bucket. Batching is
// owned by the Sink; writes here are blocking on purpose.
type InfluxWriter struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInfluxWriter connects to InfluxDB and verifies reachability
func NewInfluxWriter(ctx context.Context, cfg InfluxConfig) (*InfluxWriter, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	ok, err := client.Ping(ctx)
	if err != nil || !ok {
		client.Close()
		return nil, fmt.Errorf("influxdb not reachable at %s: %v", cfg.URL, err)
	}
	return &InfluxWriter{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}, nil
}

// WritePoints writes one batch, returning any store error for the
// sink's retry loop to handle
func (w *InfluxWriter) WritePoints(ctx context.Context, points []Point) error {
	converted := make([]*write.Point, len(points))
	for i, p := range points {
		converted[i] = influxdb2.NewPoint(p.Measurement, p.Tags, p.Fields, p.Timestamp)
	}
	return w.writeAPI.WritePoint(ctx, converted...)
}

// Close releases the underlying client
func (w *InfluxWriter) Close() error {
	w.client.Close()
	return nil
}
