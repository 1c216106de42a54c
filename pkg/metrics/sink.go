// Package metrics buffers and batches time-series points so that
// store latency or unavailability never reaches the load generator's
// hot path. Delivery failures cost metric completeness, never the run.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/perfx-labs/perfx/pkg/logging"
	"github.com/perfx-labs/perfx/pkg/retry"
)

var (
	pointsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perfx_sink_points_enqueued_total",
		Help: "Points accepted by the metrics sink",
	})
	pointsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perfx_sink_points_delivered_total",
		Help: "Points acknowledged by the time-series store",
	})
	pointsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perfx_sink_points_dropped_total",
		Help: "Points discarded after the delivery retry budget was exhausted",
	})
	batchesFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perfx_sink_batches_flushed_total",
		Help: "Batches flushed to the time-series store",
	})
)

// Writer delivers a batch of points to the underlying store
type Writer interface {
	WritePoints(ctx context.Context, points []Point) error
	Close() error
}

// SinkConfig tunes batching and delivery
type SinkConfig struct {
	BatchSize     int           // flush when this many points are buffered
	FlushInterval time.Duration // flush at least this often
	BufferSize    int           // channel capacity before enqueue applies backpressure
	Retry         retry.Config  // delivery retry budget
}

// DefaultSinkConfig returns the documented defaults
func DefaultSinkConfig() SinkConfig {
	return SinkConfig{
		BatchSize:     200,
		FlushInterval: 2 * time.Second,
		BufferSize:    4096,
		Retry: retry.Config{
			MaxRetries:     3,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			Multiplier:     2.0,
		},
	}
}

// Sink is the buffered, batched writer. Enqueue is safe for
// concurrent use; a single consumer goroutine owns batching and all
// store I/O, so point order per producer is preserved.
type Sink struct {
	cfg    SinkConfig
	writer Writer
	log    *logging.Logger

	in      chan Point
	flushes chan chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

// NewSink creates and starts a sink draining into writer
func NewSink(writer Writer, cfg SinkConfig, log *logging.Logger) *Sink {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultSinkConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultSinkConfig().FlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultSinkConfig().BufferSize
	}
	s := &Sink{
		cfg:     cfg,
		writer:  writer,
		log:     log,
		in:      make(chan Point, cfg.BufferSize),
		flushes: make(chan chan struct{}),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.consume()
	return s
}

// Enqueue hands a point to the sink. It never blocks beyond the time
// the consumer needs to flush one batch: when the buffer is full the
// pending batch is flushed synchronously to make room rather than
// dropping the point.
func (s *Sink) Enqueue(p Point) {
	select {
	case s.in <- p:
		pointsEnqueued.Inc()
		return
	default:
	}

	// Buffer full: force a flush, then wait for room (backpressure,
	// not loss).
	s.requestFlush(false)
	select {
	case s.in <- p:
		pointsEnqueued.Inc()
	case <-s.done:
	}
}

// Flush forces delivery of all buffered points and returns once the
// store acknowledged them or the retry budget was exhausted. Delivery
// failure is logged, never returned.
func (s *Sink) Flush() {
	s.requestFlush(true)
}

func (s *Sink) requestFlush(wait bool) {
	ack := make(chan struct{})
	select {
	case s.flushes <- ack:
		if wait {
			select {
			case <-ack:
			case <-s.stopped:
			}
		}
	case <-s.stopped:
	}
}

// Close flushes remaining points and stops the consumer
func (s *Sink) Close() error {
	s.Flush()
	close(s.done)
	<-s.stopped
	return s.writer.Close()
}

func (s *Sink) consume() {
	defer close(s.stopped)

	batch := make([]Point, 0, s.cfg.BatchSize)
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.deliver(batch)
		batch = make([]Point, 0, s.cfg.BatchSize)
	}

	for {
		select {
		case p := <-s.in:
			batch = append(batch, p)
			if len(batch) >= s.cfg.BatchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case ack := <-s.flushes:
			// Drain whatever producers already enqueued before flushing
			for drained := false; !drained; {
				select {
				case p := <-s.in:
					batch = append(batch, p)
					if len(batch) >= s.cfg.BatchSize {
						flush()
					}
				default:
					drained = true
				}
			}
			flush()
			close(ack)

		case <-s.done:
			for drained := false; !drained; {
				select {
				case p := <-s.in:
					batch = append(batch, p)
				default:
					drained = true
				}
			}
			flush()
			return
		}
	}
}

// deliver writes one batch with the bounded retry budget. On
// exhaustion the batch is counted dropped and the run goes on.
func (s *Sink) deliver(batch []Point) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := retry.Do(ctx, s.cfg.Retry, func() error {
		return s.writer.WritePoints(ctx, batch)
	})
	if err != nil {
		pointsDropped.Add(float64(len(batch)))
		s.log.Warn("dropping metric batch after retry budget exhausted", map[string]interface{}{
			"points": len(batch),
			"error":  err.Error(),
		})
		return
	}
	pointsDelivered.Add(float64(len(batch)))
	batchesFlushed.Inc()
}
