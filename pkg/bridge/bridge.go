// Package bridge maps generator events to time-series points. It
// performs no I/O itself; everything is delegated to the metrics sink
// so a slow store can never stall the generator's event loop.
package bridge

import (
	"sync/atomic"

	"github.com/perfx-labs/perfx/pkg/generator"
	"github.com/perfx-labs/perfx/pkg/logging"
	"github.com/perfx-labs/perfx/pkg/metrics"
)

const maxErrorLen = 500

// Sink is the subset of the metrics sink the bridge needs
type Sink interface {
	Enqueue(metrics.Point)
}

// Bridge consumes the generator event stream, tags each point with
// the run identity and feeds the sink. One consumer goroutine owns
// the channel; counters are atomic because Summary may be read from
// the orchestrator while events still flow.
type Bridge struct {
	sink     Sink
	baseTags map[string]string
	log      *logging.Logger

	requests int64
	failures int64
	done     chan struct{}
}

// New creates a bridge. baseTags must include run_id; the bridge
// copies it for every point.
func New(sink Sink, baseTags map[string]string, log *logging.Logger) *Bridge {
	return &Bridge{
		sink:     sink,
		baseTags: baseTags,
		log:      log,
		done:     make(chan struct{}),
	}
}

// Consume drains events until the channel closes. Call in its own
// goroutine; Wait blocks until consumption finished.
func (b *Bridge) Consume(events <-chan generator.Event) {
	defer close(b.done)
	for ev := range events {
		b.onEvent(ev)
	}
}

// Wait blocks until the event stream has been fully consumed
func (b *Bridge) Wait() {
	<-b.done
}

// Requests returns the number of completed requests observed so far
func (b *Bridge) Requests() int64 {
	return atomic.LoadInt64(&b.requests)
}

// Failures returns the number of failed requests observed so far
func (b *Bridge) Failures() int64 {
	return atomic.LoadInt64(&b.failures)
}

// onEvent maps one event kind to exactly one point shape. Unknown
// kinds are logged and dropped, never fatal.
func (b *Bridge) onEvent(ev generator.Event) {
	switch ev.Kind {
	case generator.KindRequestCompleted:
		atomic.AddInt64(&b.requests, ev.Count)
		tags := b.tags(map[string]string{
			"request_type": ev.RequestType,
			"name":         ev.Name,
			"success":      "true",
		})
		b.enqueue("locust_request", tags, map[string]interface{}{
			"response_time":   ev.ResponseTime,
			"response_length": ev.ResponseLength,
			"success_count":   ev.Count,
			"failure_count":   int64(0),
		}, ev)

	case generator.KindRequestFailed:
		atomic.AddInt64(&b.failures, ev.Count)
		fields := map[string]interface{}{
			"response_time":   ev.ResponseTime,
			"response_length": ev.ResponseLength,
			"success_count":   int64(0),
			"failure_count":   ev.Count,
		}
		if ev.Error != "" {
			fields["exception"] = truncate(ev.Error, maxErrorLen)
		}
		tags := b.tags(map[string]string{
			"request_type": ev.RequestType,
			"name":         ev.Name,
			"success":      "false",
		})
		b.enqueue("locust_request", tags, fields, ev)

	case generator.KindUserSpawned, generator.KindUserStopped:
		b.enqueue("locust_users", b.tags(map[string]string{
			"change": string(ev.Kind),
		}), map[string]interface{}{
			"user_count": ev.UserCount,
		}, ev)

	case generator.KindStatsSnapshot:
		if ev.Stats == nil {
			b.log.Warn("stats snapshot event without stats payload")
			return
		}
		b.enqueue("locust_stats", b.tags(nil), map[string]interface{}{
			"user_count":           ev.Stats.UserCount,
			"rps":                  ev.Stats.RPS,
			"fail_ratio":           ev.Stats.FailRatio,
			"avg_response_time":    ev.Stats.AvgResponseTime,
			"min_response_time":    ev.Stats.MinResponseTime,
			"max_response_time":    ev.Stats.MaxResponseTime,
			"median_response_time": ev.Stats.MedianResponseTime,
			"p95_response_time":    ev.Stats.P95ResponseTime,
			"p99_response_time":    ev.Stats.P99ResponseTime,
		}, ev)

	case generator.KindQuitting:
		b.enqueue("locust_event", b.tags(map[string]string{
			"event_type": "stop",
		}), map[string]interface{}{
			"value": int64(1),
		}, ev)

	default:
		b.log.Warn("dropping unrecognized generator event", map[string]interface{}{
			"kind": string(ev.Kind),
		})
	}
}

// EmitLifecycle writes a run lifecycle marker point (start, complete,
// fail). Called by the orchestrator, not from the event stream.
func (b *Bridge) EmitLifecycle(eventType, message string) {
	fields := map[string]interface{}{"value": int64(1)}
	if message != "" {
		fields["message"] = truncate(message, maxErrorLen)
	}
	b.sink.Enqueue(metrics.NewPoint("locust_event", b.tags(map[string]string{
		"event_type": eventType,
	}), fields))
}

func (b *Bridge) enqueue(measurement string, tags map[string]string, fields map[string]interface{}, ev generator.Event) {
	p := metrics.Point{
		Measurement: measurement,
		Tags:        tags,
		Fields:      fields,
		Timestamp:   ev.Timestamp,
	}
	if p.Timestamp.IsZero() {
		p = metrics.NewPoint(measurement, tags, fields)
	}
	b.sink.Enqueue(p)
}

// tags merges the base run-identity tags with event tags
func (b *Bridge) tags(extra map[string]string) map[string]string {
	merged := make(map[string]string, len(b.baseTags)+len(extra))
	for k, v := range b.baseTags {
		merged[k] = v
	}
	for k, v := range extra {
		if v != "" {
			merged[k] = v
		}
	}
	return merged
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
