// Package generator defines the boundary to the load-generation
// engine. The engine itself is an external collaborator; this package
// only models its event stream and supervision contract.
package generator

import (
	"context"
	"time"
)

// Kind enumerates the event kinds a generator may emit
type Kind string

const (
	// KindRequestCompleted carries successfully completed requests.
	// Count may aggregate an observation interval.
	KindRequestCompleted Kind = "request_completed"
	// KindRequestFailed carries failed requests
	KindRequestFailed Kind = "request_failed"
	// KindUserSpawned reports virtual users added
	KindUserSpawned Kind = "user_spawned"
	// KindUserStopped reports virtual users removed
	KindUserStopped Kind = "user_stopped"
	// KindStatsSnapshot is a periodic aggregate of the whole run
	KindStatsSnapshot Kind = "stats_snapshot"
	// KindQuitting signals the generator is shutting down
	KindQuitting Kind = "quitting"
)

// StatsSnapshot is one periodic aggregate observation
type StatsSnapshot struct {
	UserCount          int
	RPS                float64
	FailRatio          float64
	AvgResponseTime    float64
	MinResponseTime    float64
	MaxResponseTime    float64
	MedianResponseTime float64
	P95ResponseTime    float64
	P99ResponseTime    float64
}

// Event is one observation from the generator. Fields are populated
// per kind; unused fields stay zero.
type Event struct {
	Kind      Kind
	Timestamp time.Time

	// Request events
	RequestType    string
	Name           string
	ResponseTime   float64 // milliseconds
	ResponseLength int64
	Count          int64
	Error          string

	// User events
	UserCount int

	// Stats snapshot
	Stats *StatsSnapshot
}

// Result is the generator's exit outcome
type Result struct {
	ExitCode int
	Summary  AggregateStats
	Duration time.Duration
}

// AggregateStats is the generator's own end-of-run aggregate
type AggregateStats struct {
	Requests           int64
	Failures           int64
	AvgResponseTime    float64
	MinResponseTime    float64
	MaxResponseTime    float64
	MedianResponseTime float64
	P95ResponseTime    float64
	P99ResponseTime    float64
	RPS                float64
}

// FailRatio returns failures as a fraction of all requests
func (a AggregateStats) FailRatio() float64 {
	if a.Requests == 0 {
		return 0
	}
	return float64(a.Failures) / float64(a.Requests)
}

// Runner supervises one generator execution. Events flow on the
// returned channel from the generator's own contexts to a single
// consumer; the channel is closed when the generator exits.
type Runner interface {
	// Run blocks until the generator exits. Events is closed before
	// Run returns.
	Run(ctx context.Context) (*Result, error)
	// Events returns the event stream. Valid before and during Run.
	Events() <-chan Event
	// Stop asks the generator to shut down (operator interrupt)
	Stop()
}
