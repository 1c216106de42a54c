package locust

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/perfx-labs/perfx/pkg/generator"
)

const statsCSV = `Type,Name,Request Count,Failure Count,Median Response Time,Average Response Time,Min Response Time,Max Response Time,Average Content Size,Requests/s,Failures/s,50%,66%,75%,80%,90%,95%,98%,99%,99.9%,99.99%,100%
POST,/infer,100,2,120,130.5,80,900,512,10.2,0.2,120,130,140,150,180,220,400,600,900,900,900
,Aggregated,100,2,120,130.5,80,900,512,10.2,0.2,120,130,140,150,180,220,400,600,900,900,900
`

const historyCSV = `Timestamp,User Count,Type,Name,Requests/s,Failures/s,50%,66%,75%,80%,90%,95%,98%,99%,99.9%,99.99%,100%,Total Request Count,Total Failure Count,Total Median Response Time,Total Average Response Time,Total Min Response Time,Total Max Response Time,Total Average Content Size
1700000000,5,,Aggregated,10.0,0.0,120,130,140,150,180,220,400,600,900,900,900,40,0,120,125.0,80,300,512
1700000002,10,,Aggregated,12.0,0.5,120,130,140,150,180,220,400,600,900,900,900,100,2,120,130.5,80,900,512
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return path
}

func TestReadLastAggregateFromSummary(t *testing.T) {
	path := writeTemp(t, "perfx_stats.csv", statsCSV)

	agg, err := readLastAggregate(path)
	if err != nil {
		t.Fatalf("readLastAggregate() error = %v", err)
	}
	if agg == nil {
		t.Fatal("readLastAggregate() = nil, want aggregate row")
	}
	if agg.Requests != 100 || agg.Failures != 2 {
		t.Errorf("requests/failures = %d/%d, want 100/2", agg.Requests, agg.Failures)
	}
	if agg.AvgRT != 130.5 {
		t.Errorf("avg response time = %v, want 130.5", agg.AvgRT)
	}
	if agg.RPS != 10.2 {
		t.Errorf("rps = %v, want 10.2", agg.RPS)
	}
}

func TestReadLastAggregateFromHistory(t *testing.T) {
	path := writeTemp(t, "perfx_stats_history.csv", historyCSV)

	agg, err := readLastAggregate(path)
	if err != nil {
		t.Fatalf("readLastAggregate() error = %v", err)
	}
	if agg == nil {
		t.Fatal("readLastAggregate() = nil, want aggregate row")
	}
	if agg.UserCount != 10 {
		t.Errorf("user count = %d, want 10 (last row)", agg.UserCount)
	}
	if agg.Requests != 100 || agg.Failures != 2 {
		t.Errorf("requests/failures = %d/%d, want 100/2", agg.Requests, agg.Failures)
	}
}

func TestReadLastAggregateNoAggregateRow(t *testing.T) {
	path := writeTemp(t, "perfx_stats.csv",
		"Type,Name,Request Count\nPOST,/infer,10\n")

	agg, err := readLastAggregate(path)
	if err != nil {
		t.Fatalf("readLastAggregate() error = %v", err)
	}
	if agg != nil {
		t.Errorf("readLastAggregate() = %+v, want nil without aggregate row", agg)
	}
}

func TestDiffEvents(t *testing.T) {
	prev := &aggregateRow{UserCount: 5, Requests: 40, Failures: 0}
	cur := &aggregateRow{UserCount: 10, Requests: 100, Failures: 2, RPS: 12.0, AvgRT: 130.5}

	events := diffEvents(prev, cur)

	kinds := map[generator.Kind]generator.Event{}
	for _, ev := range events {
		kinds[ev.Kind] = ev
	}

	completed, ok := kinds[generator.KindRequestCompleted]
	if !ok {
		t.Fatal("missing request_completed event")
	}
	// 60 new requests of which 2 failed
	if completed.Count != 58 {
		t.Errorf("completed count = %d, want 58", completed.Count)
	}

	failed, ok := kinds[generator.KindRequestFailed]
	if !ok {
		t.Fatal("missing request_failed event")
	}
	if failed.Count != 2 {
		t.Errorf("failed count = %d, want 2", failed.Count)
	}

	spawned, ok := kinds[generator.KindUserSpawned]
	if !ok {
		t.Fatal("missing user_spawned event")
	}
	if spawned.UserCount != 10 {
		t.Errorf("user count = %d, want 10", spawned.UserCount)
	}

	stats, ok := kinds[generator.KindStatsSnapshot]
	if !ok {
		t.Fatal("missing stats_snapshot event")
	}
	if stats.Stats.RPS != 12.0 {
		t.Errorf("rps = %v, want 12.0", stats.Stats.RPS)
	}
	if stats.Stats.FailRatio != 0.02 {
		t.Errorf("fail ratio = %v, want 0.02", stats.Stats.FailRatio)
	}
}

func TestDiffEventsFirstObservation(t *testing.T) {
	cur := &aggregateRow{UserCount: 5, Requests: 40, Failures: 0, RPS: 10.0}

	events := diffEvents(nil, cur)

	var sawCompleted, sawSpawned bool
	for _, ev := range events {
		switch ev.Kind {
		case generator.KindRequestCompleted:
			sawCompleted = true
			if ev.Count != 40 {
				t.Errorf("completed count = %d, want 40", ev.Count)
			}
		case generator.KindUserSpawned:
			sawSpawned = true
		}
	}
	if !sawCompleted || !sawSpawned {
		t.Errorf("first observation should emit completed+spawned, got %+v", events)
	}
}

func TestDiffEventsNoChange(t *testing.T) {
	row := &aggregateRow{UserCount: 5, Requests: 40, Failures: 1}

	events := diffEvents(row, row)

	for _, ev := range events {
		if ev.Kind != generator.KindStatsSnapshot {
			t.Errorf("unexpected event %s for unchanged stats", ev.Kind)
		}
	}
}
