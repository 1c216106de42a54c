package locust

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/perfx-labs/perfx/pkg/generator"
)

// aggregateRow is the parsed "Aggregated" line of a locust stats CSV
type aggregateRow struct {
	UserCount       int
	Requests        int64
	Failures        int64
	RPS             float64
	FailuresPerSec  float64
	MedianRT        float64
	AvgRT           float64
	MinRT           float64
	MaxRT           float64
	P95             float64
	P99             float64
	AvgContentBytes float64
}

// headerIndex maps column names to positions so parsing survives
// column reordering between locust versions
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	return idx
}

func field(record []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}

func parseFloatField(record []string, idx map[string]int, name string) float64 {
	v, _ := strconv.ParseFloat(field(record, idx, name), 64)
	return v
}

func parseIntField(record []string, idx map[string]int, name string) int64 {
	v, _ := strconv.ParseInt(field(record, idx, name), 10, 64)
	return v
}

func parseAggregateRecord(record []string, idx map[string]int) aggregateRow {
	return aggregateRow{
		UserCount:       int(parseIntField(record, idx, "User Count")),
		Requests:        firstInt(record, idx, "Total Request Count", "Request Count"),
		Failures:        firstInt(record, idx, "Total Failure Count", "Failure Count"),
		RPS:             parseFloatField(record, idx, "Requests/s"),
		FailuresPerSec:  parseFloatField(record, idx, "Failures/s"),
		MedianRT:        firstFloat(record, idx, "Total Median Response Time", "Median Response Time"),
		AvgRT:           firstFloat(record, idx, "Total Average Response Time", "Average Response Time"),
		MinRT:           firstFloat(record, idx, "Total Min Response Time", "Min Response Time"),
		MaxRT:           firstFloat(record, idx, "Total Max Response Time", "Max Response Time"),
		P95:             parseFloatField(record, idx, "95%"),
		P99:             parseFloatField(record, idx, "99%"),
		AvgContentBytes: firstFloat(record, idx, "Total Average Content Size", "Average Content Size"),
	}
}

func firstInt(record []string, idx map[string]int, names ...string) int64 {
	for _, name := range names {
		if _, ok := idx[name]; ok {
			return parseIntField(record, idx, name)
		}
	}
	return 0
}

func firstFloat(record []string, idx map[string]int, names ...string) float64 {
	for _, name := range names {
		if _, ok := idx[name]; ok {
			return parseFloatField(record, idx, name)
		}
	}
	return 0
}

// isAggregate detects the locust total row. Older versions label it
// "Total", newer ones "Aggregated", and some leave column 0 empty
// with the name in column 1.
func isAggregate(record []string, idx map[string]int) bool {
	name := field(record, idx, "Name")
	if name == "" && len(record) > 1 {
		name = record[1]
	}
	return name == "Aggregated" || name == "Total"
}

// readLastAggregate reads the last aggregate row of a stats CSV
// (final summary or history). Returns io.EOF-free nil when the file
// has no aggregate row yet.
func readLastAggregate(path string) (*aggregateRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	idx := headerIndex(header)

	var last *aggregateRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Locust may be mid-write on the final line; keep what we have
			break
		}
		if isAggregate(record, idx) {
			row := parseAggregateRecord(record, idx)
			last = &row
		}
	}
	return last, nil
}

// diffEvents converts the change between two aggregate observations
// into generator events: interval request/failure deltas, user-count
// changes and a stats snapshot.
func diffEvents(prev, cur *aggregateRow) []generator.Event {
	var events []generator.Event

	var prevRequests, prevFailures int64
	prevUsers := 0
	if prev != nil {
		prevRequests = prev.Requests
		prevFailures = prev.Failures
		prevUsers = prev.UserCount
	}

	reqDelta := cur.Requests - prevRequests
	failDelta := cur.Failures - prevFailures
	if reqDelta < 0 || failDelta < 0 {
		// CSV restarted; treat the current totals as a fresh interval
		reqDelta = cur.Requests
		failDelta = cur.Failures
	}

	if successDelta := reqDelta - failDelta; successDelta > 0 {
		events = append(events, generator.Event{
			Kind:         generator.KindRequestCompleted,
			Count:        successDelta,
			ResponseTime: cur.AvgRT,
		})
	}
	if failDelta > 0 {
		events = append(events, generator.Event{
			Kind:  generator.KindRequestFailed,
			Count: failDelta,
		})
	}

	if cur.UserCount > prevUsers {
		events = append(events, generator.Event{Kind: generator.KindUserSpawned, UserCount: cur.UserCount})
	} else if cur.UserCount < prevUsers {
		events = append(events, generator.Event{Kind: generator.KindUserStopped, UserCount: cur.UserCount})
	}

	failRatio := 0.0
	if cur.Requests > 0 {
		failRatio = float64(cur.Failures) / float64(cur.Requests)
	}
	events = append(events, generator.Event{
		Kind: generator.KindStatsSnapshot,
		Stats: &generator.StatsSnapshot{
			UserCount:          cur.UserCount,
			RPS:                cur.RPS,
			FailRatio:          failRatio,
			AvgResponseTime:    cur.AvgRT,
			MinResponseTime:    cur.MinRT,
			MaxResponseTime:    cur.MaxRT,
			MedianResponseTime: cur.MedianRT,
			P95ResponseTime:    cur.P95,
			P99ResponseTime:    cur.P99,
		},
	})

	return events
}
