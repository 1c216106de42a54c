package metrics

import "time"

// Point is a single timestamped, tagged measurement bound for the
// time-series store. Ownership passes to the Sink on enqueue.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]interface{}
	Timestamp   time.Time
}

// NewPoint creates a point stamped with the current time
func NewPoint(measurement string, tags map[string]string, fields map[string]interface{}) Point {
	return Point{
		Measurement: measurement,
		Tags:        tags,
		Fields:      fields,
		Timestamp:   time.Now().UTC(),
	}
}
