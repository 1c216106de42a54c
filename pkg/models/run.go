package models

import (
	"encoding/json"
	"time"
)

// RunIdentity is the immutable identity of one test run.
// RunID is platform-assigned and the primary correlation key.
type RunIdentity struct {
	RunID         string
	EndpointID    string
	EnvironmentID string
}

// EndpointInfo describes the target API endpoint and its argument schema
type EndpointInfo struct {
	EndpointID     string          `json:"endpoint_id"`
	EndpointPath   string          `json:"endpoint_path"`
	Method         string          `json:"method"`
	ArgumentSchema json.RawMessage `json:"argument_schema,omitempty"`
}

// Schema decodes the endpoint's argument schema. A missing or empty
// schema decodes to a schema with no parameters.
func (e *EndpointInfo) Schema() (ArgumentSchema, error) {
	var schema ArgumentSchema
	if len(e.ArgumentSchema) == 0 {
		return schema, nil
	}
	if err := json.Unmarshal(e.ArgumentSchema, &schema); err != nil {
		return ArgumentSchema{}, err
	}
	return schema, nil
}

// EnvironmentInfo resolves to the target host for the run
type EnvironmentInfo struct {
	EnvID    int    `json:"env_id"`
	EnvCode  string `json:"env_code"`
	EnvName  string `json:"env_name"`
	GPUModel string `json:"gpu_model,omitempty"`
	Host     string `json:"host,omitempty"`
}

// ShapeStep is one step of a staged load curve
type ShapeStep struct {
	Duration  int     `json:"duration" yaml:"duration"`
	Users     int     `json:"users" yaml:"users"`
	SpawnRate float64 `json:"spawn_rate" yaml:"spawn_rate"`
}

// RunDescriptor is the platform's view of a test run, returned by
// GET /api/perf/runs/{id}
type RunDescriptor struct {
	RunID           string            `json:"run_id"`
	EndpointID      string            `json:"endpoint_id,omitempty"`
	Endpoint        *EndpointInfo     `json:"endpoint,omitempty"`
	Environment     *EnvironmentInfo  `json:"environment,omitempty"`
	Users           int               `json:"users,omitempty"`
	SpawnRate       float64           `json:"spawn_rate,omitempty"`
	RunTime         string            `json:"run_time,omitempty"`
	Shape           []ShapeStep       `json:"shape,omitempty"`
	StartTime       *time.Time        `json:"start_time,omitempty"`
	EndTime         *time.Time        `json:"end_time,omitempty"`
	DurationSeconds int               `json:"duration_seconds,omitempty"`
	Status          string            `json:"status"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	Tags            []string          `json:"tags,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	Arguments       map[string]string `json:"arguments,omitempty"`
	CreatedAt       *time.Time        `json:"created_at,omitempty"`
}

// Host returns the target host of the run, empty when unset
func (r *RunDescriptor) Host() string {
	if r.Environment != nil {
		return r.Environment.Host
	}
	return ""
}

// ArgumentParameters returns the parameter specs declared by the
// run's endpoint. Empty when the endpoint carries no schema.
func (r *RunDescriptor) ArgumentParameters() ([]ParameterSpec, error) {
	if r.Endpoint == nil {
		return nil, nil
	}
	schema, err := r.Endpoint.Schema()
	if err != nil {
		return nil, err
	}
	return schema.Parameters, nil
}

// Identity extracts the immutable run identity
func (r *RunDescriptor) Identity() RunIdentity {
	id := RunIdentity{RunID: r.RunID, EndpointID: r.EndpointID}
	if r.Endpoint != nil && id.EndpointID == "" {
		id.EndpointID = r.Endpoint.EndpointID
	}
	if r.Environment != nil {
		id.EnvironmentID = r.Environment.EnvCode
	}
	return id
}

// RunSummary is the aggregate reported to the platform on completion
type RunSummary struct {
	Requests        int64   `json:"requests"`
	Failures        int64   `json:"failures"`
	DurationSeconds int     `json:"duration_seconds"`
	AvgResponseTime float64 `json:"avg_response_time,omitempty"`
	RPS             float64 `json:"rps,omitempty"`
}
