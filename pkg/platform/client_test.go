package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/perfx-labs/perfx/pkg/models"
	"github.com/perfx-labs/perfx/pkg/retry"
)

func fastRetry() retry.Config {
	return retry.Config{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(srv.URL, WithRetryConfig(fastRetry()), WithTimeout(2*time.Second))
}

func writeEnvelope(w http.ResponseWriter, code int, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    code,
		"data":    data,
		"message": message,
	})
}

func TestFetchRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/perf/runs/run-123" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeEnvelope(w, 0, map[string]interface{}{
			"run_id": "run-123",
			"status": "pending",
			"users":  10,
			"environment": map[string]interface{}{
				"env_id":   1,
				"env_code": "staging",
				"env_name": "Staging",
				"host":     "https://staging.example.com",
			},
		}, "")
	}))
	defer srv.Close()

	run, err := newTestClient(srv).FetchRun(context.Background(), "run-123")
	if err != nil {
		t.Fatalf("FetchRun() error = %v", err)
	}
	if run.RunID != "run-123" {
		t.Errorf("RunID = %q, want run-123", run.RunID)
	}
	if run.Host() != "https://staging.example.com" {
		t.Errorf("Host() = %q", run.Host())
	}
}

func TestFetchRunNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeEnvelope(w, 404, nil, "run not found")
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchRun(context.Background(), "missing")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("FetchRun() error = %v, want NotFoundError", err)
	}
	if notFound.ID != "missing" {
		t.Errorf("NotFoundError.ID = %q, want missing", notFound.ID)
	}
}

func TestCallRetriesTransientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeEnvelope(w, 0, map[string]interface{}{"run_id": "r1", "status": "pending"}, "")
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchRun(context.Background(), "r1")
	if err != nil {
		t.Fatalf("FetchRun() error = %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3 (two 503s then success)", got)
	}
}

func TestCallDoesNotRetryRejection(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		writeEnvelope(w, 422, nil, "bad arguments")
	}))
	defer srv.Close()

	err := newTestClient(srv).Start(context.Background(), "r1", nil)
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("Start() error = %v, want RejectionError", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1 (4xx is not retried)", got)
	}
}

func TestStartConflictIsIdempotentAck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		writeEnvelope(w, 409, nil, "already started")
	}))
	defer srv.Close()

	err := newTestClient(srv).Start(context.Background(), "r1", models.ResolvedArguments{"model": "gpt-4"})
	if err != nil {
		t.Fatalf("Start() on conflict should be success, got %v", err)
	}
}

func TestEnvelopeCodeIsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// HTTP 200 but the platform-level code signals an error
		writeEnvelope(w, 1001, nil, "run is not in a startable state")
	}))
	defer srv.Close()

	err := newTestClient(srv).Start(context.Background(), "r1", nil)
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("Start() error = %v, want RejectionError", err)
	}
	if rej.Message != "run is not in a startable state" {
		t.Errorf("message = %q", rej.Message)
	}
}

func TestFailSendsReason(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/perf/runs/r1/fail" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		writeEnvelope(w, 0, nil, "")
	}))
	defer srv.Close()

	if err := newTestClient(srv).Fail(context.Background(), "r1", "generator exited with code 2"); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	if got["error_message"] != "generator exited with code 2" {
		t.Errorf("error_message = %q", got["error_message"])
	}
}

func TestCompleteSendsSummary(t *testing.T) {
	var got models.RunSummary
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		writeEnvelope(w, 0, nil, "")
	}))
	defer srv.Close()

	summary := models.RunSummary{Requests: 100, Failures: 2, DurationSeconds: 60}
	if err := newTestClient(srv).Complete(context.Background(), "r1", summary); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got.Requests != 100 || got.Failures != 2 {
		t.Errorf("summary = %+v, want requests=100 failures=2", got)
	}
}
