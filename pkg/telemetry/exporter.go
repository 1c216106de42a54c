// Package telemetry exposes the bridge's own health over HTTP so a
// long-running load test can be watched from the outside. Entirely
// optional; nothing in the run depends on it.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/perfx-labs/perfx/pkg/logging"
)

// Exporter serves /metrics and /health for one run
type Exporter struct {
	runID     string
	startTime time.Time
	server    *http.Server
	log       *logging.Logger
}

// NewExporter creates an exporter bound to addr (e.g. ":9646")
func NewExporter(addr, runID string, log *logging.Logger) *Exporter {
	e := &Exporter{
		runID:     runID,
		startTime: time.Now(),
		log:       log,
	}

	router := mux.NewRouter()
	router.HandleFunc("/metrics", e.handleMetrics).Methods("GET")
	router.HandleFunc("/health", e.handleHealth).Methods("GET")

	e.server = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return e
}

// Start serves in the background; the run never waits on it
func (e *Exporter) Start() {
	go func() {
		if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.log.Warn("telemetry exporter stopped", map[string]interface{}{"error": err.Error()})
		}
	}()
}

// Shutdown stops the HTTP server
func (e *Exporter) Shutdown(ctx context.Context) error {
	return e.server.Shutdown(ctx)
}

// handleMetrics writes run metadata plus every registered collector
// in Prometheus text format
func (e *Exporter) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "# HELP perfx_run_uptime_seconds Seconds since the wrapper started\n")
	fmt.Fprintf(w, "# TYPE perfx_run_uptime_seconds gauge\n")
	fmt.Fprintf(w, "perfx_run_uptime_seconds{run_id=%q} %f\n", e.runID, time.Since(e.startTime).Seconds())

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		fmt.Fprintf(w, "# Error gathering metrics: %v\n", err)
		return
	}

	encoder := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			fmt.Fprintf(w, "# Error encoding metric %s: %v\n", mf.GetName(), err)
		}
	}
}

func (e *Exporter) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","run_id":%q}`, e.runID)
}
