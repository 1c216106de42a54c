// Package locust supervises a headless locust subprocess and
// reconstructs its event stream from the stats CSVs it writes.
package locust

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/perfx-labs/perfx/pkg/generator"
	"github.com/perfx-labs/perfx/pkg/logging"
	"github.com/perfx-labs/perfx/pkg/models"
)

const (
	defaultBinary       = "locust"
	defaultPollInterval = 2 * time.Second
	stopGracePeriod     = 10 * time.Second
)

// Config describes one locust execution
type Config struct {
	Locustfile  string
	Binary      string // locust executable, default "locust"
	Host        string
	Users       int
	SpawnRate   float64
	RunTime     string
	RunID       string
	Arguments   models.ResolvedArguments // exported as PERFX_* env vars
	PassThrough []string                 // extra args handed to locust untouched
	WorkDir     string                   // where stats CSVs land, default a temp dir

	PollInterval time.Duration // stats observation interval
}

// Runner runs one locust subprocess. Implements generator.Runner.
type Runner struct {
	cfg    Config
	log    *logging.Logger
	events chan generator.Event

	mu  sync.Mutex
	cmd *exec.Cmd

	stopOnce sync.Once
}

// NewRunner creates a runner. Events are buffered so slow consumers
// do not stall observation; the channel closes when Run returns.
func NewRunner(cfg Config, log *logging.Logger) *Runner {
	if cfg.Binary == "" {
		cfg.Binary = defaultBinary
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Runner{
		cfg:    cfg,
		log:    log,
		events: make(chan generator.Event, 256),
	}
}

// Events returns the event stream
func (r *Runner) Events() <-chan generator.Event {
	return r.events
}

// Run spawns locust and blocks until it exits. The subprocess gets
// its own process group so Stop can signal the whole tree.
func (r *Runner) Run(ctx context.Context) (*generator.Result, error) {
	defer close(r.events)

	if _, err := os.Stat(r.cfg.Locustfile); err != nil {
		return nil, fmt.Errorf("locustfile not found: %s", r.cfg.Locustfile)
	}

	workDir := r.cfg.WorkDir
	if workDir == "" {
		dir, err := os.MkdirTemp("", "perfx-run-")
		if err != nil {
			return nil, fmt.Errorf("failed to create work dir: %w", err)
		}
		defer os.RemoveAll(dir)
		workDir = dir
	}
	csvPrefix := filepath.Join(workDir, "perfx")

	cmd := exec.Command(r.cfg.Binary, buildArgs(r.cfg, csvPrefix)...)
	cmd.Env = append(os.Environ(), buildEnv(r.cfg.RunID, r.cfg.Arguments)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start locust: %w", err)
	}

	r.mu.Lock()
	r.cmd = cmd
	r.mu.Unlock()

	r.log.Info("locust started", map[string]interface{}{
		"pid":        cmd.Process.Pid,
		"locustfile": r.cfg.Locustfile,
		"users":      r.cfg.Users,
	})

	watchDone := make(chan struct{})
	go r.watchStats(ctx, csvPrefix+"_stats_history.csv", watchDone)

	waitErr := cmd.Wait()
	close(watchDone)

	r.emit(generator.Event{Kind: generator.KindQuitting, Timestamp: time.Now().UTC()})

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("locust did not run: %w", waitErr)
		}
	}

	result := &generator.Result{
		ExitCode: exitCode,
		Duration: time.Since(started),
	}
	if agg, err := readLastAggregate(csvPrefix + "_stats.csv"); err == nil && agg != nil {
		result.Summary = generator.AggregateStats{
			Requests:           agg.Requests,
			Failures:           agg.Failures,
			AvgResponseTime:    agg.AvgRT,
			MinResponseTime:    agg.MinRT,
			MaxResponseTime:    agg.MaxRT,
			MedianResponseTime: agg.MedianRT,
			P95ResponseTime:    agg.P95,
			P99ResponseTime:    agg.P99,
			RPS:                agg.RPS,
		}
	} else if err != nil {
		r.log.Warn("could not read locust summary CSV", map[string]interface{}{"error": err.Error()})
	}

	return result, nil
}

// Stop asks the locust process group to shut down: SIGTERM first so
// locust prints its summary, SIGKILL after the grace period.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		cmd := r.cmd
		r.mu.Unlock()
		if cmd == nil || cmd.Process == nil {
			return
		}

		pgid := cmd.Process.Pid
		r.log.Info("stopping locust", map[string]interface{}{"pgid": pgid})
		syscall.Kill(-pgid, syscall.SIGTERM)

		go func() {
			time.Sleep(stopGracePeriod)
			syscall.Kill(-pgid, syscall.SIGKILL)
		}()
	})
}

// watchStats polls the history CSV and converts aggregate changes to
// events. Missing file is normal early in a run.
func (r *Runner) watchStats(ctx context.Context, historyPath string, done <-chan struct{}) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	var prev *aggregateRow
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cur, err := readLastAggregate(historyPath)
		if err != nil || cur == nil {
			continue
		}
		for _, ev := range diffEvents(prev, cur) {
			ev.Timestamp = time.Now().UTC()
			r.emit(ev)
		}
		prev = cur
	}
}

// emit never blocks the observation loop; if the consumer fell this
// far behind the event is dropped and counted against metric
// completeness only.
func (r *Runner) emit(ev generator.Event) {
	select {
	case r.events <- ev:
	default:
		r.log.Warn("event buffer full, dropping event", map[string]interface{}{"kind": string(ev.Kind)})
	}
}
