// Package orchestrator drives one test run through its lifecycle:
// resolve, validate, start, supervise the generator, and guarantee a
// terminal platform call on every exit path.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/perfx-labs/perfx/pkg/bridge"
	"github.com/perfx-labs/perfx/pkg/generator"
	"github.com/perfx-labs/perfx/pkg/locust"
	"github.com/perfx-labs/perfx/pkg/logging"
	"github.com/perfx-labs/perfx/pkg/metrics"
	"github.com/perfx-labs/perfx/pkg/models"
	"github.com/perfx-labs/perfx/pkg/shape"
	"github.com/perfx-labs/perfx/pkg/sysinfo"
	"github.com/perfx-labs/perfx/pkg/validate"
)

// terminalCallTimeout bounds the final complete/fail call so a dying
// platform cannot hang process exit
const terminalCallTimeout = 30 * time.Second

// PlatformAPI is the slice of the platform client the orchestrator
// drives
type PlatformAPI interface {
	FetchRun(ctx context.Context, runID string) (*models.RunDescriptor, error)
	FetchEnvironment(ctx context.Context, envID string) (*models.EnvironmentInfo, error)
	Start(ctx context.Context, runID string, args models.ResolvedArguments) error
	Complete(ctx context.Context, runID string, summary models.RunSummary) error
	Fail(ctx context.Context, runID string, reason string) error
}

// Sink is the metrics surface the orchestrator owns
type Sink interface {
	Enqueue(metrics.Point)
	Flush()
	Close() error
}

// RunnerFactory builds the generator supervisor for a prepared config.
// Indirection exists so tests can substitute a fake generator.
type RunnerFactory func(cfg locust.Config) generator.Runner

// Config is everything Execute needs for one run
type Config struct {
	RunID        string
	Locustfile   string
	LocustBinary string
	ShapeFile    string
	ExtraArgs    map[string]string
	PassThrough  []string
	DryRun       bool

	// Run is the already-fetched descriptor when the caller needed the
	// schema up front (the CLI builds per-parameter flags from it).
	// Left nil, Execute fetches it.
	Run *models.RunDescriptor
}

// ValidationFailure reports violated parameter constraints together
// with the schema so the CLI can render parameter help
type ValidationFailure struct {
	Errors validate.Errors
	Schema models.ArgumentSchema
}

func (v *ValidationFailure) Error() string {
	return fmt.Sprintf("argument validation failed: %v", v.Errors.Error())
}

// GeneratorFailure means the generator crashed or exited non-zero
type GeneratorFailure struct {
	ExitCode int
	Reason   string
}

func (g *GeneratorFailure) Error() string {
	return g.Reason
}

// Plan is the dry-run outcome: what would have run
type Plan struct {
	Run      *models.RunDescriptor
	Host     string
	Resolved models.ResolvedArguments
	Shape    []models.ShapeStep
}

// Outcome describes a finished (or dry-run) execution
type Outcome struct {
	State       models.RunState
	Plan        *Plan
	Summary     models.RunSummary
	Generator   *generator.Result
	Interrupted bool
}

// Orchestrator owns the run lifecycle state machine
type Orchestrator struct {
	platform  PlatformAPI
	sink      Sink
	newRunner RunnerFactory
	log       *logging.Logger

	state     models.RunState
	interrupt chan struct{}
}

// New creates an orchestrator
func New(platform PlatformAPI, sink Sink, newRunner RunnerFactory, log *logging.Logger) *Orchestrator {
	return &Orchestrator{
		platform:  platform,
		sink:      sink,
		newRunner: newRunner,
		log:       log,
		state:     models.RunStatePending,
		interrupt: make(chan struct{}),
	}
}

// Interrupt requests generator shutdown and the interrupted-fail exit
// path. Safe to call once; wired to SIGINT/SIGTERM by the CLI.
func (o *Orchestrator) Interrupt() {
	select {
	case <-o.interrupt:
	default:
		close(o.interrupt)
	}
}

// State returns the current lifecycle state
func (o *Orchestrator) State() models.RunState {
	return o.state
}

func (o *Orchestrator) transition(to models.RunState) error {
	if err := models.ValidateTransition(o.state, to); err != nil {
		return err
	}
	o.log.Debug("lifecycle transition", map[string]interface{}{
		"from": string(o.state),
		"to":   string(to),
	})
	o.state = to
	return nil
}

// Execute drives the whole run. The returned error is classified by
// the CLI into the documented exit codes.
func (o *Orchestrator) Execute(ctx context.Context, cfg Config) (*Outcome, error) {
	run := cfg.Run
	if run == nil {
		o.log.Info("fetching run configuration", map[string]interface{}{"run_id": cfg.RunID})
		var err error
		run, err = o.platform.FetchRun(ctx, cfg.RunID)
		if err != nil {
			return nil, err
		}
	}

	params, err := run.ArgumentParameters()
	if err != nil {
		return nil, fmt.Errorf("endpoint argument schema is malformed: %w", err)
	}
	schema := models.ArgumentSchema{Parameters: params}

	// Platform-stored arguments first, CLI-provided on top
	rawInputs := make(map[string]string, len(run.Arguments)+len(cfg.ExtraArgs))
	for k, v := range run.Arguments {
		rawInputs[k] = v
	}
	for k, v := range cfg.ExtraArgs {
		rawInputs[k] = v
	}

	resolved, err := validate.Validate(schema, rawInputs)
	if err != nil {
		// Pre-start exit: nothing is recorded on the platform for an
		// invalid run.
		var verrs validate.Errors
		if !errors.As(err, &verrs) {
			return nil, fmt.Errorf("argument validation failed: %w", err)
		}
		return nil, &ValidationFailure{Errors: verrs, Schema: schema}
	}
	o.log.Info("arguments validated", map[string]interface{}{"resolved": len(resolved)})

	if run.RunTime != "" {
		if _, err := locust.ParseRunTime(run.RunTime); err != nil {
			return nil, fmt.Errorf("run has an invalid run_time: %w", err)
		}
	}

	steps := run.Shape
	if cfg.ShapeFile != "" {
		steps, err = shape.Load(cfg.ShapeFile)
		if err != nil {
			return nil, err
		}
		o.log.Info("using local shape override", map[string]interface{}{
			"steps":      len(steps),
			"duration_s": shape.TotalDuration(steps),
		})
	}

	if cfg.DryRun {
		// Dry run exits before any lifecycle transition: host
		// resolution may read the environment, but nothing is recorded
		// on the platform, including a resolution failure.
		host, err := o.resolveHost(ctx, run)
		if err != nil {
			return nil, err
		}
		return &Outcome{
			State: o.state,
			Plan:  &Plan{Run: run, Host: host, Resolved: resolved, Shape: steps},
		}, nil
	}

	if err := o.transition(models.RunStateStarting); err != nil {
		return nil, err
	}

	host, err := o.resolveHost(ctx, run)
	if err != nil {
		o.failStart(run.RunID, err.Error())
		return nil, err
	}

	if err := o.platform.Start(ctx, run.RunID, resolved); err != nil {
		o.failStart(run.RunID, fmt.Sprintf("start call failed: %v", err))
		return nil, err
	}
	if err := o.transition(models.RunStateRunning); err != nil {
		return nil, err
	}
	o.log.Info("run started", map[string]interface{}{"run_id": run.RunID, "host": host})

	return o.supervise(ctx, cfg, run, host, resolved, steps)
}

// resolveHost returns the run's target host, chasing the environment
// reference when the descriptor does not embed it
func (o *Orchestrator) resolveHost(ctx context.Context, run *models.RunDescriptor) (string, error) {
	if host := run.Host(); host != "" {
		return host, nil
	}
	if run.Environment != nil && run.Environment.EnvCode != "" {
		env, err := o.platform.FetchEnvironment(ctx, run.Environment.EnvCode)
		if err != nil {
			return "", fmt.Errorf("failed to resolve environment host: %w", err)
		}
		if env.Host != "" {
			return env.Host, nil
		}
	}
	return "", fmt.Errorf("run %s has no target host configured", run.RunID)
}

// failStart resolves a run stuck in Starting to Failed with a
// best-effort platform call
func (o *Orchestrator) failStart(runID, reason string) {
	if err := o.transition(models.RunStateFailed); err != nil {
		o.log.Error("lifecycle error", map[string]interface{}{"error": err.Error()})
	}
	ctx, cancel := context.WithTimeout(context.Background(), terminalCallTimeout)
	defer cancel()
	if err := o.platform.Fail(ctx, runID, reason); err != nil {
		o.log.Error("could not record run failure on platform", map[string]interface{}{
			"run_id": runID,
			"error":  err.Error(),
		})
	}
}

// supervise runs the generator and guarantees exactly one terminal
// platform call on every exit path, including interrupts and panics.
func (o *Orchestrator) supervise(ctx context.Context, cfg Config, run *models.RunDescriptor, host string, resolved models.ResolvedArguments, steps []models.ShapeStep) (outcome *Outcome, retErr error) {
	br := bridge.New(o.sink, o.baseTags(run, resolved), o.log)
	br.EmitLifecycle("start", "")

	users := run.Users
	spawnRate := run.SpawnRate
	runTime := run.RunTime
	if len(steps) > 0 {
		// Headless locust takes a single stage; approximate a staged
		// shape by its peak and total duration.
		users = shape.PeakUsers(steps)
		runTime = fmt.Sprintf("%ds", shape.TotalDuration(steps))
	}

	runner := o.newRunner(locust.Config{
		Locustfile:  cfg.Locustfile,
		Binary:      cfg.LocustBinary,
		Host:        host,
		Users:       users,
		SpawnRate:   spawnRate,
		RunTime:     runTime,
		RunID:       run.RunID,
		Arguments:   resolved,
		PassThrough: cfg.PassThrough,
	})

	consumeDone := make(chan struct{})
	go func() {
		defer close(consumeDone)
		br.Consume(runner.Events())
	}()

	watchDone := make(chan struct{})
	go func() {
		select {
		case <-o.interrupt:
			o.log.Warn("interrupt received, stopping generator")
			runner.Stop()
		case <-watchDone:
		}
	}()
	defer close(watchDone)

	// The terminal-call guard: once the platform acknowledged start,
	// exactly one of complete/fail must be recorded no matter how we
	// leave this function.
	terminalDone := false
	started := time.Now()
	defer func() {
		if !terminalDone {
			o.terminalFail(run.RunID, br, "run aborted before a terminal state was recorded")
		}
		o.sink.Flush()
	}()

	result, runErr := runner.Run(ctx)
	<-consumeDone

	interrupted := false
	select {
	case <-o.interrupt:
		interrupted = true
	default:
	}

	summary := models.RunSummary{
		Requests:        br.Requests(),
		Failures:        br.Failures(),
		DurationSeconds: int(time.Since(started).Seconds()),
	}
	if result != nil {
		summary.DurationSeconds = int(result.Duration.Seconds())
		if result.Summary.Requests > 0 {
			summary.AvgResponseTime = result.Summary.AvgResponseTime
			summary.RPS = result.Summary.RPS
		}
	}

	outcome = &Outcome{Summary: summary, Generator: result, Interrupted: interrupted}

	switch {
	case interrupted:
		reason := "interrupted by operator"
		o.terminalFail(run.RunID, br, reason)
		terminalDone = true
		outcome.State = o.state
		return outcome, &GeneratorFailure{Reason: reason}

	case runErr != nil:
		reason := fmt.Sprintf("generator failed to run: %v", runErr)
		o.terminalFail(run.RunID, br, reason)
		terminalDone = true
		outcome.State = o.state
		return outcome, &GeneratorFailure{Reason: reason}

	case result.ExitCode != 0:
		reason := fmt.Sprintf("generator exited with code %d", result.ExitCode)
		o.terminalFail(run.RunID, br, reason)
		terminalDone = true
		outcome.State = o.state
		return outcome, &GeneratorFailure{ExitCode: result.ExitCode, Reason: reason}
	}

	o.terminalComplete(run.RunID, br, summary)
	terminalDone = true
	outcome.State = o.state
	return outcome, nil
}

func (o *Orchestrator) terminalComplete(runID string, br *bridge.Bridge, summary models.RunSummary) {
	if err := o.transition(models.RunStateCompleted); err != nil {
		o.log.Error("lifecycle error", map[string]interface{}{"error": err.Error()})
		return
	}
	br.EmitLifecycle("complete", "")
	ctx, cancel := context.WithTimeout(context.Background(), terminalCallTimeout)
	defer cancel()
	if err := o.platform.Complete(ctx, runID, summary); err != nil {
		o.log.Error("could not record run completion on platform", map[string]interface{}{
			"run_id": runID,
			"error":  err.Error(),
		})
	}
}

func (o *Orchestrator) terminalFail(runID string, br *bridge.Bridge, reason string) {
	if err := o.transition(models.RunStateFailed); err != nil {
		// Already terminal; never issue a second lifecycle call
		return
	}
	br.EmitLifecycle("fail", reason)
	ctx, cancel := context.WithTimeout(context.Background(), terminalCallTimeout)
	defer cancel()
	if err := o.platform.Fail(ctx, runID, reason); err != nil {
		o.log.Error("could not record run failure on platform", map[string]interface{}{
			"run_id": runID,
			"error":  err.Error(),
		})
	}
}

// baseTags builds the identity tags stamped on every point
func (o *Orchestrator) baseTags(run *models.RunDescriptor, resolved models.ResolvedArguments) map[string]string {
	tags := map[string]string{
		"run_id":    run.RunID,
		"client_id": uuid.New().String(),
	}
	if host := sysinfo.Collect().Hostname; host != "" {
		tags["client_host"] = host
	}
	if run.Endpoint != nil {
		if run.Endpoint.EndpointID != "" {
			tags["endpoint_id"] = run.Endpoint.EndpointID
		}
		if run.Endpoint.EndpointPath != "" {
			tags["endpoint_path"] = run.Endpoint.EndpointPath
		}
	} else if run.EndpointID != "" {
		tags["endpoint_id"] = run.EndpointID
	}
	if run.Environment != nil {
		if run.Environment.EnvCode != "" {
			tags["env_code"] = run.Environment.EnvCode
		}
		if run.Environment.GPUModel != "" {
			tags["gpu_model"] = run.Environment.GPUModel
		}
	}
	for name, value := range resolved {
		tags["arg_"+name] = value
	}
	return tags
}
