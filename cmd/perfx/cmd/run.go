package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/perfx-labs/perfx/internal/orchestrator"
	"github.com/perfx-labs/perfx/pkg/generator"
	"github.com/perfx-labs/perfx/pkg/locust"
	"github.com/perfx-labs/perfx/pkg/metrics"
	"github.com/perfx-labs/perfx/pkg/platform"
	"github.com/perfx-labs/perfx/pkg/shutdown"
	"github.com/perfx-labs/perfx/pkg/sysinfo"
	"github.com/perfx-labs/perfx/pkg/telemetry"
)

var (
	runID        string
	locustfile   string
	locustBinary string
	shapeFile    string
	dryRun       bool
	metricsAddr  string
	setArgs      []string

	influxURL    string
	influxToken  string
	influxOrg    string
	influxBucket string
)

var runCmd = &cobra.Command{
	Use:   "run --run-id <id> [flags] [-- locust-args...]",
	Short: "Execute a platform-managed load test run",
	Long: `Run fetches the run configuration from the platform, validates the
endpoint arguments against the schema, starts the run, supervises the
Locust subprocess, and reports the terminal state back.

Every parameter of the endpoint's argument schema becomes a flag of
its own name (--model gpt-4, --batch-size 64; hyphens and underscores
are interchangeable), layered on top of the platform-stored run
configuration; --set NAME=VALUE works as a generic override. Arguments
are exported to the Locust script as PERFX_<NAME> environment
variables. Anything after -- is passed to locust verbatim.

Example:
  perfx run --run-id run-42 -f locustfile.py --model gpt-4 --batch-size 64
  perfx run --run-id run-42 -f locustfile.py --dry-run
  perfx run --run-id run-42 -f locustfile.py -- --loglevel WARNING`,
	Args:               cobra.ArbitraryArgs,
	FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
	SilenceUsage:       true,
	SilenceErrors:      true,
	RunE:               runTest,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runID, "run-id", "", "platform run identifier (required)")
	runCmd.Flags().StringVarP(&locustfile, "locustfile", "f", "", "path to the Locust script (required)")
	runCmd.Flags().StringVar(&locustBinary, "locust-binary", "", "locust executable (default \"locust\" from PATH)")
	runCmd.Flags().StringVar(&shapeFile, "shape-file", "", "YAML load-shape file overriding the platform shape")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and show the plan without starting anything")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address (e.g. :9109)")
	runCmd.Flags().StringArrayVar(&setArgs, "set", nil, "endpoint argument override, NAME=VALUE (repeatable; wins over per-parameter flags)")

	runCmd.Flags().StringVar(&influxURL, "influxdb-url", "", "InfluxDB URL (or PERFX_INFLUXDB_URL)")
	runCmd.Flags().StringVar(&influxToken, "influxdb-token", "", "InfluxDB token (or PERFX_INFLUXDB_TOKEN)")
	runCmd.Flags().StringVar(&influxOrg, "influxdb-org", "", "InfluxDB organization (or PERFX_INFLUXDB_ORG)")
	runCmd.Flags().StringVar(&influxBucket, "influxdb-bucket", "", "InfluxDB bucket (or PERFX_INFLUXDB_BUCKET)")

	runCmd.MarkFlagRequired("run-id")
	runCmd.MarkFlagRequired("locustfile")
}

func runTest(cmd *cobra.Command, args []string) error {
	var passThrough []string
	if at := cmd.ArgsLenAtDash(); at >= 0 {
		passThrough = args[at:]
	}

	setOverrides, err := parseSetArgs(setArgs)
	if err != nil {
		return err
	}

	if platformURL == "" {
		return fmt.Errorf("platform URL is not configured (use --platform-url or PERFX_PLATFORM_URL)")
	}

	log.Info("starting perfx", map[string]interface{}{
		"run_id": runID,
		"host":   sysinfo.Collect().Hostname,
	})

	client := platform.NewClient(platformURL)

	// The endpoint schema defines the run's own flags, so the
	// descriptor is fetched before the second flag-parsing pass.
	run, err := client.FetchRun(cmd.Context(), runID)
	if err != nil {
		return err
	}
	params, err := run.ArgumentParameters()
	if err != nil {
		return fmt.Errorf("endpoint argument schema is malformed: %w", err)
	}
	flagValues, err := schemaFlagValues(params, os.Args[1:])
	if err != nil {
		return err
	}
	extraArgs := mergeArgs(flagValues, setOverrides)

	sink := buildSink(cmd.Context())
	defer sink.Close()

	mgr := shutdown.New(30*time.Second, log)
	defer mgr.Stop()

	if metricsAddr != "" {
		exporter := telemetry.NewExporter(metricsAddr, runID, log)
		exporter.Start()
		mgr.Register(exporter.Shutdown)
	}

	orch := orchestrator.New(client, sink, func(cfg locust.Config) generator.Runner {
		return locust.NewRunner(cfg, log)
	}, log)

	// First signal requests a graceful stop; a second one forces exit
	go func() {
		<-mgr.Interrupted()
		orch.Interrupt()
		<-mgr.Interrupted()
		log.Error("second interrupt, exiting immediately")
		os.Exit(130)
	}()

	outcome, err := orch.Execute(cmd.Context(), orchestrator.Config{
		RunID:        runID,
		Run:          run,
		Locustfile:   locustfile,
		LocustBinary: locustBinary,
		ShapeFile:    shapeFile,
		ExtraArgs:    extraArgs,
		PassThrough:  passThrough,
		DryRun:       dryRun,
	})

	mgr.Shutdown()

	if err != nil {
		var vf *orchestrator.ValidationFailure
		if errors.As(err, &vf) {
			renderValidationFailure(vf)
		}
		return err
	}

	if outcome.Plan != nil {
		renderPlan(runID, outcome.Plan)
		return nil
	}

	renderSummary(runID, outcome)
	return nil
}

// buildSink returns the Influx-backed sink when configured, otherwise
// a discarding sink so a run can proceed without a metrics store
func buildSink(ctx context.Context) orchestrator.Sink {
	cfg := metrics.InfluxConfig{
		URL:    firstNonEmpty(influxURL, viper.GetString("influxdb_url")),
		Token:  firstNonEmpty(influxToken, viper.GetString("influxdb_token")),
		Org:    firstNonEmpty(influxOrg, viper.GetString("influxdb_org")),
		Bucket: firstNonEmpty(influxBucket, viper.GetString("influxdb_bucket")),
	}
	if !cfg.Enabled() {
		log.Warn("InfluxDB is not configured, metrics will be discarded")
		return metrics.NewDiscardSink()
	}
	writer, err := metrics.NewInfluxWriter(ctx, cfg)
	if err != nil {
		// The metrics store is advisory: its unavailability never
		// blocks a run.
		log.Warn("InfluxDB is unreachable, metrics will be discarded", map[string]interface{}{
			"url":   cfg.URL,
			"error": err.Error(),
		})
		return metrics.NewDiscardSink()
	}
	log.Info("metrics sink connected", map[string]interface{}{
		"url":    cfg.URL,
		"bucket": cfg.Bucket,
	})
	return metrics.NewSink(writer, metrics.DefaultSinkConfig(), log)
}

func parseSetArgs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q, expected NAME=VALUE", pair)
		}
		out[name] = value
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
