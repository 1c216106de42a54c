package locust

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/perfx-labs/perfx/pkg/models"
)

// buildArgs assembles the locust command line for a headless run.
// csvPrefix is where locust writes its stats CSVs; the runner tails
// the history file for live events.
func buildArgs(cfg Config, csvPrefix string) []string {
	args := []string{
		"-f", cfg.Locustfile,
		"--headless",
		"--only-summary",
		"--csv", csvPrefix,
		"--csv-full-history",
	}
	if cfg.Host != "" {
		args = append(args, "--host", cfg.Host)
	}
	if cfg.Users > 0 {
		args = append(args, "-u", strconv.Itoa(cfg.Users))
	}
	if cfg.SpawnRate > 0 {
		args = append(args, "-r", strconv.FormatFloat(cfg.SpawnRate, 'f', -1, 64))
	}
	if cfg.RunTime != "" {
		args = append(args, "--run-time", cfg.RunTime)
	}
	args = append(args, cfg.PassThrough...)
	return args
}

// buildEnv produces the explicit environment entries handed to the
// subprocess so the script under test can read its validated
// parameters. Never mutates ambient process state.
func buildEnv(runID string, args models.ResolvedArguments) []string {
	env := make([]string, 0, len(args)+1)
	if runID != "" {
		env = append(env, "PERFX_RUN_ID="+runID)
	}
	for name, value := range args {
		env = append(env, envKey(name)+"="+value)
	}
	return env
}

// envKey maps a parameter name to its exported variable name:
// uppercased, hyphens folded to underscores, PERFX_ prefix
func envKey(name string) string {
	cleaned := strings.ReplaceAll(name, "-", "_")
	return "PERFX_" + strings.ToUpper(cleaned)
}

// ParseRunTime parses a locust-style run time ("30s", "5m", "1h",
// bare seconds) into seconds. Zero means unbounded.
func ParseRunTime(runTime string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(runTime))
	if s == "" {
		return 0, nil
	}

	multiplier := 1
	switch {
	case strings.HasSuffix(s, "s"):
		s = strings.TrimSuffix(s, "s")
	case strings.HasSuffix(s, "m"):
		s = strings.TrimSuffix(s, "m")
		multiplier = 60
	case strings.HasSuffix(s, "h"):
		s = strings.TrimSuffix(s, "h")
		multiplier = 3600
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("cannot parse run time %q", runTime)
	}
	return n * multiplier, nil
}
