package locust

import (
	"slices"
	"sort"
	"testing"

	"github.com/perfx-labs/perfx/pkg/models"
)

func TestBuildArgs(t *testing.T) {
	cfg := Config{
		Locustfile:  "scripts/inference.py",
		Host:        "https://staging.example.com",
		Users:       50,
		SpawnRate:   2.5,
		RunTime:     "5m",
		PassThrough: []string{"--stop-timeout", "30"},
	}

	args := buildArgs(cfg, "/tmp/run/perfx")

	pairs := map[string]string{
		"-f":         "scripts/inference.py",
		"--host":     "https://staging.example.com",
		"-u":         "50",
		"-r":         "2.5",
		"--run-time": "5m",
		"--csv":      "/tmp/run/perfx",
	}
	for flag, want := range pairs {
		i := slices.Index(args, flag)
		if i < 0 || i+1 >= len(args) {
			t.Errorf("args missing %s: %v", flag, args)
			continue
		}
		if args[i+1] != want {
			t.Errorf("%s = %q, want %q", flag, args[i+1], want)
		}
	}
	for _, flag := range []string{"--headless", "--only-summary", "--csv-full-history", "--stop-timeout"} {
		if !slices.Contains(args, flag) {
			t.Errorf("args missing %s: %v", flag, args)
		}
	}
}

func TestBuildArgsOmitsUnsetOptions(t *testing.T) {
	args := buildArgs(Config{Locustfile: "t.py"}, "/tmp/perfx")
	for _, flag := range []string{"--host", "-u", "-r", "--run-time"} {
		if slices.Contains(args, flag) {
			t.Errorf("args should omit unset %s: %v", flag, args)
		}
	}
}

func TestBuildEnv(t *testing.T) {
	env := buildEnv("run-42", models.ResolvedArguments{
		"model":      "gpt-4",
		"batch-size": "32",
	})
	sort.Strings(env)

	want := []string{
		"PERFX_BATCH_SIZE=32",
		"PERFX_MODEL=gpt-4",
		"PERFX_RUN_ID=run-42",
	}
	if !slices.Equal(env, want) {
		t.Errorf("buildEnv() = %v, want %v", env, want)
	}
}

func TestParseRunTime(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"30s", 30, false},
		{"5m", 300, false},
		{"1h", 3600, false},
		{"90", 90, false},
		{"", 0, false},
		{" 2M ", 120, false},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRunTime(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRunTime(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRunTime(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}
