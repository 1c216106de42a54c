package shape

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/perfx-labs/perfx/pkg/models"
)

func writeShape(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shape.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write shape file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeShape(t, `
steps:
  - duration: 60
    users: 10
    spawn_rate: 1.0
  - duration: 120
    users: 50
    spawn_rate: 5.0
`)

	steps, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(steps))
	}
	if steps[1].Users != 50 || steps[1].SpawnRate != 5.0 {
		t.Errorf("step 2 = %+v", steps[1])
	}
	if TotalDuration(steps) != 180 {
		t.Errorf("TotalDuration = %d, want 180", TotalDuration(steps))
	}
	if PeakUsers(steps) != 50 {
		t.Errorf("PeakUsers = %d, want 50", PeakUsers(steps))
	}
}

func TestLoadRejectsBadSteps(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty steps", "steps: []\n"},
		{"zero duration", "steps:\n  - duration: 0\n    users: 10\n    spawn_rate: 1.0\n"},
		{"negative users", "steps:\n  - duration: 10\n    users: -1\n    spawn_rate: 1.0\n"},
		{"zero spawn rate", "steps:\n  - duration: 10\n    users: 5\n    spawn_rate: 0\n"},
		{"not yaml", "{{{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeShape(t, tt.content)); err == nil {
				t.Error("Load() expected error")
			}
		})
	}
}

func TestValidateGoodSteps(t *testing.T) {
	steps := []models.ShapeStep{{Duration: 30, Users: 5, SpawnRate: 0.5}}
	if err := Validate(steps); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}
