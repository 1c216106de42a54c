// Package shape loads staged load-curve definitions. The platform may
// attach a shape to the run descriptor; a local YAML file overrides it
// for ad-hoc experiments.
package shape

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/perfx-labs/perfx/pkg/models"
)

// File is the on-disk YAML shape definition
type File struct {
	Steps []models.ShapeStep `yaml:"steps"`
}

// Load reads and validates a shape file
func Load(path string) ([]models.ShapeStep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shape file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse shape file %s: %w", path, err)
	}
	if err := Validate(f.Steps); err != nil {
		return nil, fmt.Errorf("invalid shape file %s: %w", path, err)
	}
	return f.Steps, nil
}

// Validate checks shape steps for usability
func Validate(steps []models.ShapeStep) error {
	if len(steps) == 0 {
		return fmt.Errorf("shape defines no steps")
	}
	for i, step := range steps {
		if step.Duration <= 0 {
			return fmt.Errorf("step %d: duration must be positive", i+1)
		}
		if step.Users < 0 {
			return fmt.Errorf("step %d: users must not be negative", i+1)
		}
		if step.SpawnRate <= 0 {
			return fmt.Errorf("step %d: spawn_rate must be positive", i+1)
		}
	}
	return nil
}

// TotalDuration sums all step durations in seconds
func TotalDuration(steps []models.ShapeStep) int {
	total := 0
	for _, step := range steps {
		total += step.Duration
	}
	return total
}

// PeakUsers returns the highest user count across steps
func PeakUsers(steps []models.ShapeStep) int {
	peak := 0
	for _, step := range steps {
		if step.Users > peak {
			peak = step.Users
		}
	}
	return peak
}
