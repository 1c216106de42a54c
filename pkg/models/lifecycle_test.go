package models

import "testing"

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    RunState
		to      RunState
		wantErr bool
	}{
		// Valid transitions
		{"Pending to Starting", RunStatePending, RunStateStarting, false},
		{"Starting to Running", RunStateStarting, RunStateRunning, false},
		{"Starting to Failed", RunStateStarting, RunStateFailed, false},
		{"Running to Completed", RunStateRunning, RunStateCompleted, false},
		{"Running to Failed", RunStateRunning, RunStateFailed, false},

		// Skipping states is not allowed
		{"Pending to Running", RunStatePending, RunStateRunning, true},
		{"Pending to Completed", RunStatePending, RunStateCompleted, true},
		{"Pending to Failed", RunStatePending, RunStateFailed, true},
		{"Starting to Completed", RunStateStarting, RunStateCompleted, true},

		// Terminal states have no outgoing transitions
		{"Completed to Running", RunStateCompleted, RunStateRunning, true},
		{"Completed to Failed", RunStateCompleted, RunStateFailed, true},
		{"Failed to Completed", RunStateFailed, RunStateCompleted, true},
		{"Failed to Pending", RunStateFailed, RunStatePending, true},

		{"Unknown source state", RunState("bogus"), RunStateRunning, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTransition(%v, %v) error = %v, wantErr %v",
					tt.from, tt.to, err, tt.wantErr)
			}
		})
	}
}

func TestIsTerminalState(t *testing.T) {
	tests := []struct {
		name     string
		state    RunState
		expected bool
	}{
		{"Completed is terminal", RunStateCompleted, true},
		{"Failed is terminal", RunStateFailed, true},
		{"Pending is not terminal", RunStatePending, false},
		{"Starting is not terminal", RunStateStarting, false},
		{"Running is not terminal", RunStateRunning, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTerminalState(tt.state); got != tt.expected {
				t.Errorf("IsTerminalState(%v) = %v, want %v", tt.state, got, tt.expected)
			}
		})
	}
}
