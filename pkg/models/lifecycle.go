package models

import "fmt"

// RunState is one state of the run lifecycle FSM
type RunState string

const (
	RunStatePending   RunState = "pending"   // identity known, nothing validated yet
	RunStateStarting  RunState = "starting"  // schema fetched, arguments validated, start in flight
	RunStateRunning   RunState = "running"   // platform acknowledged start, generator executing
	RunStateCompleted RunState = "completed" // terminal
	RunStateFailed    RunState = "failed"    // terminal
)

// validTransitions maps from-state to allowed to-states
var validTransitions = map[RunState]map[RunState]bool{
	RunStatePending: {
		RunStateStarting: true, // Pending → Starting (descriptor fetched, arguments valid)
	},
	RunStateStarting: {
		RunStateRunning: true, // Starting → Running (start acknowledged)
		RunStateFailed:  true, // Starting → Failed (start rejected, must not stay stuck)
	},
	RunStateRunning: {
		RunStateCompleted: true, // Running → Completed (clean generator exit)
		RunStateFailed:    true, // Running → Failed (crash, non-zero exit, interrupt)
	},
	// Terminal states
	RunStateCompleted: {},
	RunStateFailed:    {},
}

// ValidateTransition checks if a lifecycle transition is valid
func ValidateTransition(from, to RunState) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source state: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminalState returns true for states with no outgoing transitions
func IsTerminalState(state RunState) bool {
	return state == RunStateCompleted || state == RunStateFailed
}
