package types

import "time"

// RoundState is one state in the round state machine.
//
// Legal transitions: OPEN -> COLLECTING -> AGGREGATING -> CLOSED.
// AGGREGATING is set-once; re-entry is forbidden.
type RoundState string

const (
	RoundOpen        RoundState = "OPEN"
	RoundCollecting  RoundState = "COLLECTING"
	RoundAggregating RoundState = "AGGREGATING"
	RoundClosed      RoundState = "CLOSED"
)

// Worker is a registered federated-training participant.
type Worker struct {
	ID        string
	Name      string
	FirstSeen time.Time
	LastSeen  time.Time
}

// Task is handed to a worker in response to a task request.
type Task struct {
	RoundID      int    `json:"round_id"`
	ModelVersion string `json:"model_version"`
	Task         string `json:"task"`
	Description  string `json:"description"`
}

// RoundSnapshot is a read-only view of a round's membership and state.
type RoundSnapshot struct {
	RoundID         int        `json:"round_id"`
	ModelVersion    string     `json:"model_version"`
	State           RoundState `json:"state"`
	AssignedWorkers []string   `json:"assigned_workers"`
	UpdatesReceived []string   `json:"updates_received"`
	TotalAssigned   int        `json:"total_assigned"`
	TotalUpdates    int        `json:"total_updates"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Saturated reports whether every assigned worker in the snapshot has
// submitted an update: |updates_received| >= |assigned_workers| > 0.
func (s RoundSnapshot) Saturated() bool {
	return s.TotalAssigned > 0 && s.TotalUpdates >= s.TotalAssigned
}
