package taskassign

import (
	"fmt"
	"sync"

	"github.com/cuemby/fedcoord/pkg/round"
	"github.com/cuemby/fedcoord/pkg/types"
)

// VersionSink lets a component advance the assigner's current model
// version without holding a reference to the whole Assigner.
type VersionSink interface {
	SetVersion(version string)
}

// Assigner hands out training tasks against the coordinator's current model
// version, caching one assignment per worker.
type Assigner struct {
	rounds *round.Manager

	mu          sync.Mutex
	version     string
	assignments map[string]types.Task
}

// New creates an Assigner starting at initialVersion.
func New(rounds *round.Manager, initialVersion string) *Assigner {
	return &Assigner{
		rounds:      rounds,
		version:     initialVersion,
		assignments: make(map[string]types.Task),
	}
}

// Assign returns workerID's task, either its still-live cached assignment or
// a freshly delegated one. ok is false if the worker is unregistered.
func (a *Assigner) Assign(workerID string) (types.Task, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cached, ok := a.assignments[workerID]; ok {
		snap, exists := a.rounds.Status(cached.RoundID)
		if exists && (snap.State == types.RoundOpen || snap.State == types.RoundCollecting) && !snap.Saturated() {
			return cached, true
		}
		delete(a.assignments, workerID)
	}

	roundID, ok := a.rounds.Assign(workerID, a.version)
	if !ok {
		if cached, wasCached := a.assignments[workerID]; wasCached {
			return cached, true
		}
		return types.Task{}, false
	}

	task := types.Task{
		RoundID:      roundID,
		ModelVersion: a.version,
		Task:         "train",
		Description:  fmt.Sprintf("train model version %s for round %d", a.version, roundID),
	}
	a.assignments[workerID] = task
	return task, true
}

// SetVersion advances the current model version used for new assignments.
func (a *Assigner) SetVersion(version string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.version = version
}

// Version returns the current model version.
func (a *Assigner) Version() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.version
}

var _ VersionSink = (*Assigner)(nil)
