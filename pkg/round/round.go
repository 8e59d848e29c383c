package round

import (
	"sync"
	"time"

	"github.com/cuemby/fedcoord/pkg/types"
)

type roundRecord struct {
	roundID         int
	version         string
	state           types.RoundState
	assignedOrder   []string
	assignedSet     map[string]struct{}
	receivedOrder   []string
	receivedSet     map[string]struct{}
	createdAt       time.Time
}

func newRoundRecord(id int, version string) *roundRecord {
	return &roundRecord{
		roundID:     id,
		version:     version,
		state:       types.RoundOpen,
		assignedSet: make(map[string]struct{}),
		receivedSet: make(map[string]struct{}),
		createdAt:   time.Now(),
	}
}

func (r *roundRecord) saturated() bool {
	return len(r.assignedSet) > 0 && len(r.receivedSet) >= len(r.assignedSet)
}

func (r *roundRecord) assign(workerID string) {
	if _, ok := r.assignedSet[workerID]; ok {
		return
	}
	r.assignedSet[workerID] = struct{}{}
	r.assignedOrder = append(r.assignedOrder, workerID)
}

func (r *roundRecord) receive(workerID string) {
	if _, ok := r.receivedSet[workerID]; ok {
		return
	}
	r.receivedSet[workerID] = struct{}{}
	r.receivedOrder = append(r.receivedOrder, workerID)
}

var legalTransitions = map[types.RoundState][]types.RoundState{
	types.RoundOpen:        {types.RoundCollecting},
	types.RoundCollecting:  {types.RoundAggregating},
	types.RoundAggregating: {types.RoundClosed},
	types.RoundClosed:      {},
}

func canTransition(from, to types.RoundState) bool {
	if from == to {
		return true
	}
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Manager owns the worker registry and the round state machine.
type Manager struct {
	mu            sync.Mutex
	workers       map[string]struct{}
	rounds        map[int]*roundRecord
	activeByWorker map[string]int
	nextRoundID   int
}

// New creates an empty Manager.
func New() *Manager {
	return &Manager{
		workers:        make(map[string]struct{}),
		rounds:         make(map[int]*roundRecord),
		activeByWorker: make(map[string]int),
		nextRoundID:    1,
	}
}

// RegisterWorker adds id to the worker set. It returns false if the worker
// was already registered.
func (m *Manager) RegisterWorker(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workers[id]; ok {
		return false
	}
	m.workers[id] = struct{}{}
	return true
}

// IsRegistered reports whether id has been registered.
func (m *Manager) IsRegistered(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.workers[id]
	return ok
}

// Assign binds workerID to a round running modelVersion, returning the round
// id and true on success. It returns (0, false) if workerID is not
// registered, or if the worker already holds a live, matching, unsaturated
// assignment (the caller should re-read that assignment instead).
func (m *Manager) Assign(workerID, modelVersion string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workers[workerID]; !ok {
		return 0, false
	}

	if activeID, ok := m.activeByWorker[workerID]; ok {
		if active, exists := m.rounds[activeID]; exists {
			if active.saturated() {
				delete(m.activeByWorker, workerID)
			} else if active.state == types.RoundOpen || active.state == types.RoundCollecting {
				if active.version == modelVersion {
					return 0, false
				}
				delete(m.activeByWorker, workerID)
			}
		} else {
			delete(m.activeByWorker, workerID)
		}
	}

	var target *roundRecord
	for id := 1; id < m.nextRoundID; id++ {
		r, ok := m.rounds[id]
		if !ok {
			continue
		}
		if r.state != types.RoundOpen && r.state != types.RoundCollecting {
			continue
		}
		if r.version != modelVersion {
			continue
		}
		if r.saturated() {
			continue
		}
		target = r
		break
	}

	if target == nil {
		id := m.nextRoundID
		m.nextRoundID++
		target = newRoundRecord(id, modelVersion)
		m.rounds[id] = target
	}

	target.assign(workerID)
	m.activeByWorker[workerID] = target.roundID
	if target.state == types.RoundOpen {
		target.state = types.RoundCollecting
	}

	return target.roundID, true
}

// ValidateUpdate reports whether workerID may currently submit an update
// against roundID.
func (m *Manager) ValidateUpdate(workerID string, roundID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validateUpdateLocked(workerID, roundID)
}

func (m *Manager) validateUpdateLocked(workerID string, roundID int) bool {
	if _, ok := m.workers[workerID]; !ok {
		return false
	}
	r, ok := m.rounds[roundID]
	if !ok {
		return false
	}
	if _, ok := r.assignedSet[workerID]; !ok {
		return false
	}
	return r.state == types.RoundCollecting || r.state == types.RoundAggregating
}

// RecordUpdate records workerID's update against roundID, returning false if
// the submission is not currently valid.
func (m *Manager) RecordUpdate(workerID string, roundID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.validateUpdateLocked(workerID, roundID) {
		return false
	}
	m.rounds[roundID].receive(workerID)
	return true
}

// SetState transitions roundID to state, returning false if the round is
// unknown or the transition is not legal.
func (m *Manager) SetState(roundID int, state types.RoundState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rounds[roundID]
	if !ok {
		return false
	}
	if !canTransition(r.state, state) {
		return false
	}
	r.state = state
	return true
}

// Status returns a read-only snapshot of roundID.
func (m *Manager) Status(roundID int) (types.RoundSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rounds[roundID]
	if !ok {
		return types.RoundSnapshot{}, false
	}

	assigned := make([]string, len(r.assignedOrder))
	copy(assigned, r.assignedOrder)
	received := make([]string, len(r.receivedOrder))
	copy(received, r.receivedOrder)

	return types.RoundSnapshot{
		RoundID:         r.roundID,
		ModelVersion:    r.version,
		State:           r.state,
		AssignedWorkers: assigned,
		UpdatesReceived: received,
		TotalAssigned:   len(assigned),
		TotalUpdates:    len(received),
		CreatedAt:       r.createdAt,
	}, true
}

// Saturated reports whether roundID has received updates from every
// assigned worker.
func (m *Manager) Saturated(roundID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rounds[roundID]
	if !ok {
		return false
	}
	return r.saturated()
}

// WorkerCount returns the number of registered workers.
func (m *Manager) WorkerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workers)
}

// CountByState returns the number of rounds currently in each RoundState.
func (m *Manager) CountByState() map[types.RoundState]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[types.RoundState]int)
	for _, r := range m.rounds {
		counts[r.state]++
	}
	return counts
}
