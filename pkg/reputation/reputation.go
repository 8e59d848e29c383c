package reputation

import (
	"sort"
	"sync"
	"time"
)

const maxReasonableLatency = 60.0

// Record is a worker's reputation snapshot, suitable for JSON responses.
type Record struct {
	WorkerID             string     `json:"client_id"`
	ReputationScore      float64    `json:"reputation_score"`
	RoundsParticipated   int        `json:"rounds_participated"`
	RoundsCompleted      int        `json:"rounds_completed"`
	RoundsDropped        int        `json:"rounds_dropped"`
	CompletionRate       float64    `json:"completion_rate"`
	UpdatesSubmitted     int        `json:"updates_submitted"`
	UpdatesAccepted      int        `json:"updates_accepted"`
	UpdatesRejected      int        `json:"updates_rejected"`
	AcceptanceRate       float64    `json:"acceptance_rate"`
	DropoutRate          float64    `json:"dropout_rate"`
	AverageLatencySecond float64    `json:"average_latency_seconds"`
	FirstSeen            *time.Time `json:"first_seen"`
	LastSeen             *time.Time `json:"last_seen"`
}

type entry struct {
	workerID           string
	roundsParticipated int
	roundsCompleted    int
	roundsDropped      int
	updatesSubmitted   int
	updatesAccepted    int
	updatesRejected    int
	totalLatencySecond float64
	latencySamples     int
	firstSeen          time.Time
	lastSeen           time.Time
}

func (e *entry) dropoutRate() float64 {
	if e.roundsParticipated == 0 {
		return 0
	}
	return float64(e.roundsDropped) / float64(e.roundsParticipated)
}

func (e *entry) acceptanceRate() float64 {
	if e.updatesSubmitted == 0 {
		return 1
	}
	return float64(e.updatesAccepted) / float64(e.updatesSubmitted)
}

func (e *entry) completionRate() float64 {
	if e.roundsParticipated == 0 {
		return 0
	}
	return float64(e.roundsCompleted) / float64(e.roundsParticipated)
}

func (e *entry) averageLatency() float64 {
	if e.latencySamples == 0 {
		return 0
	}
	return e.totalLatencySecond / float64(e.latencySamples)
}

func (e *entry) score() float64 {
	completion := e.completionRate()
	acceptance := e.acceptanceRate()
	dropout := 1.0 - e.dropoutRate()

	normalizedLatency := 1.0 - e.averageLatency()/maxReasonableLatency
	if normalizedLatency < 0 {
		normalizedLatency = 0
	}
	if normalizedLatency > 1 {
		normalizedLatency = 1
	}

	score := completion*0.4 + acceptance*0.3 + dropout*0.2 + normalizedLatency*0.1
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func (e *entry) record() Record {
	firstSeen := e.firstSeen
	lastSeen := e.lastSeen
	return Record{
		WorkerID:             e.workerID,
		ReputationScore:      e.score(),
		RoundsParticipated:   e.roundsParticipated,
		RoundsCompleted:      e.roundsCompleted,
		RoundsDropped:        e.roundsDropped,
		CompletionRate:       e.completionRate(),
		UpdatesSubmitted:     e.updatesSubmitted,
		UpdatesAccepted:      e.updatesAccepted,
		UpdatesRejected:      e.updatesRejected,
		AcceptanceRate:       e.acceptanceRate(),
		DropoutRate:          e.dropoutRate(),
		AverageLatencySecond: e.averageLatency(),
		FirstSeen:            &firstSeen,
		LastSeen:             &lastSeen,
	}
}

// Tracker accumulates per-worker reputation counters. All event recording
// methods register the worker implicitly, matching the original's
// register-on-every-call behavior.
type Tracker struct {
	mu             sync.Mutex
	workers        map[string]*entry
	workerRounds   map[string]map[int]struct{}
	roundStartedAt map[int]time.Time
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{
		workers:        make(map[string]*entry),
		workerRounds:   make(map[string]map[int]struct{}),
		roundStartedAt: make(map[int]time.Time),
	}
}

func (t *Tracker) registerLocked(workerID string) *entry {
	now := time.Now()
	e, ok := t.workers[workerID]
	if !ok {
		e = &entry{workerID: workerID, firstSeen: now}
		t.workers[workerID] = e
		t.workerRounds[workerID] = make(map[int]struct{})
	}
	e.lastSeen = now
	return e
}

// RegisterWorker registers workerID or refreshes its last-seen time.
func (t *Tracker) RegisterWorker(workerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.registerLocked(workerID)
}

// RecordRoundStart records when roundID began, for later latency samples.
func (t *Tracker) RecordRoundStart(roundID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roundStartedAt[roundID] = time.Now()
}

// RecordParticipation marks workerID as participating in roundID.
func (t *Tracker) RecordParticipation(workerID string, roundID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.registerLocked(workerID)
	e.roundsParticipated++
	t.workerRounds[workerID][roundID] = struct{}{}
}

// RecordUpdateSubmitted records a submission and, if the round's start time
// is known, samples latency as now minus that start time.
func (t *Tracker) RecordUpdateSubmitted(workerID string, roundID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.registerLocked(workerID)
	e.updatesSubmitted++

	if startedAt, ok := t.roundStartedAt[roundID]; ok {
		e.totalLatencySecond += time.Since(startedAt).Seconds()
		e.latencySamples++
	}
}

// RecordUpdateAccepted records an accepted update from workerID.
func (t *Tracker) RecordUpdateAccepted(workerID string, roundID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.registerLocked(workerID).updatesAccepted++
}

// RecordUpdateRejected records a rejected update from workerID.
func (t *Tracker) RecordUpdateRejected(workerID string, roundID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.registerLocked(workerID).updatesRejected++
}

// RecordCompletion marks workerID as having completed roundID, but only if
// workerID was previously recorded as participating in it.
func (t *Tracker) RecordCompletion(workerID string, roundID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.registerLocked(workerID)
	if _, ok := t.workerRounds[workerID][roundID]; ok {
		e.roundsCompleted++
	}
}

// RecordDropout marks workerID as having dropped out of roundID, but only
// if workerID was previously recorded as participating in it.
func (t *Tracker) RecordDropout(workerID string, roundID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.registerLocked(workerID)
	if _, ok := t.workerRounds[workerID][roundID]; ok {
		e.roundsDropped++
	}
}

// Get returns workerID's reputation record.
func (t *Tracker) Get(workerID string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.workers[workerID]
	if !ok {
		return Record{}, false
	}
	return e.record(), true
}

// Score returns workerID's reputation score, or 0 if unknown.
func (t *Tracker) Score(workerID string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.workers[workerID]
	if !ok {
		return 0
	}
	return e.score()
}

// All returns every tracked worker's reputation record, keyed by worker id.
func (t *Tracker) All() map[string]Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Record, len(t.workers))
	for id, e := range t.workers {
		out[id] = e.record()
	}
	return out
}

// TopN returns the n workers with the highest reputation score, descending.
func (t *Tracker) TopN(n int) []Record {
	t.mu.Lock()
	records := make([]Record, 0, len(t.workers))
	for _, e := range t.workers {
		records = append(records, e.record())
	}
	t.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].ReputationScore > records[j].ReputationScore
	})
	if n >= 0 && n < len(records) {
		records = records[:n]
	}
	return records
}
