package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Config bounds a worker's request and update rates.
type Config struct {
	MaxRequestsPerMinute int
	MaxRequestsPerHour   int
	MaxUpdatesPerRound   int
}

// DefaultConfig mirrors the original coordinator's defaults.
func DefaultConfig() Config {
	return Config{
		MaxRequestsPerMinute: 60,
		MaxRequestsPerHour:   1000,
		MaxUpdatesPerRound:   5,
	}
}

// Stats summarizes a worker's recent activity.
type Stats struct {
	RequestsLastMinute    int `json:"requests_last_minute"`
	RequestsLastHour      int `json:"requests_last_hour"`
	TotalRoundsWithUpdate int `json:"total_rounds_with_updates"`
}

type workerState struct {
	requestTimestamps []time.Time
	updatesPerRound   map[int]int
}

// Limiter tracks per-worker request and update rates.
type Limiter struct {
	cfg Config

	mu       sync.Mutex
	workers  map[string]*workerState
	rounds   map[int]map[string]struct{} // round -> worker ids with updates, for reset
}

// New creates a Limiter with the given configuration.
func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:     cfg,
		workers: make(map[string]*workerState),
		rounds:  make(map[int]map[string]struct{}),
	}
}

func (l *Limiter) stateFor(workerID string) *workerState {
	st, ok := l.workers[workerID]
	if !ok {
		st = &workerState{updatesPerRound: make(map[int]int)}
		l.workers[workerID] = st
	}
	return st
}

// CheckRequest reports whether workerID may make another request now,
// recording the request if so. now is injected for deterministic tests.
func (l *Limiter) CheckRequest(workerID string, now time.Time) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.stateFor(workerID)

	hourAgo := now.Add(-time.Hour)
	kept := st.requestTimestamps[:0]
	for _, ts := range st.requestTimestamps {
		if ts.After(hourAgo) {
			kept = append(kept, ts)
		}
	}
	st.requestTimestamps = kept

	if len(st.requestTimestamps) >= l.cfg.MaxRequestsPerHour {
		return false, fmt.Sprintf("worker %s exceeded max requests per hour (%d)", workerID, l.cfg.MaxRequestsPerHour)
	}

	minuteAgo := now.Add(-time.Minute)
	recent := 0
	for _, ts := range st.requestTimestamps {
		if ts.After(minuteAgo) {
			recent++
		}
	}
	if recent >= l.cfg.MaxRequestsPerMinute {
		return false, fmt.Sprintf("worker %s exceeded max requests per minute (%d)", workerID, l.cfg.MaxRequestsPerMinute)
	}

	st.requestTimestamps = append(st.requestTimestamps, now)
	return true, ""
}

// CheckUpdate reports whether workerID may submit another update for
// roundID without exceeding the per-round cap.
func (l *Limiter) CheckUpdate(workerID string, roundID int) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.stateFor(workerID)
	if st.updatesPerRound[roundID] >= l.cfg.MaxUpdatesPerRound {
		return false, fmt.Sprintf("worker %s exceeded max updates per round (%d)", workerID, l.cfg.MaxUpdatesPerRound)
	}
	return true, ""
}

// RecordUpdate records that workerID submitted an update for roundID.
func (l *Limiter) RecordUpdate(workerID string, roundID int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.stateFor(workerID)
	st.updatesPerRound[roundID]++

	seen, ok := l.rounds[roundID]
	if !ok {
		seen = make(map[string]struct{})
		l.rounds[roundID] = seen
	}
	seen[workerID] = struct{}{}
}

// ResetRound clears per-round update counters for every worker that
// participated in roundID, once it has closed.
func (l *Limiter) ResetRound(roundID int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for workerID := range l.rounds[roundID] {
		if st, ok := l.workers[workerID]; ok {
			delete(st.updatesPerRound, roundID)
		}
	}
	delete(l.rounds, roundID)
}

// StatsFor returns a snapshot of workerID's recent activity as of now.
func (l *Limiter) StatsFor(workerID string, now time.Time) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.workers[workerID]
	if !ok {
		return Stats{}
	}

	minuteAgo := now.Add(-time.Minute)
	hourAgo := now.Add(-time.Hour)
	var lastMinute, lastHour int
	for _, ts := range st.requestTimestamps {
		if ts.After(hourAgo) {
			lastHour++
		}
		if ts.After(minuteAgo) {
			lastMinute++
		}
	}

	return Stats{
		RequestsLastMinute:    lastMinute,
		RequestsLastHour:      lastHour,
		TotalRoundsWithUpdate: len(st.updatesPerRound),
	}
}
