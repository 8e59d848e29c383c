package asyncclose

import (
	"sync"
	"time"

	"github.com/cuemby/fedcoord/pkg/log"
	"github.com/cuemby/fedcoord/pkg/round"
	"github.com/rs/zerolog"
)

// Config controls quorum-based early closure.
type Config struct {
	MinUpdates  int
	MaxDuration time.Duration
	Enabled     bool
}

// DefaultConfig mirrors the spec's suggested environment defaults.
func DefaultConfig() Config {
	return Config{MinUpdates: 2, MaxDuration: 300 * time.Second, Enabled: false}
}

// Straggler records an update that arrived for a round that had already
// closed.
type Straggler struct {
	WorkerID  string
	RoundID   int
	Timestamp time.Time
}

// Stats mirrors the original coordinator's per-round async statistics.
type Stats struct {
	RoundID           int           `json:"round_id"`
	Assigned          int           `json:"assigned"`
	Received          int           `json:"received"`
	MinimumRequired   int           `json:"minimum_required"`
	IsReady           bool          `json:"is_ready"`
	Stragglers        int           `json:"stragglers"`
	ElapsedSeconds    *float64      `json:"elapsed_seconds,omitempty"`
	TimeoutSeconds    *float64      `json:"timeout_seconds,omitempty"`
	TimeoutRemaining  *float64      `json:"timeout_remaining,omitempty"`
}

// OnReady is invoked the first time a tracked round transitions to ready.
type OnReady func(roundID int)

// Closer supervises a round.Manager, tracking per-round start times for
// timeout evaluation and stragglers for rounds that already closed.
type Closer struct {
	cfg     Config
	rounds  *round.Manager
	onReady OnReady
	logger  zerolog.Logger

	mu         sync.Mutex
	startTimes map[int]time.Time
	closed     map[int]struct{}
	fired      map[int]struct{}
	stragglers map[int][]Straggler

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Closer. onReady may be nil.
func New(cfg Config, rounds *round.Manager, onReady OnReady) *Closer {
	return &Closer{
		cfg:        cfg,
		rounds:     rounds,
		onReady:    onReady,
		logger:     log.WithComponent("asyncclose"),
		startTimes: make(map[int]time.Time),
		closed:     make(map[int]struct{}),
		fired:      make(map[int]struct{}),
		stragglers: make(map[int][]Straggler),
	}
}

// Start records roundID's start time for timeout tracking.
func (c *Closer) Start(roundID int) {
	if !c.cfg.Enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTimes[roundID] = time.Now()
}

// Ready reports whether roundID has reached quorum or timed out. When async
// mode is disabled, it degenerates to "every assigned worker has submitted".
func (c *Closer) Ready(roundID int) bool {
	snap, ok := c.rounds.Status(roundID)
	if !ok {
		return false
	}

	if !c.cfg.Enabled {
		return snap.Saturated()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, closed := c.closed[roundID]; closed {
		return false
	}

	if snap.TotalUpdates >= c.cfg.MinUpdates {
		return true
	}

	if start, ok := c.startTimes[roundID]; ok {
		if time.Since(start) >= c.cfg.MaxDuration {
			return true
		}
	}
	return false
}

// RecordStraggler appends a straggler record if roundID has already closed,
// returning whether the submission was in fact a straggler.
func (c *Closer) RecordStraggler(workerID string, roundID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, closed := c.closed[roundID]; !closed {
		return false
	}
	c.stragglers[roundID] = append(c.stragglers[roundID], Straggler{
		WorkerID:  workerID,
		RoundID:   roundID,
		Timestamp: time.Now(),
	})
	return true
}

// IsClosed reports whether roundID has been marked closed.
func (c *Closer) IsClosed(roundID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.closed[roundID]
	return ok
}

// MarkClosed records roundID as closed and stops tracking its start time.
func (c *Closer) MarkClosed(roundID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed[roundID] = struct{}{}
	delete(c.startTimes, roundID)
}

// StatsFor builds the async statistics snapshot for roundID.
func (c *Closer) StatsFor(roundID int) (Stats, bool) {
	snap, ok := c.rounds.Status(roundID)
	if !ok {
		return Stats{}, false
	}

	minRequired := c.cfg.MinUpdates
	if !c.cfg.Enabled {
		minRequired = snap.TotalAssigned
	}

	c.mu.Lock()
	start, hasStart := c.startTimes[roundID]
	numStragglers := len(c.stragglers[roundID])
	c.mu.Unlock()

	stats := Stats{
		RoundID:         roundID,
		Assigned:        snap.TotalAssigned,
		Received:        snap.TotalUpdates,
		MinimumRequired: minRequired,
		IsReady:         c.Ready(roundID),
		Stragglers:      numStragglers,
	}

	if hasStart {
		elapsed := time.Since(start).Seconds()
		timeout := c.cfg.MaxDuration.Seconds()
		remaining := timeout - elapsed
		if remaining < 0 {
			remaining = 0
		}
		stats.ElapsedSeconds = &elapsed
		stats.TimeoutSeconds = &timeout
		stats.TimeoutRemaining = &remaining
	}

	return stats, true
}

// Run starts the background readiness ticker. It returns immediately; call
// Shutdown to stop it.
func (c *Closer) Run() {
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	go c.tick()
}

func (c *Closer) tick() {
	defer close(c.doneCh)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.evaluateAll()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Closer) evaluateAll() {
	c.mu.Lock()
	roundIDs := make([]int, 0, len(c.startTimes))
	for id := range c.startTimes {
		roundIDs = append(roundIDs, id)
	}
	c.mu.Unlock()

	for _, id := range roundIDs {
		if !c.Ready(id) {
			continue
		}
		c.mu.Lock()
		_, alreadyFired := c.fired[id]
		if !alreadyFired {
			c.fired[id] = struct{}{}
		}
		c.mu.Unlock()

		if alreadyFired {
			continue
		}
		c.logger.Debug().Int("round_id", id).Msg("round reached quorum or timeout")
		if c.onReady != nil {
			c.onReady(id)
		}
	}
}

// Shutdown stops the background ticker and waits up to 2s for it to drain.
func (c *Closer) Shutdown() {
	if c.stopCh == nil {
		return
	}
	close(c.stopCh)
	select {
	case <-c.doneCh:
	case <-time.After(2 * time.Second):
		c.logger.Warn().Msg("timed out waiting for ticker to stop")
	}
}
