package metricscollector

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/fedcoord/pkg/log"
	"github.com/rs/zerolog"
)

// RoundMetrics is the metrics snapshot for a single round, suitable for
// JSON serialization and disk persistence.
type RoundMetrics struct {
	RoundID              int        `json:"round_id"`
	ModelVersion          string     `json:"model_version"`
	RoundStartTime        time.Time  `json:"round_start_time"`
	RoundEndTime          *time.Time `json:"round_end_time"`
	ClientsAssigned       int        `json:"clients_assigned"`
	UpdatesReceived       int        `json:"updates_received"`
	UpdatesAccepted       int        `json:"updates_accepted"`
	UpdatesRejected       int        `json:"updates_rejected"`
	AggregationStartTime  *time.Time `json:"aggregation_start_time"`
	AggregationEndTime    *time.Time `json:"aggregation_end_time"`
	RoundDurationSeconds  *float64   `json:"round_duration_seconds"`
	AggregationTimeSecond *float64   `json:"aggregation_time_seconds"`
}

func (m *RoundMetrics) computeDerived() {
	if m.RoundEndTime != nil {
		d := m.RoundEndTime.Sub(m.RoundStartTime).Seconds()
		m.RoundDurationSeconds = &d
	}
	if m.AggregationStartTime != nil && m.AggregationEndTime != nil {
		d := m.AggregationEndTime.Sub(*m.AggregationStartTime).Seconds()
		m.AggregationTimeSecond = &d
	}
}

// GlobalSnapshot summarizes counters that span all rounds.
type GlobalSnapshot struct {
	TotalClientsSeen    int `json:"total_clients_seen"`
	TotalFailedUpdates  int `json:"total_failed_updates"`
	TotalRounds         int `json:"total_rounds"`
}

// AllMetrics is the full dump returned by Snapshot.
type AllMetrics struct {
	Global GlobalSnapshot          `json:"global"`
	Rounds map[int]*RoundMetrics   `json:"rounds"`
}

// Collector tracks metrics per round and maintains global statistics,
// persisting a JSON file and a rolling text log per round on EndRound.
type Collector struct {
	metricsDir string
	logsDir    string
	logger     zerolog.Logger

	mu                sync.Mutex
	rounds            map[int]*RoundMetrics
	currentRoundID    int
	totalClientsSeen  map[string]struct{}
	totalFailedUpdates int
}

// New creates a Collector that persists round snapshots under metricsDir
// and appends round summaries to logsDir/rounds.log. Both directories are
// created if missing.
func New(metricsDir, logsDir string) (*Collector, error) {
	if err := os.MkdirAll(metricsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}
	return &Collector{
		metricsDir:       metricsDir,
		logsDir:          logsDir,
		logger:           log.WithComponent("metrics"),
		rounds:           make(map[int]*RoundMetrics),
		totalClientsSeen: make(map[string]struct{}),
	}, nil
}

// StartRound begins tracking metrics for roundID.
func (c *Collector) StartRound(roundID int, modelVersion string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentRoundID = roundID
	c.rounds[roundID] = &RoundMetrics{
		RoundID:        roundID,
		ModelVersion:   modelVersion,
		RoundStartTime: time.Now(),
	}
}

// RecordClientAssigned records that workerID was assigned to roundID.
func (c *Collector) RecordClientAssigned(roundID int, workerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.rounds[roundID]; ok {
		m.ClientsAssigned++
		c.totalClientsSeen[workerID] = struct{}{}
	}
}

// RecordUpdateReceived records that an update was received for roundID.
func (c *Collector) RecordUpdateReceived(roundID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.rounds[roundID]; ok {
		m.UpdatesReceived++
	}
}

// RecordUpdateAccepted records that an update for roundID passed validation.
func (c *Collector) RecordUpdateAccepted(roundID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.rounds[roundID]; ok {
		m.UpdatesAccepted++
	}
}

// RecordUpdateRejected records that an update for roundID failed validation.
func (c *Collector) RecordUpdateRejected(roundID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.rounds[roundID]; ok {
		m.UpdatesRejected++
		c.totalFailedUpdates++
	}
}

// StartAggregation records the start of aggregation for roundID.
func (c *Collector) StartAggregation(roundID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.rounds[roundID]; ok {
		now := time.Now()
		m.AggregationStartTime = &now
	}
}

// CompleteAggregation records the completion of aggregation for roundID,
// distinct from EndRound: aggregation can complete slightly before the
// round itself is closed and persisted.
func (c *Collector) CompleteAggregation(roundID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.rounds[roundID]; ok {
		now := time.Now()
		m.AggregationEndTime = &now
	}
}

// EndRound closes tracking for roundID, then persists its metrics as JSON
// and appends a human-readable summary. Persistence failures are logged,
// not returned: a metrics write never fails the round it describes.
func (c *Collector) EndRound(roundID int) {
	c.mu.Lock()
	m, ok := c.rounds[roundID]
	if ok {
		now := time.Now()
		m.RoundEndTime = &now
		m.computeDerived()
	}
	c.mu.Unlock()

	if !ok {
		return
	}

	if err := c.persistRoundMetrics(m); err != nil {
		c.logger.Warn().Err(err).Int("round_id", roundID).Msg("failed to persist round metrics")
	}
	if err := c.appendSummaryLog(m); err != nil {
		c.logger.Warn().Err(err).Int("round_id", roundID).Msg("failed to append round summary")
	}
}

func (c *Collector) persistRoundMetrics(m *RoundMetrics) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal round %d metrics: %w", m.RoundID, err)
	}
	path := filepath.Join(c.metricsDir, fmt.Sprintf("round_%d.json", m.RoundID))
	return os.WriteFile(path, data, 0o644)
}

func (c *Collector) appendSummaryLog(m *RoundMetrics) error {
	f, err := os.OpenFile(filepath.Join(c.logsDir, "rounds.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open rounds.log: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "[%s] Round %d (Model %s)\n", time.Now().UTC().Format(time.RFC3339), m.RoundID, m.ModelVersion)
	fmt.Fprintf(f, "  Clients assigned: %d\n", m.ClientsAssigned)
	fmt.Fprintf(f, "  Updates received: %d\n", m.UpdatesReceived)
	fmt.Fprintf(f, "  Updates accepted: %d\n", m.UpdatesAccepted)
	fmt.Fprintf(f, "  Updates rejected: %d\n", m.UpdatesRejected)
	if m.RoundDurationSeconds != nil {
		fmt.Fprintf(f, "  Round duration: %.2fs\n", *m.RoundDurationSeconds)
	}
	if m.AggregationTimeSecond != nil {
		fmt.Fprintf(f, "  Aggregation time: %.2fs\n", *m.AggregationTimeSecond)
	}
	fmt.Fprintln(f)
	return nil
}

// RoundSnapshot returns a copy of roundID's metrics, or ok=false if unknown
// in memory and not found on disk.
func (c *Collector) RoundSnapshot(roundID int) (RoundMetrics, bool) {
	c.mu.Lock()
	m, ok := c.rounds[roundID]
	var cp RoundMetrics
	if ok {
		cp = *m
		cp.computeDerived()
	}
	c.mu.Unlock()
	if ok {
		return cp, true
	}

	data, err := os.ReadFile(filepath.Join(c.metricsDir, fmt.Sprintf("round_%d.json", roundID)))
	if err != nil {
		return RoundMetrics{}, false
	}
	var loaded RoundMetrics
	if err := json.Unmarshal(data, &loaded); err != nil {
		return RoundMetrics{}, false
	}
	return loaded, true
}

// LatestRoundSnapshot returns the metrics for the most recently started
// in-memory round.
func (c *Collector) LatestRoundSnapshot() (RoundMetrics, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.rounds[c.currentRoundID]
	if !ok {
		return RoundMetrics{}, false
	}
	return *m, true
}

// Snapshot returns every tracked round's metrics plus global counters.
func (c *Collector) Snapshot() AllMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	rounds := make(map[int]*RoundMetrics, len(c.rounds))
	for id, m := range c.rounds {
		cp := *m
		rounds[id] = &cp
	}

	return AllMetrics{
		Global: GlobalSnapshot{
			TotalClientsSeen:   len(c.totalClientsSeen),
			TotalFailedUpdates: c.totalFailedUpdates,
			TotalRounds:        len(c.rounds),
		},
		Rounds: rounds,
	}
}
