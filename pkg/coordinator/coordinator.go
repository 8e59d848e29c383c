package coordinator

import (
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/fedcoord/pkg/aggregator"
	"github.com/cuemby/fedcoord/pkg/asyncclose"
	"github.com/cuemby/fedcoord/pkg/authstore"
	"github.com/cuemby/fedcoord/pkg/incentive"
	"github.com/cuemby/fedcoord/pkg/log"
	"github.com/cuemby/fedcoord/pkg/metrics"
	"github.com/cuemby/fedcoord/pkg/metricscollector"
	"github.com/cuemby/fedcoord/pkg/modelstore"
	"github.com/cuemby/fedcoord/pkg/privacy"
	"github.com/cuemby/fedcoord/pkg/ratelimit"
	"github.com/cuemby/fedcoord/pkg/reputation"
	"github.com/cuemby/fedcoord/pkg/round"
	"github.com/cuemby/fedcoord/pkg/taskassign"
	"github.com/cuemby/fedcoord/pkg/types"
	"github.com/cuemby/fedcoord/pkg/validate"
	"github.com/cuemby/fedcoord/pkg/version"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config configures a Core. DataDir roots every persisted component
// (models, metrics, logs, and the bbolt-backed auth store). An empty
// DataDir keeps worker credentials in memory (see authstore.MemStore)
// while still persisting models and metrics under the working directory.
type Config struct {
	DataDir   string
	RateLimit ratelimit.Config
	Privacy   privacy.Config
	Incentive incentive.Config
	Async     asyncclose.Config
}

// DefaultConfig mirrors the coordinator's documented environment defaults.
func DefaultConfig() Config {
	return Config{
		DataDir:   "data",
		RateLimit: ratelimit.DefaultConfig(),
		Privacy:   privacy.DefaultConfig(),
		Incentive: incentive.DefaultConfig(),
		Async:     asyncclose.DefaultConfig(),
	}
}

// WorkerStatus combines a worker's reputation snapshot with its recent
// rate-limit activity. spec.md's endpoint table has no room for a
// dedicated rate-limit endpoint, so this data rides along on the
// reputation/status response instead.
type WorkerStatus struct {
	reputation.Record
	RateLimit ratelimit.Stats `json:"rate_limit"`
}

// Core is the process-wide coordinator aggregate: every component built to
// satisfy one piece of the federated-training protocol, wired together and
// threaded explicitly into the HTTP handlers that call it.
type Core struct {
	cfg Config

	rounds      *round.Manager
	auth        authstore.Store
	rateLimiter *ratelimit.Limiter
	privacy     *privacy.Filter
	models      modelstore.Store
	assigner    *taskassign.Assigner
	validator   *validate.Validator
	aggregator  *aggregator.Aggregator
	asyncCloser *asyncclose.Closer
	reputation  *reputation.Tracker
	incentive   *incentive.Ledger
	roundMetrics *metricscollector.Collector // round-level metrics persistence
	promMetrics  *metrics.Collector          // ambient Prometheus gauges

	logger zerolog.Logger

	mu                sync.Mutex
	results           map[int]aggregator.Result
	trackedRounds     map[int]bool
	lastAssignedRound map[string]int
}

// New builds a Core from cfg, creating any directories its components need.
func New(cfg Config) (*Core, error) {
	rounds := round.New()

	var auth authstore.Store
	if cfg.DataDir != "" {
		bolt, err := authstore.NewBoltStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open auth store: %w", err)
		}
		auth = bolt
	} else {
		auth = authstore.NewMemStore()
	}

	base := cfg.DataDir
	if base == "" {
		base = "."
	}
	models, err := modelstore.NewFileStore(filepath.Join(base, "models"))
	if err != nil {
		return nil, err
	}
	roundMetrics, err := metricscollector.New(filepath.Join(base, "metrics"), filepath.Join(base, "logs"))
	if err != nil {
		return nil, err
	}

	rateLimiter := ratelimit.New(cfg.RateLimit)
	assigner := taskassign.New(rounds, version.Initial())
	agg := aggregator.New(rounds, models, assigner, rateLimiter, roundMetrics)
	filter := privacy.New(cfg.Privacy, rand.NewSource(time.Now().UnixNano()))
	reputationTracker := reputation.New()
	ledger := incentive.New(cfg.Incentive)
	validator := validate.New(validate.Dependencies{Rounds: rounds, Auth: auth, RateLimiter: rateLimiter})

	c := &Core{
		cfg:               cfg,
		rounds:            rounds,
		auth:              auth,
		rateLimiter:       rateLimiter,
		privacy:           filter,
		models:            models,
		assigner:          assigner,
		validator:         validator,
		aggregator:        agg,
		reputation:        reputationTracker,
		incentive:         ledger,
		roundMetrics:      roundMetrics,
		promMetrics:       metrics.NewCollector(rounds, ledger),
		logger:            log.WithComponent("coordinator"),
		results:           make(map[int]aggregator.Result),
		trackedRounds:     make(map[int]bool),
		lastAssignedRound: make(map[string]int),
	}
	c.asyncCloser = asyncclose.New(cfg.Async, rounds, c.onRoundReady)

	if !models.Exists(version.Initial()) {
		seed := map[string]any{"version": version.Initial(), "base_version": nil, "note": "initial model, no aggregation yet"}
		if err := models.Save(version.Initial(), seed); err != nil {
			return nil, fmt.Errorf("failed to seed initial model: %w", err)
		}
	}

	return c, nil
}

// Start brings up background work: the async-close ticker and the
// ambient Prometheus collector. It also registers the components it owns
// with the health checker.
func (c *Core) Start() {
	c.asyncCloser.Run()
	c.promMetrics.Start()
	metrics.RegisterComponent("round_manager", true, "")
	metrics.RegisterComponent("model_store", true, "")
}

// Shutdown stops background work and releases any held resources.
func (c *Core) Shutdown() error {
	c.asyncCloser.Shutdown()
	c.promMetrics.Stop()
	if closer, ok := c.auth.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// RegisterWorker mints a new worker identity and API key. Unlike the
// original coordinator, the identifier is a freshly generated UUID rather
// than the caller-supplied name, so registration never collides on name
// reuse (see the Open Questions in the project's design notes).
func (c *Core) RegisterWorker(name string) (workerID, apiKey string, err error) {
	workerID = uuid.New().String()

	if !c.rounds.RegisterWorker(workerID) {
		return "", "", ErrAlreadyRegistered
	}
	rec, err := c.auth.Issue(workerID, name)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrAlreadyRegistered, err)
	}
	c.reputation.RegisterWorker(workerID)

	c.logger.Info().Str("worker_id", workerID).Str("worker_name", name).Msg("worker registered")
	return workerID, rec.APIKey, nil
}

// GetTask authenticates and rate-limits a task request, then hands back
// workerID's current training assignment.
func (c *Core) GetTask(workerID, apiKey string) (types.Task, error) {
	if err := c.auth.ValidateFor(workerID, apiKey); err != nil {
		return types.Task{}, ErrUnauthenticated
	}
	if ok, _ := c.rateLimiter.CheckRequest(workerID, time.Now()); !ok {
		return types.Task{}, ErrRateLimited
	}

	task, ok := c.assigner.Assign(workerID)
	if !ok {
		return types.Task{}, ErrNotFound
	}

	c.trackAssignment(workerID, task)
	return task, nil
}

// trackAssignment records the bookkeeping side effects of a task
// assignment exactly once per round and once per worker-round pair, no
// matter how many times the worker polls for its (unchanged) task.
func (c *Core) trackAssignment(workerID string, task types.Task) {
	c.mu.Lock()
	isNewRound := !c.trackedRounds[task.RoundID]
	c.trackedRounds[task.RoundID] = true

	last, hadLast := c.lastAssignedRound[workerID]
	alreadyCounted := hadLast && last == task.RoundID
	c.lastAssignedRound[workerID] = task.RoundID
	c.mu.Unlock()

	if isNewRound {
		c.roundMetrics.StartRound(task.RoundID, task.ModelVersion)
		c.reputation.RecordRoundStart(task.RoundID)
		c.asyncCloser.Start(task.RoundID)
	}
	if !alreadyCounted {
		c.roundMetrics.RecordClientAssigned(task.RoundID, workerID)
		c.reputation.RecordParticipation(workerID, task.RoundID)
	}
}

// SubmitUpdate runs workerID's weight-delta submission through the fixed
// admission chain, protects the accepted delta before handing it to the
// aggregator, and awards incentive tokens on acceptance.
func (c *Core) SubmitUpdate(workerID string, roundID int, apiKey, weightDeltaJSON string) error {
	if c.asyncCloser.RecordStraggler(workerID, roundID) {
		c.reputation.RecordDropout(workerID, roundID)
		c.incentive.RecordDropout(workerID)
		metrics.UpdatesRejectedTotal.WithLabelValues("straggler").Inc()
		c.logger.Warn().Str("worker_id", workerID).Int("round_id", roundID).Msg("rejected straggler update")
		return ErrStraggler
	}

	c.reputation.RecordUpdateSubmitted(workerID, roundID)
	c.roundMetrics.RecordUpdateReceived(roundID)
	metrics.UpdatesSubmittedTotal.Inc()

	if ok, reason := c.validator.Validate(workerID, roundID, apiKey, weightDeltaJSON); !ok {
		c.reputation.RecordUpdateRejected(workerID, roundID)
		c.roundMetrics.RecordUpdateRejected(roundID)
		metrics.UpdatesRejectedTotal.WithLabelValues(reason).Inc()
		return reasonToError(reason)
	}

	if doc, ok := privacy.ParseDocument(weightDeltaJSON); ok {
		if tensors, ok := privacy.ExtractTensors(doc); ok {
			if tensorsClipped(tensors, c.privacy.Clip(tensors)) {
				metrics.PrivacyClipsTotal.Inc()
			}
		}
	}
	protected := c.privacy.ProtectDocument(weightDeltaJSON)

	firstSubmission := true
	if snap, ok := c.rounds.Status(roundID); ok {
		for _, w := range snap.UpdatesReceived {
			if w == workerID {
				firstSubmission = false
				break
			}
		}
	}

	if !c.aggregator.Submit(workerID, roundID, protected) {
		c.reputation.RecordUpdateRejected(workerID, roundID)
		c.roundMetrics.RecordUpdateRejected(roundID)
		metrics.UpdatesRejectedTotal.WithLabelValues(validate.ReasonInvalidRoundAssignment).Inc()
		return ErrInvalidRound
	}

	c.rateLimiter.RecordUpdate(workerID, roundID)
	if firstSubmission {
		c.reputation.RecordUpdateAccepted(workerID, roundID)
		c.roundMetrics.RecordUpdateAccepted(roundID)
		metrics.UpdatesAcceptedTotal.Inc()
	}

	c.incentive.AwardUpdate(workerID, roundID, c.latencySince(roundID))

	if !c.cfg.Async.Enabled && c.rounds.Saturated(roundID) {
		c.runAggregation(roundID)
	}
	return nil
}

func (c *Core) latencySince(roundID int) *time.Duration {
	snap, ok := c.roundMetrics.RoundSnapshot(roundID)
	if !ok {
		return nil
	}
	d := time.Since(snap.RoundStartTime)
	return &d
}

func tensorsClipped(orig, clipped [][]float64) bool {
	for i := range orig {
		for j := range orig[i] {
			if orig[i][j] != clipped[i][j] {
				return true
			}
		}
	}
	return false
}

func reasonToError(reason string) error {
	switch reason {
	case validate.ReasonAuthenticationFailed:
		return ErrUnauthenticated
	case validate.ReasonClientNotRegistered, validate.ReasonInvalidRoundAssignment:
		return ErrInvalidRound
	case validate.ReasonRateLimitExceeded:
		return ErrRateLimited
	case validate.ReasonInvalidDeltaFormat:
		return ErrBadDelta
	case validate.ReasonNonFiniteValues:
		return ErrNonFinite
	default:
		return ErrBadDelta
	}
}

// onRoundReady is the asyncclose.Closer's OnReady callback: it fires the
// first time a tracked round reaches quorum or times out.
func (c *Core) onRoundReady(roundID int) {
	c.runAggregation(roundID)
}

// runAggregation closes roundID, publishing a new model version if any
// updates were collected, and folds the outcome into reputation,
// incentives, and metrics.
func (c *Core) runAggregation(roundID int) {
	if c.asyncCloser.IsClosed(roundID) {
		return
	}
	snap, ok := c.rounds.Status(roundID)
	if !ok {
		return
	}

	result, ok := c.aggregator.Aggregate(roundID)
	if !ok {
		return
	}
	c.asyncCloser.MarkClosed(roundID)

	c.mu.Lock()
	c.results[roundID] = result
	c.mu.Unlock()

	received := make(map[string]struct{}, len(snap.UpdatesReceived))
	for _, w := range snap.UpdatesReceived {
		received[w] = struct{}{}
		c.reputation.RecordCompletion(w, roundID)
	}
	for _, w := range snap.AssignedWorkers {
		if _, ok := received[w]; !ok {
			c.reputation.RecordDropout(w, roundID)
			c.incentive.RecordDropout(w)
		}
	}

	metrics.RoundsTotal.WithLabelValues(result.Status).Inc()
	if rm, ok := c.roundMetrics.RoundSnapshot(roundID); ok {
		if rm.RoundDurationSeconds != nil {
			metrics.RoundDuration.Observe(*rm.RoundDurationSeconds)
		}
		if rm.AggregationTimeSecond != nil {
			metrics.AggregationDuration.Observe(*rm.AggregationTimeSecond)
		}
	}

	c.logger.Info().Int("round_id", roundID).Str("status", result.Status).
		Int("num_updates", result.NumUpdates).Msg("round aggregated")
}

// GetAggregate reports roundID's aggregation outcome, or its live progress
// if the round has not closed yet.
func (c *Core) GetAggregate(roundID int) (aggregator.Result, error) {
	snap, ok := c.rounds.Status(roundID)
	if !ok {
		return aggregator.Result{}, ErrNotFound
	}

	c.mu.Lock()
	result, done := c.results[roundID]
	c.mu.Unlock()
	if done {
		return result, nil
	}

	status := "collecting"
	if snap.State == types.RoundAggregating {
		status = "aggregating"
	}
	return aggregator.Result{
		RoundID:      roundID,
		ModelVersion: snap.ModelVersion,
		Status:       status,
		NumUpdates:   snap.TotalUpdates,
	}, nil
}

// GetStatus returns roundID's membership and state snapshot.
func (c *Core) GetStatus(roundID int) (types.RoundSnapshot, error) {
	snap, ok := c.rounds.Status(roundID)
	if !ok {
		return types.RoundSnapshot{}, ErrNotFound
	}
	return snap, nil
}

// GetModel loads the persisted artifact for the given model version.
func (c *Core) GetModel(modelVersion string) (map[string]any, error) {
	doc, err := c.models.Load(modelVersion)
	if err != nil {
		switch {
		case errors.Is(err, modelstore.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, modelstore.ErrCorrupt):
			return nil, ErrCorrupt
		default:
			return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
		}
	}
	return doc, nil
}

// GetReputation returns workerID's reputation and rate-limit snapshot.
func (c *Core) GetReputation(workerID string) (WorkerStatus, error) {
	rec, ok := c.reputation.Get(workerID)
	if !ok {
		return WorkerStatus{}, ErrNotFound
	}
	return WorkerStatus{Record: rec, RateLimit: c.rateLimiter.StatsFor(workerID, time.Now())}, nil
}

// TopReputation returns the n workers with the highest reputation score.
func (c *Core) TopReputation(n int) []WorkerStatus {
	records := c.reputation.TopN(n)
	out := make([]WorkerStatus, len(records))
	for i, rec := range records {
		out[i] = WorkerStatus{Record: rec, RateLimit: c.rateLimiter.StatsFor(rec.WorkerID, time.Now())}
	}
	return out
}

// GetIncentives returns workerID's incentive ledger snapshot.
func (c *Core) GetIncentives(workerID string) (incentive.Record, error) {
	rec, ok := c.incentive.Get(workerID)
	if !ok {
		return incentive.Record{}, ErrNotFound
	}
	return rec, nil
}

// TopIncentives returns the n workers with the highest token earnings.
func (c *Core) TopIncentives(n int) []incentive.Record {
	return c.incentive.TopEarners(n)
}

// GetAsyncStats returns roundID's quorum/timeout statistics.
func (c *Core) GetAsyncStats(roundID int) (asyncclose.Stats, error) {
	stats, ok := c.asyncCloser.StatsFor(roundID)
	if !ok {
		return asyncclose.Stats{}, ErrNotFound
	}
	return stats, nil
}

// GetMetricsSnapshot returns every tracked round's metrics plus global counters.
func (c *Core) GetMetricsSnapshot() metricscollector.AllMetrics {
	return c.roundMetrics.Snapshot()
}

// GetLatestRoundMetrics returns metrics for the most recently started round.
func (c *Core) GetLatestRoundMetrics() (metricscollector.RoundMetrics, error) {
	m, ok := c.roundMetrics.LatestRoundSnapshot()
	if !ok {
		return metricscollector.RoundMetrics{}, ErrNotFound
	}
	return m, nil
}

// GetRoundMetrics returns metrics for a specific round.
func (c *Core) GetRoundMetrics(roundID int) (metricscollector.RoundMetrics, error) {
	m, ok := c.roundMetrics.RoundSnapshot(roundID)
	if !ok {
		return metricscollector.RoundMetrics{}, ErrNotFound
	}
	return m, nil
}
