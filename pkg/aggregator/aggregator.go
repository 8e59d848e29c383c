package aggregator

import (
	"sync"
	"time"

	"github.com/cuemby/fedcoord/pkg/log"
	"github.com/cuemby/fedcoord/pkg/modelstore"
	"github.com/cuemby/fedcoord/pkg/ratelimit"
	"github.com/cuemby/fedcoord/pkg/round"
	"github.com/cuemby/fedcoord/pkg/taskassign"
	"github.com/cuemby/fedcoord/pkg/types"
	"github.com/cuemby/fedcoord/pkg/version"
	"github.com/rs/zerolog"
)

// MetricsSink is the subset of metricscollector.Collector the aggregator
// drives directly, kept as an interface so this package never imports the
// concrete metrics collector.
type MetricsSink interface {
	StartAggregation(roundID int)
	CompleteAggregation(roundID int)
	EndRound(roundID int)
}

// Result is the outcome of an aggregation attempt.
type Result struct {
	RoundID         int            `json:"round_id"`
	ModelVersion    string         `json:"model_version"`
	Status          string         `json:"status"`
	AggregatedModel map[string]any `json:"aggregated_model"`
	NumUpdates      int            `json:"num_updates"`
}

type updateRecord struct {
	workerID string
	delta    string
}

// Aggregator buffers submitted deltas per round and produces the next model
// version when a round closes.
type Aggregator struct {
	rounds      *round.Manager
	models      modelstore.Store
	versions    taskassign.VersionSink
	rateLimiter *ratelimit.Limiter
	metrics     MetricsSink
	logger      zerolog.Logger

	mu      sync.Mutex
	updates map[int][]updateRecord
	index   map[int]map[string]int // round -> worker id -> index into updates[round]
}

// New creates an Aggregator. rateLimiter and metrics may be nil.
func New(rounds *round.Manager, models modelstore.Store, versions taskassign.VersionSink, rateLimiter *ratelimit.Limiter, metrics MetricsSink) *Aggregator {
	return &Aggregator{
		rounds:      rounds,
		models:      models,
		versions:    versions,
		rateLimiter: rateLimiter,
		metrics:     metrics,
		logger:      log.WithComponent("aggregator"),
		updates:     make(map[int][]updateRecord),
		index:       make(map[int]map[string]int),
	}
}

// Submit records workerID's delta against roundID, overwriting any prior
// submission from the same worker in this round. It returns false if
// RoundManager rejects the update (unregistered worker, unknown round,
// wrong state).
func (a *Aggregator) Submit(workerID string, roundID int, delta string) bool {
	if !a.rounds.RecordUpdate(workerID, roundID) {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	idx, ok := a.index[roundID]
	if !ok {
		idx = make(map[string]int)
		a.index[roundID] = idx
	}

	if pos, exists := idx[workerID]; exists {
		a.updates[roundID][pos].delta = delta
	} else {
		idx[workerID] = len(a.updates[roundID])
		a.updates[roundID] = append(a.updates[roundID], updateRecord{workerID: workerID, delta: delta})
	}
	return true
}

// Aggregate closes roundID, persisting a new model version if any updates
// were collected. ok is false only if roundID is unknown.
func (a *Aggregator) Aggregate(roundID int) (Result, bool) {
	snap, ok := a.rounds.Status(roundID)
	if !ok {
		return Result{}, false
	}

	a.rounds.SetState(roundID, types.RoundAggregating)
	if a.metrics != nil {
		a.metrics.StartAggregation(roundID)
	}

	a.mu.Lock()
	records := a.updates[roundID]
	a.mu.Unlock()

	if len(records) == 0 {
		if a.metrics != nil {
			a.metrics.CompleteAggregation(roundID)
		}
		a.rounds.SetState(roundID, types.RoundClosed)
		if a.metrics != nil {
			a.metrics.EndRound(roundID)
		}
		return Result{
			RoundID:      roundID,
			ModelVersion: snap.ModelVersion,
			Status:       "no_updates",
			NumUpdates:   0,
		}, true
	}

	newVersion, err := version.Next(snap.ModelVersion)
	if err != nil {
		a.logger.Error().Err(err).Int("round_id", roundID).Str("version", snap.ModelVersion).
			Msg("round carries an invalid model version, reusing it for the published artifact")
		newVersion = snap.ModelVersion
	}

	deltas := make([]string, len(records))
	clientIDs := make([]string, len(records))
	for i, rec := range records {
		deltas[i] = rec.delta
		clientIDs[i] = rec.workerID
	}

	document := map[string]any{
		"version":               newVersion,
		"base_version":          snap.ModelVersion,
		"round_id":              roundID,
		"weight_deltas":         deltas,
		"num_updates":           len(records),
		"client_ids":            clientIDs,
		"aggregation_timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := a.models.Save(newVersion, document); err != nil {
		a.logger.Error().Err(err).Str("version", newVersion).
			Msg("failed to persist aggregated model, closing round anyway")
	}

	if a.metrics != nil {
		a.metrics.CompleteAggregation(roundID)
	}

	a.versions.SetVersion(newVersion)
	a.rounds.SetState(roundID, types.RoundClosed)

	if a.rateLimiter != nil {
		a.rateLimiter.ResetRound(roundID)
	}

	a.mu.Lock()
	delete(a.updates, roundID)
	delete(a.index, roundID)
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.EndRound(roundID)
	}

	return Result{
		RoundID:         roundID,
		ModelVersion:    newVersion,
		Status:          "aggregated",
		AggregatedModel: document,
		NumUpdates:      len(records),
	}, true
}
