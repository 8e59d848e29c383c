package metrics

import (
	"time"

	"github.com/cuemby/fedcoord/pkg/incentive"
	"github.com/cuemby/fedcoord/pkg/round"
	"github.com/cuemby/fedcoord/pkg/types"
)

// Collector periodically republishes round.Manager and incentive.Ledger
// state as Prometheus gauges.
type Collector struct {
	rounds    *round.Manager
	incentive *incentive.Ledger
	interval  time.Duration
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewCollector creates a Collector polling rounds and the ledger every 15
// seconds. ledger may be nil.
func NewCollector(rounds *round.Manager, ledger *incentive.Ledger) *Collector {
	return &Collector{
		rounds:    rounds,
		incentive: ledger,
		interval:  15 * time.Second,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins collecting metrics in a background goroutine.
func (c *Collector) Start() {
	go func() {
		defer close(c.doneCh)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop signals the collector to exit and waits up to 2 seconds for it to do so.
func (c *Collector) Stop() {
	close(c.stopCh)
	select {
	case <-c.doneCh:
	case <-time.After(2 * time.Second):
	}
}

func (c *Collector) collect() {
	c.collectRoundMetrics()
	c.collectIncentiveMetrics()
}

func (c *Collector) collectRoundMetrics() {
	ActiveWorkers.Set(float64(c.rounds.WorkerCount()))

	counts := c.rounds.CountByState()
	for _, state := range []types.RoundState{
		types.RoundOpen, types.RoundCollecting, types.RoundAggregating, types.RoundClosed,
	} {
		RoundsByState.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}

func (c *Collector) collectIncentiveMetrics() {
	if c.incentive == nil {
		return
	}
	var total float64
	for _, rec := range c.incentive.All() {
		total += rec.TotalTokensEarned
	}
	TokensOutstanding.Set(total)
}
