package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_CheckRequest_PerMinute(t *testing.T) {
	l := New(Config{MaxRequestsPerMinute: 2, MaxRequestsPerHour: 100, MaxUpdatesPerRound: 5})
	base := time.Unix(1_700_000_000, 0)

	ok, _ := l.CheckRequest("w1", base)
	assert.True(t, ok)
	ok, _ = l.CheckRequest("w1", base.Add(time.Second))
	assert.True(t, ok)
	ok, reason := l.CheckRequest("w1", base.Add(2*time.Second))
	assert.False(t, ok)
	assert.Contains(t, reason, "per minute")
}

func TestLimiter_CheckRequest_WindowSlides(t *testing.T) {
	l := New(Config{MaxRequestsPerMinute: 1, MaxRequestsPerHour: 100, MaxUpdatesPerRound: 5})
	base := time.Unix(1_700_000_000, 0)

	ok, _ := l.CheckRequest("w1", base)
	assert.True(t, ok)
	ok, _ = l.CheckRequest("w1", base.Add(61*time.Second))
	assert.True(t, ok, "request outside the one-minute window should be allowed")
}

func TestLimiter_CheckRequest_PerHour(t *testing.T) {
	l := New(Config{MaxRequestsPerMinute: 1000, MaxRequestsPerHour: 1, MaxUpdatesPerRound: 5})
	base := time.Unix(1_700_000_000, 0)

	ok, _ := l.CheckRequest("w1", base)
	assert.True(t, ok)
	ok, reason := l.CheckRequest("w1", base.Add(time.Second))
	assert.False(t, ok)
	assert.Contains(t, reason, "per hour")
}

func TestLimiter_CheckUpdate_PerRoundCap(t *testing.T) {
	l := New(Config{MaxUpdatesPerRound: 2})

	ok, _ := l.CheckUpdate("w1", 1)
	assert.True(t, ok)
	l.RecordUpdate("w1", 1)

	ok, _ = l.CheckUpdate("w1", 1)
	assert.True(t, ok)
	l.RecordUpdate("w1", 1)

	ok, reason := l.CheckUpdate("w1", 1)
	assert.False(t, ok)
	assert.Contains(t, reason, "per round")
}

func TestLimiter_ResetRound(t *testing.T) {
	l := New(DefaultConfig())
	l.RecordUpdate("w1", 1)
	l.RecordUpdate("w2", 1)

	l.ResetRound(1)

	ok, _ := l.CheckUpdate("w1", 1)
	assert.True(t, ok)
	assert.Equal(t, 0, l.StatsFor("w1", time.Now()).TotalRoundsWithUpdate)
}

func TestLimiter_StatsFor_UnknownWorker(t *testing.T) {
	l := New(DefaultConfig())
	assert.Equal(t, Stats{}, l.StatsFor("ghost", time.Now()))
}
