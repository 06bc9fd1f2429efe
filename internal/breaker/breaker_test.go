package breaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/glaciousm/intent-healer-sub001/internal/config"
)

func testConfig() config.BreakerConfig {
	return config.BreakerConfig{
		FailureThreshold:        3,
		SuccessThresholdToClose: 2,
		OpenDuration:            time.Minute,
		HalfOpenMaxAttempts:     2,
		DailyCostLimitUSD:       10.0,
	}
}

func newTestBreaker(t *testing.T, cfg config.BreakerConfig) (*Breaker, *time.Time) {
	t.Helper()
	b := New(cfg, zap.NewNop())
	current := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return current }
	return b, &current
}

func TestBreakerOpensExactlyAtFailureThreshold(t *testing.T) {
	b, _ := newTestBreaker(t, testConfig())

	b.RecordFailure(0)
	b.RecordFailure(0)
	assert.Equal(t, StateClosed, b.State(), "below threshold must stay closed")

	b.RecordFailure(0)
	assert.Equal(t, StateOpen, b.State(), "third consecutive failure must open")
	assert.False(t, b.IsHealingAllowed())
	assert.False(t, b.IsOpenedDueToCost())
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	b, _ := newTestBreaker(t, testConfig())

	b.RecordFailure(0)
	b.RecordFailure(0)
	b.RecordSuccess(0)
	b.RecordFailure(0)
	b.RecordFailure(0)

	assert.Equal(t, StateClosed, b.State(), "streak was broken, four non-consecutive failures must not open")
}

func TestBreakerHalfOpenAfterOpenDuration(t *testing.T) {
	b, current := newTestBreaker(t, testConfig())

	for i := 0; i < 3; i++ {
		b.RecordFailure(0)
	}
	require.Equal(t, StateOpen, b.State())

	*current = current.Add(59 * time.Second)
	assert.False(t, b.IsHealingAllowed(), "still inside the open window")

	*current = current.Add(2 * time.Second)
	assert.Equal(t, StateHalfOpen, b.State())
	assert.True(t, b.IsHealingAllowed(), "first probe admitted")
	assert.True(t, b.IsHealingAllowed(), "second probe admitted")
	assert.False(t, b.IsHealingAllowed(), "probe quota exhausted")
}

func TestBreakerClosesAfterConsecutiveHalfOpenSuccesses(t *testing.T) {
	b, current := newTestBreaker(t, testConfig())

	for i := 0; i < 3; i++ {
		b.RecordFailure(0)
	}
	*current = current.Add(2 * time.Minute)
	require.Equal(t, StateHalfOpen, b.State())

	b.RecordSuccess(0)
	assert.Equal(t, StateHalfOpen, b.State(), "one success is not enough")
	b.RecordSuccess(0)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.GetStats().FailureCount)
}

func TestBreakerHalfOpenFailureReopensImmediately(t *testing.T) {
	b, current := newTestBreaker(t, testConfig())

	for i := 0; i < 3; i++ {
		b.RecordFailure(0)
	}
	*current = current.Add(2 * time.Minute)
	require.Equal(t, StateHalfOpen, b.State())

	b.RecordFailure(0)
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.IsHealingAllowed())
}

func TestBreakerOpensWhenDailyCostExceedsLimit(t *testing.T) {
	b, _ := newTestBreaker(t, testConfig())

	b.AddCost(10.0)
	assert.Equal(t, StateClosed, b.State(), "cost equal to the limit does not trip")

	b.AddCost(0.01)
	assert.Equal(t, StateOpen, b.State())
	assert.True(t, b.IsOpenedDueToCost())
	assert.False(t, b.IsHealingAllowed())
}

func TestBreakerCostOpenOutlastsOpenDuration(t *testing.T) {
	b, current := newTestBreaker(t, testConfig())

	b.AddCost(10.01)
	require.Equal(t, StateOpen, b.State())

	*current = current.Add(24 * time.Hour)
	assert.Equal(t, StateOpen, b.State(), "cost exhaustion must not decay with time")

	b.ResetDailyCost()
	assert.Equal(t, StateClosed, b.State())
	assert.False(t, b.IsOpenedDueToCost())
}

func TestBreakerZeroLimitDisablesCostTrigger(t *testing.T) {
	cfg := testConfig()
	cfg.DailyCostLimitUSD = 0
	b, _ := newTestBreaker(t, cfg)

	b.AddCost(1e6)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerIgnoresNegativeCost(t *testing.T) {
	b, _ := newTestBreaker(t, testConfig())

	b.AddCost(5.0)
	b.AddCost(-100.0)
	assert.Equal(t, 5.0, b.GetStats().DailyCost)
}

func TestBreakerRefusalsTouchNoCounters(t *testing.T) {
	b, _ := newTestBreaker(t, testConfig())

	b.RecordFailure(0)
	b.RecordFailure(0)
	for i := 0; i < 50; i++ {
		b.RecordRefusal()
	}

	stats := b.GetStats()
	assert.Equal(t, StateClosed, stats.State)
	assert.Equal(t, 2, stats.FailureCount)
}

func TestBreakerResetClearsFailuresButNotCost(t *testing.T) {
	b, _ := newTestBreaker(t, testConfig())

	for i := 0; i < 3; i++ {
		b.RecordFailure(1.0)
	}
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 3.0, b.GetStats().DailyCost, "daily spend survives a reset")
}

func TestBreakerResetDoesNotOutrunCostExhaustion(t *testing.T) {
	b, _ := newTestBreaker(t, testConfig())

	b.AddCost(11.0)
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateOpen, b.State(), "next read must reopen while spend exceeds the limit")
	assert.True(t, b.IsOpenedDueToCost())
}

func TestBreakerConcurrentCostAccounting(t *testing.T) {
	cfg := testConfig()
	cfg.DailyCostLimitUSD = 0
	b, _ := newTestBreaker(t, cfg)

	const goroutines = 20
	const perGoroutine = 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				b.AddCost(0.01)
			}
		}()
	}
	wg.Wait()

	assert.InDelta(t, float64(goroutines*perGoroutine)*0.01, b.GetStats().DailyCost, 1e-6)
}

func TestBreakerForceOpen(t *testing.T) {
	b, _ := newTestBreaker(t, testConfig())

	b.ForceOpen()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.IsHealingAllowed())
	assert.False(t, b.IsOpenedDueToCost())
}
