// Package breaker implements the shared failure- and cost-rate limiter that
// gates every heal attempt before any LLM spend is committed.
package breaker

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/glaciousm/intent-healer-sub001/internal/config"
)

// State is the breaker's circuit state.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Stats is a point-in-time snapshot for operators.
type Stats struct {
	State           State   `json:"state"`
	FailureCount    int     `json:"failure_count"`
	SuccessCount    int     `json:"success_count"`
	DailyCost       float64 `json:"daily_cost"`
	DailyCostLimit  float64 `json:"daily_cost_limit"`
	OpenedDueToCost bool    `json:"opened_due_to_cost"`
}

// Breaker is shared by all concurrent attempts in a run. All mutable fields
// are guarded by mu as a unit: incrementing cost and comparing it against the
// limit happen under the same critical section, so two concurrent attempts
// cannot both pass on a stale total.
//
// There is no background timer. The OPEN to HALF_OPEN transition is computed
// lazily on the next state read.
type Breaker struct {
	mu  sync.Mutex
	cfg config.BreakerConfig

	state           State
	failureCount    int
	successCount    int // consecutive successes, meaningful only while HALF_OPEN
	halfOpenProbes  int
	dailyCost       float64
	openedDueToCost bool
	openedAt        time.Time

	now    func() time.Time
	logger *zap.Logger
}

// New creates a closed breaker.
func New(cfg config.BreakerConfig, logger *zap.Logger) *Breaker {
	return &Breaker{
		cfg:    cfg,
		state:  StateClosed,
		now:    time.Now,
		logger: logger.Named("breaker"),
	}
}

// refreshLocked recomputes time- and cost-dependent state. Caller holds mu.
func (b *Breaker) refreshLocked() {
	// Cost exhaustion dominates: the breaker stays (or becomes) OPEN for as
	// long as the daily spend exceeds the limit, regardless of elapsed time.
	if b.costExceededLocked() {
		if b.state != StateOpen {
			b.openLocked(true)
		}
		return
	}
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.OpenDuration {
		b.state = StateHalfOpen
		b.halfOpenProbes = 0
		b.successCount = 0
		b.logger.Info("Circuit transitioned to HALF_OPEN, probing healing again")
	}
}

func (b *Breaker) costExceededLocked() bool {
	return b.cfg.DailyCostLimitUSD > 0 && b.dailyCost > b.cfg.DailyCostLimitUSD
}

// openLocked trips the circuit, recording which trigger fired so operators
// can tell "the model is unreliable" apart from "we spent the budget".
func (b *Breaker) openLocked(dueToCost bool) {
	b.state = StateOpen
	b.openedAt = b.now()
	b.openedDueToCost = dueToCost
	b.logger.Warn("Circuit opened, healing suspended",
		zap.Bool("due_to_cost", dueToCost),
		zap.Int("failure_count", b.failureCount),
		zap.Float64("daily_cost_usd", b.dailyCost),
	)
}

// IsHealingAllowed reports whether a new attempt may proceed. While
// HALF_OPEN, at most HalfOpenMaxAttempts calls are admitted before further
// attempts are refused until the next OPEN to HALF_OPEN transition.
func (b *Breaker) IsHealingAllowed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()

	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.halfOpenProbes < b.cfg.HalfOpenMaxAttempts {
			b.halfOpenProbes++
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess records a successful heal, with the attempt's LLM cost when
// one was incurred. While HALF_OPEN, SuccessThresholdToClose consecutive
// successes close the circuit.
func (b *Breaker) RecordSuccess(cost float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addCostLocked(cost)
	b.refreshLocked()

	switch b.state {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThresholdToClose {
			b.state = StateClosed
			b.failureCount = 0
			b.successCount = 0
			b.halfOpenProbes = 0
			b.openedDueToCost = false
			b.logger.Info("Circuit closed after successful probes")
		}
	case StateClosed:
		// A success breaks any consecutive-failure streak.
		b.failureCount = 0
	}
}

// RecordFailure records a failed heal attempt. A single failure while
// HALF_OPEN reopens immediately; consecutive failures while CLOSED open the
// circuit exactly when the count reaches FailureThreshold.
func (b *Breaker) RecordFailure(cost float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addCostLocked(cost)
	b.refreshLocked()

	switch b.state {
	case StateHalfOpen:
		b.failureCount++
		b.openLocked(false)
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.openLocked(false)
		}
	default:
		b.failureCount++
	}
}

// RecordRefusal records a guardrail refusal. Refusals are expected, benign
// traffic: they never touch the failure or success counters, so a strict
// guardrail configuration cannot starve the breaker.
func (b *Breaker) RecordRefusal() {
	b.logger.Debug("Guardrail refusal recorded; breaker counters unchanged")
}

// AddCost adds an attempt's spend to the daily accumulator. Negative deltas
// are ignored (defends against double-refund bugs). A limit of 0 disables
// cost-triggered opening entirely.
func (b *Breaker) AddCost(amount float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addCostLocked(amount)
	b.refreshLocked()
}

func (b *Breaker) addCostLocked(amount float64) {
	if amount <= 0 {
		return
	}
	b.dailyCost += amount
}

// Reset clears the failure-side state and closes the circuit. The daily cost
// accumulator is untouched; if spend still exceeds the limit, the next state
// read reopens the circuit.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
	b.successCount = 0
	b.halfOpenProbes = 0
	b.openedDueToCost = false
}

// ResetDailyCost zeroes the cost accumulator and, when the current OPEN was
// cost-triggered, closes the circuit.
func (b *Breaker) ResetDailyCost() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dailyCost = 0
	if b.state == StateOpen && b.openedDueToCost {
		b.state = StateClosed
		b.openedDueToCost = false
	}
}

// ForceOpen trips the circuit unconditionally.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openLocked(false)
}

// State returns the current state after lazy refresh.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state
}

// IsOpenedDueToCost reports whether the current OPEN was cost-triggered.
func (b *Breaker) IsOpenedDueToCost() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state == StateOpen && b.openedDueToCost
}

// GetStats returns a snapshot of the breaker's counters.
func (b *Breaker) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return Stats{
		State:           b.state,
		FailureCount:    b.failureCount,
		SuccessCount:    b.successCount,
		DailyCost:       b.dailyCost,
		DailyCostLimit:  b.cfg.DailyCostLimitUSD,
		OpenedDueToCost: b.openedDueToCost,
	}
}
