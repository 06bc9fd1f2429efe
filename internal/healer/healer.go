// Package healer is the decision pipeline's front door. The Engine receives
// one locator failure at a time, runs it through the circuit breaker, the
// guardrails, the heal cache and the trust gate, and only then spends an LLM
// call. Every attempt ends in exactly one terminal outcome.
package healer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/glaciousm/intent-healer-sub001/api/schemas"
	"github.com/glaciousm/intent-healer-sub001/internal/breaker"
	"github.com/glaciousm/intent-healer-sub001/internal/guardrail"
	"github.com/glaciousm/intent-healer-sub001/internal/healcache"
	"github.com/glaciousm/intent-healer-sub001/internal/orchestrator"
	"github.com/glaciousm/intent-healer-sub001/internal/trust"
)

// Engine coordinates one heal attempt end to end. All dependencies are
// explicit; the engine holds no process-wide state and two engines never
// share counters unless handed the same components.
type Engine struct {
	breaker   *breaker.Breaker
	guard     *guardrail.Checker
	cache     *healcache.Cache
	trust     *trust.Manager
	orch      *orchestrator.Orchestrator
	snapshots schemas.SnapshotProvider
	executor  schemas.ActionExecutor
	registry  *Registry
	summary   *Summary
	logger    *zap.Logger
}

// NewEngine validates and wires the pipeline. The snapshot provider and
// executor may be nil only for suggestion-only deployments that never apply
// a heal.
func NewEngine(
	brk *breaker.Breaker,
	guard *guardrail.Checker,
	cache *healcache.Cache,
	trustMgr *trust.Manager,
	orch *orchestrator.Orchestrator,
	snapshots schemas.SnapshotProvider,
	executor schemas.ActionExecutor,
	registry *Registry,
	summary *Summary,
	logger *zap.Logger,
) (*Engine, error) {
	if brk == nil || guard == nil || cache == nil || trustMgr == nil || orch == nil {
		return nil, fmt.Errorf("engine requires breaker, guardrails, cache, trust manager and orchestrator")
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if summary == nil {
		summary = NewSummary()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		breaker:   brk,
		guard:     guard,
		cache:     cache,
		trust:     trustMgr,
		orch:      orch,
		snapshots: snapshots,
		executor:  executor,
		registry:  registry,
		summary:   summary,
		logger:    logger.Named("healer"),
	}, nil
}

// Summary exposes the run accumulator.
func (e *Engine) Summary() *Summary {
	return e.summary
}

// Heal runs the full pipeline for one failure and returns exactly one
// terminal result. It never panics outward; an internal panic becomes a
// FAILED result that preserves the original failure message.
func (e *Engine) Heal(ctx context.Context, failure *schemas.FailureContext, intent schemas.IntentContract) (result *schemas.HealResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic during heal attempt, reporting original failure",
				zap.Any("panic", r),
				zap.String("step", failure.StepText))
			result = &schemas.HealResult{
				Outcome: schemas.OutcomeFailed,
				Message: fmt.Sprintf("healing aborted by internal error; original failure: %s", failure.ExceptionMessage),
			}
		}
		e.summary.Record(failure.Scenario, result)
	}()

	// Every attempt gets a correlation id so one heal's log lines can be
	// pulled out of a noisy concurrent run.
	log := e.logger.With(
		zap.String("attempt_id", uuid.NewString()),
		zap.String("scenario", failure.Scenario),
		zap.String("step", failure.StepText),
		zap.String("locator", failure.Locator.String()),
	)

	// The breaker is consulted before anything else. When it is open the
	// attempt costs nothing and touches no other component.
	if !e.breaker.IsHealingAllowed() {
		log.Info("Healing blocked by circuit breaker", zap.String("state", string(e.breaker.State())))
		return e.refused(schemas.Refuse(schemas.GuardrailCircuitBreaker,
			"circuit breaker is %s", e.breaker.State()), 0)
	}

	if !failure.Kind.Healable() && failure.Kind != schemas.FailureAssertion {
		return e.refused(schemas.Refuse(schemas.GuardrailGeneral,
			"failure kind %s is not healable", failure.Kind), 0)
	}

	if gr := e.guard.CheckURL(failure.PageURL); !gr.Proceed {
		log.Info("Healing refused", zap.String("type", string(gr.Type)), zap.String("reason", gr.Reason))
		return e.refused(gr, 0)
	}
	if gr := e.guard.CheckPreLLM(failure, intent); !gr.Proceed {
		log.Info("Healing refused", zap.String("type", string(gr.Type)), zap.String("reason", gr.Reason))
		return e.refused(gr, 0)
	}

	key := healcache.NewKey(failure.PageURL, failure.Locator, failure.Action)
	if hit, ok := e.cache.Get(key); ok {
		log.Info("Cache hit, skipping LLM",
			zap.String("healed", hit.Locator.String()),
			zap.Float64("confidence", hit.Confidence))
		return e.apply(ctx, failure, intent, hit.Locator, &schemas.HealDecision{
			CanHeal:    true,
			Confidence: hit.Confidence,
			Reasoning:  hit.Reasoning,
		}, key, true, 0, nil)
	}

	if gr := e.guard.CheckAttemptBudget(failure.Scenario, e.summary.AttemptCount(failure.Scenario)); !gr.Proceed {
		log.Info("Healing refused", zap.String("type", string(gr.Type)), zap.String("reason", gr.Reason))
		return e.refused(gr, 0)
	}

	if e.snapshots == nil {
		return e.failed(0, "no snapshot provider configured", failure)
	}
	snapshot, err := e.snapshots.CaptureSnapshot(ctx, failure)
	if err != nil {
		log.Error("Snapshot capture failed", zap.Error(err))
		e.breaker.RecordFailure(0)
		return e.failed(0, fmt.Sprintf("snapshot capture failed: %v", err), failure)
	}

	decision, cost, err := e.orch.EvaluateCandidates(ctx, failure, snapshot)
	if err != nil {
		if errors.Is(err, orchestrator.ErrProviderRefused) {
			log.Warn("Provider refused the request", zap.Error(err))
			e.breaker.AddCost(cost)
			return e.refused(schemas.Refuse(schemas.GuardrailGeneral, "llm provider refused: %v", err), cost)
		}
		log.Error("LLM evaluation failed", zap.Error(err))
		e.breaker.RecordFailure(cost)
		return e.failed(cost, fmt.Sprintf("llm evaluation failed: %v", err), failure)
	}

	if !decision.CanHeal {
		log.Info("Model declined to heal", zap.String("reason", decision.RefusalReason))
		e.breaker.AddCost(cost)
		return e.refused(schemas.Refuse(schemas.GuardrailGeneral,
			"model declined: %s", decision.RefusalReason), cost)
	}

	elem := snapshot.Element(*decision.ElementIndex)
	if gr := e.guard.CheckPostLLM(decision, elem, snapshot); !gr.Proceed {
		log.Info("Candidate refused", zap.String("type", string(gr.Type)), zap.String("reason", gr.Reason))
		e.breaker.AddCost(cost)
		return e.refused(gr, cost)
	}

	locator := buildLocator(elem)
	return e.apply(ctx, failure, intent, locator, decision, key, false, cost, snapshot)
}

// apply takes an accepted candidate through the trust gate, execution and
// post-execution verification. before may be nil on the cache path; it is
// captured lazily when a check needs it.
func (e *Engine) apply(
	ctx context.Context,
	failure *schemas.FailureContext,
	intent schemas.IntentContract,
	locator schemas.LocatorInfo,
	decision *schemas.HealDecision,
	key healcache.Key,
	fromCache bool,
	cost float64,
	before *schemas.UiSnapshot,
) *schemas.HealResult {
	log := e.logger.With(
		zap.String("scenario", failure.Scenario),
		zap.String("healed", locator.String()),
		zap.Bool("from_cache", fromCache),
	)

	if intent.Policy == schemas.PolicySuggest || !e.trust.CanAutoApply(failure.Action) {
		log.Info("Heal suggested, not applied",
			zap.Stringer("trust_level", e.trust.Level()),
			zap.String("policy", string(intent.Policy)))
		e.breaker.AddCost(cost)
		return &schemas.HealResult{
			Outcome:    schemas.OutcomeSuggested,
			Healed:     &locator,
			Confidence: decision.Confidence,
			Reasoning:  decision.Reasoning,
			Message:    "candidate requires manual application",
			FromCache:  fromCache,
			CostUSD:    cost,
		}
	}

	if e.executor == nil {
		e.breaker.AddCost(cost)
		return &schemas.HealResult{
			Outcome:    schemas.OutcomeSuggested,
			Healed:     &locator,
			Confidence: decision.Confidence,
			Reasoning:  decision.Reasoning,
			Message:    "no executor configured; candidate reported only",
			FromCache:  fromCache,
			CostUSD:    cost,
		}
	}

	if err := e.executor.Execute(ctx, locator, failure.Action, failure.Value); err != nil {
		log.Warn("Healed action failed to execute", zap.Error(err))
		e.recordFailure(key, fromCache, cost)
		return &schemas.HealResult{
			Outcome:   schemas.OutcomeFailed,
			Healed:    &locator,
			FromCache: fromCache,
			CostUSD:   cost,
			Message:   fmt.Sprintf("healed action failed: %v; original failure: %s", err, failure.ExceptionMessage),
		}
	}

	outcome, verifyCost, msg := e.verify(ctx, failure, intent, before)
	cost += verifyCost
	if outcome != schemas.OutcomeSuccess {
		log.Warn("Post-execution verification failed",
			zap.String("outcome", string(outcome)),
			zap.String("detail", msg))
		e.recordFailure(key, fromCache, cost)
		return &schemas.HealResult{
			Outcome:    outcome,
			Healed:     &locator,
			Confidence: decision.Confidence,
			Reasoning:  decision.Reasoning,
			Message:    msg,
			FromCache:  fromCache,
			CostUSD:    cost,
		}
	}

	e.breaker.RecordSuccess(cost)
	e.trust.RecordSuccess()
	if !fromCache {
		e.cache.Put(key, locator, decision.Confidence, decision.Reasoning)
	}
	log.Info("Heal applied and verified", zap.Float64("cost_usd", cost))

	return &schemas.HealResult{
		Outcome:    schemas.OutcomeSuccess,
		Healed:     &locator,
		Confidence: decision.Confidence,
		Reasoning:  decision.Reasoning,
		FromCache:  fromCache,
		CostUSD:    cost,
	}
}

// verify runs the intent's invariant and outcome checks after a successful
// execution. Invariants are checked first; a violated invariant outranks a
// missed outcome.
func (e *Engine) verify(ctx context.Context, failure *schemas.FailureContext, intent schemas.IntentContract, before *schemas.UiSnapshot) (schemas.HealOutcome, float64, string) {
	needsAfter := len(intent.InvariantChecks) > 0 || len(intent.OutcomeChecks) > 0 || intent.ExpectedOutcome != ""
	if !needsAfter {
		return schemas.OutcomeSuccess, 0, ""
	}

	var after *schemas.UiSnapshot
	if e.snapshots != nil {
		snap, err := e.snapshots.CaptureSnapshot(ctx, failure)
		if err != nil {
			return schemas.OutcomeOutcomeFailed, 0, fmt.Sprintf("could not capture page state for verification: %v", err)
		}
		after = snap
	}

	invariants, err := e.registry.ResolveInvariants(intent.InvariantChecks)
	if err != nil {
		return schemas.OutcomeInvariantViolated, 0, err.Error()
	}
	for i, fn := range invariants {
		if res := fn(ctx, before, after); !res.Passed {
			return schemas.OutcomeInvariantViolated, 0,
				fmt.Sprintf("invariant %q violated: %s", intent.InvariantChecks[i], res.Message)
		}
	}

	outcomes, err := e.registry.ResolveOutcomes(intent.OutcomeChecks)
	if err != nil {
		return schemas.OutcomeOutcomeFailed, 0, err.Error()
	}
	for i, fn := range outcomes {
		if res := fn(ctx, before, after); !res.Passed {
			return schemas.OutcomeOutcomeFailed, 0,
				fmt.Sprintf("outcome check %q failed: %s", intent.OutcomeChecks[i], res.Message)
		}
	}

	// With no programmatic outcome check, a declared expectation falls back
	// to model-based verification.
	if len(outcomes) == 0 && intent.ExpectedOutcome != "" {
		res, cost, err := e.orch.ValidateOutcome(ctx, intent.ExpectedOutcome, before, after)
		if err != nil {
			return schemas.OutcomeOutcomeFailed, cost, fmt.Sprintf("outcome validation failed: %v", err)
		}
		if !res.Passed {
			return schemas.OutcomeOutcomeFailed, cost, res.Message
		}
		return schemas.OutcomeSuccess, cost, ""
	}

	return schemas.OutcomeSuccess, 0, ""
}

// recordFailure charges a failed applied heal to the breaker, the trust
// manager and, for cache-sourced heals, the cache entry itself.
func (e *Engine) recordFailure(key healcache.Key, fromCache bool, cost float64) {
	e.breaker.RecordFailure(cost)
	e.trust.RecordFailure()
	if fromCache {
		e.cache.RecordFailure(key)
	}
}

// refused builds a REFUSED result and tells the breaker and trust manager a
// refusal happened. Refusals never move failure counters.
func (e *Engine) refused(gr schemas.GuardrailResult, cost float64) *schemas.HealResult {
	e.breaker.RecordRefusal()
	e.trust.RecordRefusal()
	return &schemas.HealResult{
		Outcome: schemas.OutcomeRefused,
		Message: fmt.Sprintf("[%s] %s", gr.Type, gr.Reason),
		CostUSD: cost,
	}
}

func (e *Engine) failed(cost float64, msg string, failure *schemas.FailureContext) *schemas.HealResult {
	return &schemas.HealResult{
		Outcome: schemas.OutcomeFailed,
		Message: fmt.Sprintf("%s; original failure: %s", msg, failure.ExceptionMessage),
		CostUSD: cost,
	}
}

// buildLocator derives the most stable locator the chosen element supports.
// An id beats a name attribute, which beats a synthesized CSS selector.
func buildLocator(elem *schemas.ElementSnapshot) schemas.LocatorInfo {
	if elem.ID != "" {
		return schemas.LocatorInfo{Strategy: schemas.StrategyID, Value: elem.ID}
	}
	if elem.Name != "" {
		return schemas.LocatorInfo{Strategy: schemas.StrategyName, Value: elem.Name}
	}

	sel := elem.Tag
	for _, class := range elem.Classes {
		if class != "" {
			sel += "." + class
		}
	}
	if elem.Type != "" {
		sel += fmt.Sprintf("[type=%q]", elem.Type)
	}
	return schemas.LocatorInfo{Strategy: schemas.StrategyCSS, Value: strings.TrimSpace(sel)}
}
