package schemas

import "fmt"

// HealDecision is the orchestrator's structured verdict for one LLM call.
// Produced once, never mutated.
type HealDecision struct {
	CanHeal       bool     `json:"can_heal"`
	Confidence    float64  `json:"confidence"`
	ElementIndex  *int     `json:"element_index,omitempty"`
	Reasoning     string   `json:"reasoning,omitempty"`
	Alternatives  []int    `json:"alternatives,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	RefusalReason string   `json:"refusal_reason,omitempty"`
}

// GuardrailType classifies why a guardrail refused.
type GuardrailType string

const (
	GuardrailLowConfidence     GuardrailType = "LOW_CONFIDENCE"
	GuardrailDestructiveAction GuardrailType = "DESTRUCTIVE_ACTION"
	GuardrailForbiddenKeyword  GuardrailType = "FORBIDDEN_KEYWORD"
	GuardrailAssertionStep     GuardrailType = "ASSERTION_STEP"
	GuardrailPolicyOff         GuardrailType = "POLICY_OFF"
	GuardrailNotInteractable   GuardrailType = "NOT_INTERACTABLE"
	GuardrailCostLimit         GuardrailType = "COST_LIMIT"
	GuardrailCircuitBreaker    GuardrailType = "CIRCUIT_BREAKER"
	GuardrailGeneral           GuardrailType = "GENERAL"
)

// GuardrailResult is a proceed/refuse verdict. Refusals are expected,
// non-exceptional control flow; they are values, never errors.
type GuardrailResult struct {
	Proceed bool          `json:"proceed"`
	Type    GuardrailType `json:"type,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

// Pass returns a proceeding result.
func Pass() GuardrailResult {
	return GuardrailResult{Proceed: true}
}

// Refuse returns a refusing result with its classification.
func Refuse(t GuardrailType, format string, args ...any) GuardrailResult {
	return GuardrailResult{Proceed: false, Type: t, Reason: fmt.Sprintf(format, args...)}
}

// HealOutcome is the single terminal outcome of one heal attempt.
type HealOutcome string

const (
	OutcomeSuccess           HealOutcome = "SUCCESS"
	OutcomeRefused           HealOutcome = "REFUSED"
	OutcomeFailed            HealOutcome = "FAILED"
	OutcomeOutcomeFailed     HealOutcome = "OUTCOME_FAILED"
	OutcomeInvariantViolated HealOutcome = "INVARIANT_VIOLATED"
	OutcomeSuggested         HealOutcome = "SUGGESTED"
)

// HealResult is what a heal attempt hands back to the caller.
type HealResult struct {
	Outcome    HealOutcome  `json:"outcome"`
	Healed     *LocatorInfo `json:"healed,omitempty"`
	Confidence float64      `json:"confidence,omitempty"`
	Reasoning  string       `json:"reasoning,omitempty"`
	Message    string       `json:"message,omitempty"`
	FromCache  bool         `json:"from_cache"`
	CostUSD    float64      `json:"cost_usd,omitempty"`
}

// Success reports whether the heal was applied and verified.
func (r *HealResult) Success() bool {
	return r != nil && r.Outcome == OutcomeSuccess
}

// HealedLocator renders the healed locator in strategy=value form, or "" when
// no candidate was produced.
func (r *HealResult) HealedLocator() string {
	if r == nil || r.Healed == nil {
		return ""
	}
	return r.Healed.String()
}

// OutcomeResult is the verdict of an expected-outcome verification.
type OutcomeResult struct {
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// InvariantResult is the verdict of an invariant check.
type InvariantResult struct {
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}
