// Package schemas defines the shared value types and interfaces for the
// healing decision pipeline. Per-attempt records (FailureContext, UiSnapshot,
// HealDecision, GuardrailResult) are created fresh for each failure and
// discarded afterwards; everything here is either immutable after
// construction or a plain value type.
package schemas

import (
	"fmt"
	"time"
)

// LocatorStrategy identifies how a locator value should be resolved against
// the DOM.
type LocatorStrategy string

const (
	StrategyID              LocatorStrategy = "ID"
	StrategyName            LocatorStrategy = "NAME"
	StrategyClassName       LocatorStrategy = "CLASS_NAME"
	StrategyCSS             LocatorStrategy = "CSS"
	StrategyXPath           LocatorStrategy = "XPATH"
	StrategyLinkText        LocatorStrategy = "LINK_TEXT"
	StrategyPartialLinkText LocatorStrategy = "PARTIAL_LINK_TEXT"
	StrategyTagName         LocatorStrategy = "TAG_NAME"
)

// LocatorInfo pairs a strategy with its value. It is a value-equality type
// and appears as both the original and the healed locator.
type LocatorInfo struct {
	Strategy LocatorStrategy `json:"strategy"`
	Value    string          `json:"value"`
}

// String renders the canonical strategy=value form used in results and cache
// fingerprints.
func (l LocatorInfo) String() string {
	return fmt.Sprintf("%s=%s", l.Strategy, l.Value)
}

// IsZero reports whether the locator carries no information.
func (l LocatorInfo) IsZero() bool {
	return l.Strategy == "" && l.Value == ""
}

// ActionType classifies the UI action a step attempted.
type ActionType string

const (
	ActionClick    ActionType = "CLICK"
	ActionSendKeys ActionType = "SEND_KEYS"
	ActionSelect   ActionType = "SELECT"
	ActionHover    ActionType = "HOVER"
	ActionSubmit   ActionType = "SUBMIT"
	ActionClear    ActionType = "CLEAR"
	ActionNavigate ActionType = "NAVIGATE"
)

// IsSafe reports whether the action belongs to the non-destructive class that
// mid trust levels may auto-apply. Submitting forms, clearing fields and
// navigating away can lose user state and are therefore excluded.
func (a ActionType) IsSafe() bool {
	switch a {
	case ActionClick, ActionSendKeys, ActionSelect, ActionHover:
		return true
	default:
		return false
	}
}

// FailureKind classifies why the locator failed, and whether that class of
// failure is even worth sending through the pipeline.
type FailureKind string

const (
	FailureNoSuchElement FailureKind = "NO_SUCH_ELEMENT"
	FailureStaleElement  FailureKind = "STALE_ELEMENT"
	FailureNotVisible    FailureKind = "NOT_VISIBLE"
	FailureTimeout       FailureKind = "TIMEOUT"
	FailureAssertion     FailureKind = "ASSERTION"
	FailureUnknown       FailureKind = "UNKNOWN"
)

// Healable reports whether this failure class can plausibly be fixed by
// substituting a locator. Assertion failures are verification outcomes, not
// location problems.
func (k FailureKind) Healable() bool {
	switch k {
	case FailureNoSuchElement, FailureStaleElement, FailureNotVisible, FailureTimeout:
		return true
	default:
		return false
	}
}

// FailureContext is the immutable record of a single locator failure. It is
// created once when the step fails and consumed read-only by the whole
// pipeline.
type FailureContext struct {
	Scenario         string            `json:"scenario"`
	StepText         string            `json:"step_text"`
	Keyword          string            `json:"keyword,omitempty"`
	Tags             []string          `json:"tags,omitempty"`
	ExceptionKind    string            `json:"exception_kind"`
	ExceptionMessage string            `json:"exception_message"`
	Locator          LocatorInfo       `json:"locator"`
	Action           ActionType        `json:"action"`
	Kind             FailureKind       `json:"kind"`
	PageURL          string            `json:"page_url"`
	Value            string            `json:"value,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
	Extra            map[string]string `json:"extra,omitempty"`
}

// NewFailureContext validates the required fields and stamps the record.
func NewFailureContext(scenario, stepText string, locator LocatorInfo, action ActionType, kind FailureKind, pageURL string) (*FailureContext, error) {
	if stepText == "" {
		return nil, fmt.Errorf("failure context requires the originating step text")
	}
	if locator.IsZero() {
		return nil, fmt.Errorf("failure context requires the original locator")
	}
	if action == "" {
		return nil, fmt.Errorf("failure context requires the attempted action type")
	}
	if kind == "" {
		kind = FailureUnknown
	}
	return &FailureContext{
		Scenario:  scenario,
		StepText:  stepText,
		Locator:   locator,
		Action:    action,
		Kind:      kind,
		PageURL:   pageURL,
		Timestamp: time.Now().UTC(),
	}, nil
}

// HealPolicy declares how much healing an intent permits.
type HealPolicy string

const (
	PolicyOff      HealPolicy = "OFF"       // Never heal this step.
	PolicySuggest  HealPolicy = "SUGGEST"   // Propose candidates, never apply.
	PolicyAutoSafe HealPolicy = "AUTO_SAFE" // Auto-apply non-destructive actions only.
	PolicyAutoAll  HealPolicy = "AUTO_ALL"  // Auto-apply anything the trust level allows.
)

// IntentContract declares what a step is allowed to do and how aggressively
// the pipeline may heal it. Checks are referenced by registry name and
// resolved at configuration time.
type IntentContract struct {
	Action          string     `json:"action"`
	Description     string     `json:"description,omitempty"`
	Policy          HealPolicy `json:"policy"`
	Destructive     bool       `json:"destructive"`
	ExpectedOutcome string     `json:"expected_outcome,omitempty"`
	OutcomeChecks   []string   `json:"outcome_checks,omitempty"`
	InvariantChecks []string   `json:"invariant_checks,omitempty"`
}

// NewIntentContract validates and builds a contract. An empty policy defaults
// to SUGGEST, the most conservative setting that still produces output.
func NewIntentContract(action string, policy HealPolicy, destructive bool) (IntentContract, error) {
	if action == "" {
		return IntentContract{}, fmt.Errorf("intent contract requires an action label")
	}
	if policy == "" {
		policy = PolicySuggest
	}
	switch policy {
	case PolicyOff, PolicySuggest, PolicyAutoSafe, PolicyAutoAll:
	default:
		return IntentContract{}, fmt.Errorf("unknown heal policy %q", policy)
	}
	return IntentContract{Action: action, Policy: policy, Destructive: destructive}, nil
}
