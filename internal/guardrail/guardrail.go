// Package guardrail implements the deterministic safety checks that can
// refuse a heal regardless of model confidence. The checker is pure: it holds
// only compiled configuration and no mutable state, so one instance is safe
// for any number of concurrent attempts.
package guardrail

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/glaciousm/intent-healer-sub001/api/schemas"
	"github.com/glaciousm/intent-healer-sub001/internal/config"
)

// assertionPrefixes flags step text that is verification rather than
// interaction. Assertions are never healable: a failed assertion is the test
// doing its job.
var assertionPrefixes = []string{"assert", "verify", "expect", "should see", "check that"}

// Checker evaluates guardrails before and after the LLM call. The split
// exists so that policy-disallowed requests never spend LLM budget, while
// unsafe model answers are still caught afterwards.
type Checker struct {
	cfg         config.GuardrailConfig
	urlPatterns []*regexp.Regexp
	keywords    []string
}

// NewChecker compiles the configured URL patterns and normalizes keywords.
func NewChecker(cfg config.GuardrailConfig) (*Checker, error) {
	patterns := make([]*regexp.Regexp, 0, len(cfg.ForbiddenURLPatterns))
	for _, p := range cfg.ForbiddenURLPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid forbidden URL pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	keywords := make([]string, 0, len(cfg.ForbiddenKeywords))
	for _, k := range cfg.ForbiddenKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}

	return &Checker{cfg: cfg, urlPatterns: patterns, keywords: keywords}, nil
}

// CheckURL refuses when the page URL matches a forbidden pattern (admin
// areas and the like). Costs nothing, so it runs first.
func (c *Checker) CheckURL(url string) schemas.GuardrailResult {
	for _, re := range c.urlPatterns {
		if re.MatchString(url) {
			return schemas.Refuse(schemas.GuardrailGeneral,
				"page URL %q matches forbidden pattern %q", url, re.String())
		}
	}
	return schemas.Pass()
}

// CheckPreLLM runs the cheap policy rejections that must happen before any
// LLM spend is committed.
func (c *Checker) CheckPreLLM(failure *schemas.FailureContext, intent schemas.IntentContract) schemas.GuardrailResult {
	if intent.Policy == schemas.PolicyOff {
		return schemas.Refuse(schemas.GuardrailPolicyOff,
			"healing is disabled for intent %q", intent.Action)
	}

	if isAssertionStep(failure) {
		return schemas.Refuse(schemas.GuardrailAssertionStep,
			"step %q is an assertion; assertions are verification, never healable", failure.StepText)
	}

	if isDestructive(failure, intent) && intent.Policy != schemas.PolicyAutoAll {
		return schemas.Refuse(schemas.GuardrailDestructiveAction,
			"action %q is destructive and policy %s does not permit destructive heals", failure.Action, intent.Policy)
	}

	return schemas.Pass()
}

// CheckAttemptBudget refuses once a scenario has consumed its heal budget.
func (c *Checker) CheckAttemptBudget(scenario string, attempts int) schemas.GuardrailResult {
	if attempts >= c.cfg.MaxHealsPerScenario {
		return schemas.Refuse(schemas.GuardrailCostLimit,
			"scenario %q reached the limit of %d heals", scenario, c.cfg.MaxHealsPerScenario)
	}
	return schemas.Pass()
}

// CheckPostLLM validates the model's chosen candidate. Only called when the
// decision says canHeal with a concrete element index.
func (c *Checker) CheckPostLLM(decision *schemas.HealDecision, elem *schemas.ElementSnapshot, snap *schemas.UiSnapshot) schemas.GuardrailResult {
	if elem == nil {
		return schemas.Refuse(schemas.GuardrailGeneral,
			"decision referenced an element missing from the snapshot")
	}

	if decision.Confidence < c.cfg.MinConfidence {
		return schemas.Refuse(schemas.GuardrailLowConfidence,
			"confidence %.2f is below the minimum %.2f", decision.Confidence, c.cfg.MinConfidence)
	}

	if kw := c.matchKeyword(elem); kw != "" {
		return schemas.Refuse(schemas.GuardrailForbiddenKeyword,
			"chosen element contains forbidden keyword %q", kw)
	}

	if !elem.Visible || !elem.Enabled {
		return schemas.Refuse(schemas.GuardrailNotInteractable,
			"chosen element (index %d, tag %q) is not interactable", elem.Index, elem.Tag)
	}

	return schemas.Pass()
}

// matchKeyword scans the element's text, labels and attributes for any
// forbidden keyword; returns the keyword hit, or "".
func (c *Checker) matchKeyword(elem *schemas.ElementSnapshot) string {
	var parts []string
	parts = append(parts, elem.Text, elem.ID, elem.Name)
	parts = append(parts, elem.Labels...)
	parts = append(parts, elem.Classes...)
	for k, v := range elem.DataAttrs {
		parts = append(parts, k, v)
	}
	haystack := strings.ToLower(strings.Join(parts, " "))

	for _, kw := range c.keywords {
		if strings.Contains(haystack, kw) {
			return kw
		}
	}
	return ""
}

func isAssertionStep(failure *schemas.FailureContext) bool {
	if failure.Kind == schemas.FailureAssertion {
		return true
	}
	step := strings.ToLower(strings.TrimSpace(failure.StepText))
	for _, prefix := range assertionPrefixes {
		if strings.HasPrefix(step, prefix) {
			return true
		}
	}
	return false
}

// isDestructive combines the intent's own declaration with the action's
// safety class; either source can mark an attempt destructive.
func isDestructive(failure *schemas.FailureContext, intent schemas.IntentContract) bool {
	return intent.Destructive || !failure.Action.IsSafe()
}
