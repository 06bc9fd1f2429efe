package guardrail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glaciousm/intent-healer-sub001/api/schemas"
	"github.com/glaciousm/intent-healer-sub001/internal/config"
)

func testChecker(t *testing.T) *Checker {
	t.Helper()
	c, err := NewChecker(config.GuardrailConfig{
		MinConfidence:        0.75,
		ForbiddenKeywords:    []string{"Delete", "pay now", "UNSUBSCRIBE"},
		ForbiddenURLPatterns: []string{`/admin(/|$)`, `billing\.example\.com`},
		MaxHealsPerScenario:  3,
	})
	require.NoError(t, err)
	return c
}

func clickFailure(step string) *schemas.FailureContext {
	return &schemas.FailureContext{
		Scenario: "checkout",
		StepText: step,
		Locator:  schemas.LocatorInfo{Strategy: schemas.StrategyID, Value: "submit-btn"},
		Action:   schemas.ActionClick,
		Kind:     schemas.FailureNoSuchElement,
		PageURL:  "https://shop.example.com/cart",
	}
}

func TestNewCheckerRejectsInvalidPattern(t *testing.T) {
	_, err := NewChecker(config.GuardrailConfig{ForbiddenURLPatterns: []string{`(unclosed`}})
	assert.Error(t, err)
}

func TestCheckURL(t *testing.T) {
	c := testChecker(t)

	tests := []struct {
		name    string
		url     string
		proceed bool
	}{
		{"ordinary page", "https://shop.example.com/cart", true},
		{"admin area", "https://shop.example.com/admin/users", false},
		{"admin exact", "https://shop.example.com/admin", false},
		{"billing host", "https://billing.example.com/invoices", false},
		{"admin as substring of a word", "https://shop.example.com/administrator-guide", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := c.CheckURL(tc.url)
			assert.Equal(t, tc.proceed, res.Proceed)
			if !tc.proceed {
				assert.Equal(t, schemas.GuardrailGeneral, res.Type)
			}
		})
	}
}

func TestCheckPreLLMPolicyOff(t *testing.T) {
	c := testChecker(t)
	res := c.CheckPreLLM(clickFailure("When I click the submit button"),
		schemas.IntentContract{Action: "submit", Policy: schemas.PolicyOff})

	require.False(t, res.Proceed)
	assert.Equal(t, schemas.GuardrailPolicyOff, res.Type)
}

func TestCheckPreLLMAssertionSteps(t *testing.T) {
	c := testChecker(t)
	intent := schemas.IntentContract{Action: "any", Policy: schemas.PolicyAutoSafe}

	tests := []struct {
		step    string
		refused bool
	}{
		{"Verify the cart total is $10", true},
		{"Assert the banner is gone", true},
		{"should see a confirmation message", true},
		{"When I click the submit button", false},
	}
	for _, tc := range tests {
		t.Run(tc.step, func(t *testing.T) {
			res := c.CheckPreLLM(clickFailure(tc.step), intent)
			assert.Equal(t, !tc.refused, res.Proceed)
			if tc.refused {
				assert.Equal(t, schemas.GuardrailAssertionStep, res.Type)
			}
		})
	}
}

func TestCheckPreLLMAssertionByFailureKind(t *testing.T) {
	c := testChecker(t)
	f := clickFailure("When I click the submit button")
	f.Kind = schemas.FailureAssertion

	res := c.CheckPreLLM(f, schemas.IntentContract{Action: "any", Policy: schemas.PolicyAutoAll})
	require.False(t, res.Proceed)
	assert.Equal(t, schemas.GuardrailAssertionStep, res.Type)
}

func TestCheckPreLLMDestructiveActions(t *testing.T) {
	c := testChecker(t)

	submit := clickFailure("When I submit the order form")
	submit.Action = schemas.ActionSubmit

	res := c.CheckPreLLM(submit, schemas.IntentContract{Action: "order", Policy: schemas.PolicyAutoSafe})
	require.False(t, res.Proceed)
	assert.Equal(t, schemas.GuardrailDestructiveAction, res.Type)

	// AUTO_ALL is the explicit opt-in for destructive heals.
	res = c.CheckPreLLM(submit, schemas.IntentContract{Action: "order", Policy: schemas.PolicyAutoAll})
	assert.True(t, res.Proceed)

	// A safe action with a destructive intent declaration is still refused.
	res = c.CheckPreLLM(clickFailure("When I click the remove link"),
		schemas.IntentContract{Action: "remove", Policy: schemas.PolicyAutoSafe, Destructive: true})
	require.False(t, res.Proceed)
	assert.Equal(t, schemas.GuardrailDestructiveAction, res.Type)
}

func TestCheckAttemptBudget(t *testing.T) {
	c := testChecker(t)

	assert.True(t, c.CheckAttemptBudget("checkout", 0).Proceed)
	assert.True(t, c.CheckAttemptBudget("checkout", 2).Proceed)

	res := c.CheckAttemptBudget("checkout", 3)
	require.False(t, res.Proceed)
	assert.Equal(t, schemas.GuardrailCostLimit, res.Type)
}

func TestCheckPostLLMConfidenceFloor(t *testing.T) {
	c := testChecker(t)
	elem := &schemas.ElementSnapshot{Index: 0, Tag: "button", Text: "Continue", Visible: true, Enabled: true}
	snap := &schemas.UiSnapshot{Elements: []schemas.ElementSnapshot{*elem}}

	res := c.CheckPostLLM(&schemas.HealDecision{CanHeal: true, Confidence: 0.74}, elem, snap)
	require.False(t, res.Proceed)
	assert.Equal(t, schemas.GuardrailLowConfidence, res.Type)

	res = c.CheckPostLLM(&schemas.HealDecision{CanHeal: true, Confidence: 0.75}, elem, snap)
	assert.True(t, res.Proceed)
}

func TestCheckPostLLMForbiddenKeyword(t *testing.T) {
	c := testChecker(t)
	snap := &schemas.UiSnapshot{}
	decision := &schemas.HealDecision{CanHeal: true, Confidence: 0.95}

	tests := []struct {
		name string
		elem schemas.ElementSnapshot
	}{
		{"in text", schemas.ElementSnapshot{Tag: "button", Text: "Delete account", Visible: true, Enabled: true}},
		{"case-insensitive", schemas.ElementSnapshot{Tag: "button", Text: "PAY NOW", Visible: true, Enabled: true}},
		{"in aria label", schemas.ElementSnapshot{Tag: "a", Labels: []string{"unsubscribe from emails"}, Visible: true, Enabled: true}},
		{"in data attribute", schemas.ElementSnapshot{Tag: "button", DataAttrs: map[string]string{"data-action": "delete-item"}, Visible: true, Enabled: true}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := c.CheckPostLLM(decision, &tc.elem, snap)
			require.False(t, res.Proceed)
			assert.Equal(t, schemas.GuardrailForbiddenKeyword, res.Type)
		})
	}
}

func TestCheckPostLLMNotInteractable(t *testing.T) {
	c := testChecker(t)
	snap := &schemas.UiSnapshot{}
	decision := &schemas.HealDecision{CanHeal: true, Confidence: 0.95}

	hidden := &schemas.ElementSnapshot{Tag: "button", Text: "Continue", Visible: false, Enabled: true}
	res := c.CheckPostLLM(decision, hidden, snap)
	require.False(t, res.Proceed)
	assert.Equal(t, schemas.GuardrailNotInteractable, res.Type)

	disabled := &schemas.ElementSnapshot{Tag: "button", Text: "Continue", Visible: true, Enabled: false}
	res = c.CheckPostLLM(decision, disabled, snap)
	require.False(t, res.Proceed)
	assert.Equal(t, schemas.GuardrailNotInteractable, res.Type)
}
