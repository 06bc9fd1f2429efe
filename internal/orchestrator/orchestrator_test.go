package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/glaciousm/intent-healer-sub001/api/schemas"
	"github.com/glaciousm/intent-healer-sub001/internal/config"
)

// mockLLMClient satisfies schemas.LLMClient for orchestrator tests.
type mockLLMClient struct {
	mock.Mock
}

func (m *mockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (schemas.Generation, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(schemas.Generation), args.Error(1)
}

func (m *mockLLMClient) Close() error {
	return m.Called().Error(0)
}

func orchTestConfig() config.LLMConfig {
	return config.LLMConfig{
		Provider:    config.ProviderOpenAI,
		Model:       "gpt-4o-mini",
		APITimeout:  time.Minute,
		Temperature: 0.1,
		MaxElements: 50,
		Pricing: config.PricingConfig{
			PromptPer1K:     0.01,
			CompletionPer1K: 0.03,
		},
	}
}

func testFailure() *schemas.FailureContext {
	return &schemas.FailureContext{
		Scenario:         "login",
		StepText:         "When I click the login button",
		ExceptionMessage: "no such element: #login-btn",
		Locator:          schemas.LocatorInfo{Strategy: schemas.StrategyID, Value: "login-btn"},
		Action:           schemas.ActionClick,
		Kind:             schemas.FailureNoSuchElement,
		PageURL:          "https://app.example.com/login",
	}
}

func testSnapshot() *schemas.UiSnapshot {
	return &schemas.UiSnapshot{
		URL:   "https://app.example.com/login",
		Title: "Login",
		Elements: []schemas.ElementSnapshot{
			{Index: 0, Tag: "input", Type: "email", Name: "email", Visible: true, Enabled: true},
			{Index: 1, Tag: "button", ID: "signin-btn", Text: "Sign in", Visible: true, Enabled: true},
		},
	}
}

func usage() schemas.TokenUsage {
	return schemas.TokenUsage{PromptTokens: 2000, CompletionTokens: 100, TotalTokens: 2100}
}

func TestEvaluateCandidatesParsesFencedDecision(t *testing.T) {
	client := new(mockLLMClient)
	content := "```json\n{\"can_heal\": true, \"element_index\": 1, \"confidence\": 0.92, \"reasoning\": \"same label\"}\n```"
	client.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return req.Options.ForceJSONFormat
	})).Return(schemas.Generation{Content: content, Usage: usage()}, nil)

	o := New(client, orchTestConfig(), zaptest.NewLogger(t))
	decision, cost, err := o.EvaluateCandidates(context.Background(), testFailure(), testSnapshot())

	require.NoError(t, err)
	require.True(t, decision.CanHeal)
	require.NotNil(t, decision.ElementIndex)
	assert.Equal(t, 1, *decision.ElementIndex)
	assert.Equal(t, 0.92, decision.Confidence)
	// 2000 prompt tokens at $0.01/1K plus 100 completion tokens at $0.03/1K.
	assert.InDelta(t, 0.023, cost, 1e-9)
	client.AssertExpectations(t)
}

func TestEvaluateCandidatesPromptContainsFailureAndInventory(t *testing.T) {
	client := new(mockLLMClient)
	var captured schemas.GenerationRequest
	client.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(schemas.GenerationRequest) }).
		Return(schemas.Generation{Content: `{"can_heal": false, "confidence": 0, "refusal_reason": "no match"}`}, nil)

	o := New(client, orchTestConfig(), zaptest.NewLogger(t))
	_, _, err := o.EvaluateCandidates(context.Background(), testFailure(), testSnapshot())
	require.NoError(t, err)

	assert.Contains(t, captured.UserPrompt, "When I click the login button")
	assert.Contains(t, captured.UserPrompt, "ID=login-btn")
	assert.Contains(t, captured.UserPrompt, "signin-btn")
	assert.Contains(t, captured.SystemPrompt, "ONLY a JSON object")
}

func TestEvaluateCandidatesMalformedResponseIsHardError(t *testing.T) {
	client := new(mockLLMClient)
	client.On("Generate", mock.Anything, mock.Anything).
		Return(schemas.Generation{Content: "I think the button moved somewhere", Usage: usage()}, nil)

	o := New(client, orchTestConfig(), zaptest.NewLogger(t))
	decision, cost, err := o.EvaluateCandidates(context.Background(), testFailure(), testSnapshot())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Nil(t, decision)
	assert.Greater(t, cost, 0.0, "a failed call still cost tokens")
}

func TestEvaluateCandidatesRejectsOutOfBoundsIndex(t *testing.T) {
	client := new(mockLLMClient)
	client.On("Generate", mock.Anything, mock.Anything).
		Return(schemas.Generation{Content: `{"can_heal": true, "element_index": 99, "confidence": 0.9}`, Usage: usage()}, nil)

	o := New(client, orchTestConfig(), zaptest.NewLogger(t))
	_, _, err := o.EvaluateCandidates(context.Background(), testFailure(), testSnapshot())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestEvaluateCandidatesRejectsHealWithoutIndex(t *testing.T) {
	client := new(mockLLMClient)
	client.On("Generate", mock.Anything, mock.Anything).
		Return(schemas.Generation{Content: `{"can_heal": true, "confidence": 0.9}`, Usage: usage()}, nil)

	o := New(client, orchTestConfig(), zaptest.NewLogger(t))
	_, _, err := o.EvaluateCandidates(context.Background(), testFailure(), testSnapshot())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestEvaluateCandidatesRejectsConfidenceOutOfRange(t *testing.T) {
	client := new(mockLLMClient)
	client.On("Generate", mock.Anything, mock.Anything).
		Return(schemas.Generation{Content: `{"can_heal": true, "element_index": 1, "confidence": 1.4}`, Usage: usage()}, nil)

	o := New(client, orchTestConfig(), zaptest.NewLogger(t))
	_, _, err := o.EvaluateCandidates(context.Background(), testFailure(), testSnapshot())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestEvaluateCandidatesTruncatesInventory(t *testing.T) {
	cfg := orchTestConfig()
	cfg.MaxElements = 1

	client := new(mockLLMClient)
	var captured schemas.GenerationRequest
	client.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(schemas.GenerationRequest) }).
		Return(schemas.Generation{Content: `{"can_heal": false, "confidence": 0, "refusal_reason": "n/a"}`}, nil)

	o := New(client, cfg, zaptest.NewLogger(t))
	_, _, err := o.EvaluateCandidates(context.Background(), testFailure(), testSnapshot())
	require.NoError(t, err)

	assert.Contains(t, captured.UserPrompt, `"email"`)
	assert.NotContains(t, captured.UserPrompt, "signin-btn", "second element must be truncated away")
}

func TestCostWithZeroPricing(t *testing.T) {
	cfg := orchTestConfig()
	cfg.Pricing = config.PricingConfig{}
	o := New(new(mockLLMClient), cfg, zaptest.NewLogger(t))
	assert.Equal(t, 0.0, o.Cost(usage()))
}

func TestValidateOutcome(t *testing.T) {
	client := new(mockLLMClient)
	client.On("Generate", mock.Anything, mock.Anything).
		Return(schemas.Generation{
			Content: `{"outcome_met": true, "reasoning": "the dashboard heading is present"}`,
			Usage:   usage(),
		}, nil)

	o := New(client, orchTestConfig(), zaptest.NewLogger(t))
	res, cost, err := o.ValidateOutcome(context.Background(), "user lands on the dashboard", testSnapshot(), testSnapshot())

	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Contains(t, res.Message, "dashboard")
	assert.Greater(t, cost, 0.0)
}

func TestValidateOutcomeNilSnapshots(t *testing.T) {
	client := new(mockLLMClient)
	var captured schemas.GenerationRequest
	client.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(schemas.GenerationRequest) }).
		Return(schemas.Generation{Content: `{"outcome_met": false, "reasoning": "no evidence"}`}, nil)

	o := New(client, orchTestConfig(), zaptest.NewLogger(t))
	res, _, err := o.ValidateOutcome(context.Background(), "anything", nil, nil)

	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Contains(t, captured.UserPrompt, "(no snapshot available)")
}
