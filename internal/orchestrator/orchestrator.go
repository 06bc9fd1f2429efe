// Package orchestrator owns the LLM half of a heal attempt: it turns a
// failure and a page snapshot into prompts, parses the model's verdict back
// into a structured decision, and converts token usage into dollars for the
// cost budget. It performs no policy checks of its own; callers gate its
// output.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/glaciousm/intent-healer-sub001/api/schemas"
	"github.com/glaciousm/intent-healer-sub001/internal/config"
	"github.com/glaciousm/intent-healer-sub001/internal/llmclient"
	"github.com/glaciousm/intent-healer-sub001/internal/llmutil"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMalformedResponse marks model output that could not be parsed into a
// decision. It is never silently downgraded to a refusal; a model that stops
// following the output contract is an infrastructure failure.
var ErrMalformedResponse = errors.New("malformed llm response")

// ErrProviderRefused is re-exported so callers need not import llmclient to
// classify it.
var ErrProviderRefused = llmclient.ErrProviderRefused

// rawDecision mirrors the JSON shape the model is instructed to emit.
type rawDecision struct {
	CanHeal       bool     `json:"can_heal"`
	ElementIndex  *int     `json:"element_index"`
	Confidence    float64  `json:"confidence"`
	Reasoning     string   `json:"reasoning"`
	Alternatives  []int    `json:"alternatives"`
	Warnings      []string `json:"warnings"`
	RefusalReason string   `json:"refusal_reason"`
}

// rawOutcome mirrors the JSON shape of the outcome-validation reply.
type rawOutcome struct {
	OutcomeMet bool   `json:"outcome_met"`
	Reasoning  string `json:"reasoning"`
}

// Orchestrator drives one LLM round trip per heal attempt.
type Orchestrator struct {
	client schemas.LLMClient
	cfg    config.LLMConfig
	logger *zap.Logger
}

// New wires an orchestrator over the given client.
func New(client schemas.LLMClient, cfg config.LLMConfig, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		client: client,
		cfg:    cfg,
		logger: logger.Named("orchestrator"),
	}
}

// EvaluateCandidates asks the model whether any element in the snapshot is
// the failed locator's target under a new identity. The returned cost is
// valid even when the call fails, so the budget can charge for every round
// trip.
func (o *Orchestrator) EvaluateCandidates(ctx context.Context, failure *schemas.FailureContext, snapshot *schemas.UiSnapshot) (*schemas.HealDecision, float64, error) {
	inventory, err := o.buildInventory(snapshot)
	if err != nil {
		return nil, 0, fmt.Errorf("building element inventory: %w", err)
	}

	req := schemas.GenerationRequest{
		SystemPrompt: healSystemPrompt,
		UserPrompt: fmt.Sprintf(healUserPromptTemplate,
			failure.Scenario,
			failure.StepText,
			failure.Action,
			failure.Locator.String(),
			failure.ExceptionMessage,
			snapshot.URL,
			snapshot.Title,
			inventory,
		),
		Options: schemas.GenerationOptions{
			Temperature:     o.cfg.Temperature,
			ForceJSONFormat: true,
			TopP:            o.cfg.TopP,
			TopK:            o.cfg.TopK,
		},
	}

	log := o.logger.With(zap.String("request_id", uuid.NewString()))

	gen, err := o.client.Generate(ctx, req)
	cost := o.Cost(gen.Usage)
	if err != nil {
		return nil, cost, err
	}

	raw, err := llmutil.ParseJSONResponse[rawDecision](gen.Content)
	if err != nil {
		return nil, cost, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	decision, err := o.validateDecision(raw, snapshot)
	if err != nil {
		return nil, cost, err
	}

	log.Debug("LLM heal decision",
		zap.Bool("can_heal", decision.CanHeal),
		zap.Float64("confidence", decision.Confidence),
		zap.Float64("cost_usd", cost),
	)
	return decision, cost, nil
}

// ValidateOutcome asks the model whether the before/after page states show
// the expected outcome. Used when an intent contract declares an expected
// outcome but registers no programmatic check for it.
func (o *Orchestrator) ValidateOutcome(ctx context.Context, expected string, before, after *schemas.UiSnapshot) (schemas.OutcomeResult, float64, error) {
	req := schemas.GenerationRequest{
		SystemPrompt: outcomeSystemPrompt,
		UserPrompt: fmt.Sprintf(outcomeUserPromptTemplate,
			expected,
			summarizeSnapshot(before),
			summarizeSnapshot(after),
		),
		Options: schemas.GenerationOptions{
			Temperature:     o.cfg.Temperature,
			ForceJSONFormat: true,
		},
	}

	gen, err := o.client.Generate(ctx, req)
	cost := o.Cost(gen.Usage)
	if err != nil {
		return schemas.OutcomeResult{}, cost, err
	}

	raw, err := llmutil.ParseJSONResponse[rawOutcome](gen.Content)
	if err != nil {
		return schemas.OutcomeResult{}, cost, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return schemas.OutcomeResult{
		Passed:  raw.OutcomeMet,
		Message: raw.Reasoning,
	}, cost, nil
}

// Cost converts token usage into USD using the configured per-1K pricing.
func (o *Orchestrator) Cost(usage schemas.TokenUsage) float64 {
	p := o.cfg.Pricing
	return float64(usage.PromptTokens)/1000.0*p.PromptPer1K +
		float64(usage.CompletionTokens)/1000.0*p.CompletionPer1K
}

// validateDecision enforces the output contract on a parsed reply. A decision
// that claims a heal must carry an element index inside the snapshot bounds.
func (o *Orchestrator) validateDecision(raw *rawDecision, snapshot *schemas.UiSnapshot) (*schemas.HealDecision, error) {
	if raw.CanHeal {
		if raw.ElementIndex == nil {
			return nil, fmt.Errorf("%w: can_heal without element_index", ErrMalformedResponse)
		}
		if snapshot.Element(*raw.ElementIndex) == nil {
			return nil, fmt.Errorf("%w: element_index %d outside snapshot bounds", ErrMalformedResponse, *raw.ElementIndex)
		}
	}
	if raw.Confidence < 0 || raw.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v outside [0,1]", ErrMalformedResponse, raw.Confidence)
	}

	return &schemas.HealDecision{
		CanHeal:       raw.CanHeal,
		Confidence:    raw.Confidence,
		ElementIndex:  raw.ElementIndex,
		Reasoning:     raw.Reasoning,
		Alternatives:  raw.Alternatives,
		Warnings:      raw.Warnings,
		RefusalReason: raw.RefusalReason,
	}, nil
}

// buildInventory serializes the snapshot's elements for the prompt, truncated
// to the configured cap so a huge page cannot blow the context window.
func (o *Orchestrator) buildInventory(snapshot *schemas.UiSnapshot) (string, error) {
	elements := snapshot.Elements
	if o.cfg.MaxElements > 0 && len(elements) > o.cfg.MaxElements {
		o.logger.Warn("Snapshot truncated for prompt",
			zap.Int("elements", len(elements)),
			zap.Int("cap", o.cfg.MaxElements))
		elements = elements[:o.cfg.MaxElements]
	}

	data, err := json.MarshalIndent(elements, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// summarizeSnapshot produces a compact textual page summary for outcome
// validation prompts.
func summarizeSnapshot(snap *schemas.UiSnapshot) string {
	if snap == nil {
		return "(no snapshot available)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\nTitle: %s\nElements:\n", snap.URL, snap.Title)
	for i := range snap.Elements {
		e := &snap.Elements[i]
		if !e.Visible {
			continue
		}
		text := e.Text
		if len(text) > 120 {
			text = text[:120] + "..."
		}
		fmt.Fprintf(&b, "  [%d] <%s> %q\n", e.Index, e.Tag, text)
	}
	return b.String()
}
