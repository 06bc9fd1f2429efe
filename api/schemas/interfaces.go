package schemas

import "context"

// GenerationOptions controls the text generation process of the LLM.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Controls randomness. Lower is more deterministic.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, forces the model to output valid JSON.
	TopP            float64 `json:"top_p"`
	TopK            int     `json:"top_k"`
}

// GenerationRequest encapsulates a complete request to the LLM.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Options      GenerationOptions `json:"options"`
}

// TokenUsage reports the provider's token accounting for one call. Cost
// attribution for the circuit breaker's daily budget is derived from it.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Generation is the provider's reply: raw content plus usage metadata.
type Generation struct {
	Content string     `json:"content"`
	Usage   TokenUsage `json:"usage"`
}

// LLMClient abstracts a single Large Language Model provider.
type LLMClient interface {
	// Generate produces a completion for the request.
	Generate(ctx context.Context, req GenerationRequest) (Generation, error)
	// Close releases any resources held by the client.
	Close() error
}

// SnapshotProvider captures the current page state. The engine does not know
// how snapshots are taken, only that the result conforms to UiSnapshot.
type SnapshotProvider interface {
	CaptureSnapshot(ctx context.Context, failure *FailureContext) (*UiSnapshot, error)
}

// ActionExecutor re-locates an element with the healed locator and performs
// the action. The engine treats this as a single call with an error outcome;
// value carries the input text for actions that need one.
type ActionExecutor interface {
	Execute(ctx context.Context, locator LocatorInfo, action ActionType, value string) error
}
