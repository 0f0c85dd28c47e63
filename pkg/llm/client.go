// Package llm orchestrates the two LLM stages: prompt rendering with version
// capture, schema validation of stage outputs, and the deterministic policy
// reconciliation that overrides the model when precheck facts contradict it.
package llm

import "context"

// Stage labels, also recorded on interaction transcripts.
const (
	StageStructure = "llm1"
	StageSuggest   = "llm2"
)

// Request is one completion call. Stage lets runtimes without a real model
// behind them decide what shape to produce.
type Request struct {
	Stage        string
	Model        string
	SystemPrompt string
	UserPrompt   string
}

// Client is the LLM transport port. Implementations must return the raw
// model output; callers own schema validation and persistence.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}
