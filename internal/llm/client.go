package llm

import "context"

// Client defines the interface for LLM providers. Complete sends one
// prompt and returns the raw text of the model's reply; all structure is
// imposed by the extraction parser, not the provider.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
