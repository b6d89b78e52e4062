// Package reasoning wraps the chat-completion provider used to generate
// natural-language justifications for suggested connections.
package reasoning

import (
	"context"
	"os"
	"strings"
)

// Options control one completion request.
type Options struct {
	MaxTokens   int64
	Temperature float64
	// JSONMode asks the provider to return a single JSON document.
	JSONMode bool
}

// Provider is a minimal chat-completion interface. Implementations should be
// concurrency-safe.
type Provider interface {
	// Name returns the provider name (e.g., "openai").
	Name() string
	// Model returns the model identifier, recorded on suggestions as the
	// model version.
	Model() string
	// Complete returns the assistant text for a single-prompt request.
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

// NewFromEnv constructs a provider based on environment variables.
// REASONING_PROVIDER: "openai" or empty for disabled.
func NewFromEnv() Provider {
	name := strings.ToLower(strings.TrimSpace(os.Getenv("REASONING_PROVIDER")))
	switch name {
	case "openai":
		if p := newOpenAIFromEnv(); p != nil {
			return p
		}
		return nil
	default:
		return nil
	}
}
