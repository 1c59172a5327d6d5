package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider represents different reasoning service providers
type Provider string

const (
	Process    Provider = "process"
	OpenRouter Provider = "openrouter"
	Mock       Provider = "mock"
)

// ErrProcessFailed is returned when the reasoning process cannot be launched,
// exits non-zero or its output cannot be read.
var ErrProcessFailed = errors.New("reasoning process failed")

// Client is the reasoning service: one prompt in, the full response text out.
// No conversation state is carried between calls.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// UsageReporter is implemented by clients that can report token usage of
// their last call and of all calls so far.
type UsageReporter interface {
	GetLastUsage() *UsageStats
	TotalUsage() UsageStats
}

// NewClient creates a new client based on provider.
//
// Recognized options: "command" (string), "args" ([]string), "model" (string),
// "base_url" (string), "timeout" (time.Duration), "responses" ([]string).
func NewClient(provider Provider, apiKey string, options map[string]interface{}) (Client, error) {
	switch provider {
	case Process:
		return newProcessClient(options)
	case OpenRouter:
		return newOpenRouterClient(apiKey, options)
	case Mock:
		responses, _ := options["responses"].([]string)
		return NewMockClient(responses...), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

func stringOption(options map[string]interface{}, key, fallback string) string {
	if v, ok := options[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func durationOption(options map[string]interface{}, key string, fallback time.Duration) time.Duration {
	if v, ok := options[key].(time.Duration); ok && v > 0 {
		return v
	}
	return fallback
}
