package llm

import (
	"context"
	"strings"
)

// Message is a single entry of a chat completion request
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request contains chat completion parameters
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Response contains LLM generation result
type Response struct {
	Content    string
	Model      string
	TokensUsed int
	LatencyMs  int64
}

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// AvailableModels returns list of supported models
	AvailableModels() []string

	// DefaultModel returns the default model
	DefaultModel() string

	// IsConfigured checks if provider has valid credentials
	IsConfigured() bool

	// Supports reports whether the provider serves the named model
	Supports(model string) bool

	// Complete runs a chat completion
	Complete(ctx context.Context, req Request) (*Response, error)
}

// HasModelPrefix reports whether model starts with any of prefixes
func HasModelPrefix(model string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}
