package deepseek

import (
	"github.com/Rrens/practice-chat/internal/llm/openai"
)

// NewProvider creates a DeepSeek provider. DeepSeek speaks the OpenAI chat
// completions protocol.
func NewProvider(apiKey, defaultModel string) *openai.Provider {
	if defaultModel == "" {
		defaultModel = "deepseek-chat"
	}
	return openai.NewCompatible(openai.Options{
		Name:         "deepseek",
		APIKey:       apiKey,
		BaseURL:      "https://api.deepseek.com/v1",
		DefaultModel: defaultModel,
		Models:       []string{"deepseek-chat", "deepseek-reasoner"},
		Prefixes:     []string{"deepseek-"},
	})
}
