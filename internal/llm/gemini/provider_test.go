package gemini

import (
	"testing"

	"github.com/Rrens/practice-chat/internal/config"
	"github.com/Rrens/practice-chat/internal/llm"
	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToContents(t *testing.T) {
	history, last, err := toContents([]llm.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "how are you"},
		{Role: "user", Content: "?"},
	})
	require.NoError(t, err)

	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)
	assert.Equal(t, []genai.Part{genai.Text("how are you\n\n?")}, last)
}

func TestToContents_RequiresTrailingUser(t *testing.T) {
	_, _, err := toContents([]llm.Message{{Role: "assistant", Content: "x"}})
	assert.Error(t, err)

	_, _, err = toContents(nil)
	assert.Error(t, err)
}

func TestProvider_Basics(t *testing.T) {
	p := NewProvider(config.GeminiConfig{})
	assert.False(t, p.IsConfigured())
	assert.Equal(t, "gemini-2.5-flash", p.DefaultModel())
	assert.True(t, p.Supports("gemini-1.5-pro"))
	assert.False(t, p.Supports("gpt-4"))
}
