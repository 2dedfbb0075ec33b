package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhishekraut01/Gen-AI/internal/adapters/llm"
	"github.com/abhishekraut01/Gen-AI/internal/config"
)

func TestBuildModelCaller(t *testing.T) {
	caller, err := BuildModelCaller(config.ModelConfig{Provider: "ollama", OllamaURL: "http://localhost:11434"})
	require.NoError(t, err)
	assert.IsType(t, &llm.OllamaProvider{}, caller)

	caller, err = BuildModelCaller(config.ModelConfig{Provider: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &llm.OpenAIProvider{}, caller)

	// plain-http endpoints (local gateways) may run without a key
	_, err = BuildModelCaller(config.ModelConfig{Provider: "openai", BaseURL: "http://localhost:4000"})
	assert.NoError(t, err)
}

func TestBuildModelCaller_Errors(t *testing.T) {
	_, err := BuildModelCaller(config.ModelConfig{Provider: "openai"})
	assert.ErrorContains(t, err, "api_key")

	_, err = BuildModelCaller(config.ModelConfig{Provider: "telepathy"})
	assert.ErrorContains(t, err, "unsupported")
}
