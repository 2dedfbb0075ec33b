package providers

import (
	"fmt"
	"strings"

	"github.com/abhishekraut01/Gen-AI/internal/adapters/llm"
	"github.com/abhishekraut01/Gen-AI/internal/config"
	"github.com/abhishekraut01/Gen-AI/internal/core/domain"
)

// BuildModelCaller creates the model caller selected by configuration.
// It hides local/remote provider selection from callers.
func BuildModelCaller(cfg config.ModelConfig) (domain.ModelCaller, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "ollama":
		return llm.NewOllamaProvider(strings.TrimSpace(cfg.OllamaURL), strings.TrimSpace(cfg.Name)), nil
	case "", "openai":
		baseURL := strings.TrimSpace(cfg.BaseURL)
		if baseURL == "" {
			baseURL = llm.DefaultGeminiBaseURL
		}
		if strings.TrimSpace(cfg.APIKey) == "" && strings.HasPrefix(baseURL, "https://") {
			return nil, fmt.Errorf("model.api_key (or GEMINI_API_KEY) is required for %s", baseURL)
		}
		return llm.NewOpenAIProvider(baseURL, strings.TrimSpace(cfg.APIKey), strings.TrimSpace(cfg.Name)), nil
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.Provider)
	}
}
