package llm

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/verifact/internal/model"
	"github.com/ppiankov/verifact/internal/util"
)

// NewProvider creates a new LLM provider based on configuration.
// An empty or "none" provider disables the LLM and returns nil.
func NewProvider(config Config) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "", "none":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}

// ConfigFromModel converts application settings to an llm.Config. Missing
// credentials are taken from the provider's usual environment variables.
func ConfigFromModel(llmCfg model.LLMConfig, httpCfg model.HTTPConfig) Config {
	cfg := Config{
		Provider:   llmCfg.Provider,
		Model:      llmCfg.Model,
		APIKey:     llmCfg.APIKey,
		BaseURL:    llmCfg.BaseURL,
		Timeout:    llmCfg.Timeout,
		MaxTokens:  llmCfg.MaxTokens,
		HTTPProxy:  httpCfg.HTTPProxy,
		HTTPSProxy: httpCfg.HTTPSProxy,
		NoProxy:    httpCfg.NoProxy,
	}

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		cfg.APIKey = pick(cfg.APIKey, os.Getenv("OPENAI_API_KEY"))
	case "anthropic", "claude":
		cfg.APIKey = pick(cfg.APIKey, os.Getenv("ANTHROPIC_API_KEY"))
	case "ollama":
		cfg.BaseURL = pick(cfg.BaseURL, os.Getenv("OLLAMA_BASE_URL"))
	}
	return cfg
}

// httpClient builds the client shared by the HTTP based providers
func httpClient(config Config, defaultTimeout time.Duration) *http.Client {
	timeout := time.Duration(config.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: util.NewTransport(model.HTTPConfig{
			HTTPProxy:  config.HTTPProxy,
			HTTPSProxy: config.HTTPSProxy,
			NoProxy:    config.NoProxy,
		}),
	}
}
