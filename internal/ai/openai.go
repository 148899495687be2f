package ai

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

type openAIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	// Timeout bounds one HTTP exchange in seconds.
	Timeout int `json:"timeout"`
}

type openAIProvider struct {
	endpoint *chatEndpoint
}

func (p *openAIProvider) Name() string {
	return "openai"
}

func (p *openAIProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	return p.endpoint.complete(ctx, model, prompt)
}

func createOpenAIFactory(args interface{}) (IProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &openAIProvider{endpoint: &chatEndpoint{
		provider: "openai",
		client:   httpClient(cfg.Timeout),
		baseURL:  baseURL,
		apiKey:   strings.TrimSpace(cfg.APIKey),
	}}, nil
}

func httpClient(timeoutSeconds int) *http.Client {
	if timeoutSeconds <= 0 {
		return http.DefaultClient
	}
	return &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second}
}

func init() {
	Register("openai", createOpenAIFactory)
}
