package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/xxxsen/dsforge/internal/config"
	"github.com/xxxsen/dsforge/internal/model"
	appErr "github.com/xxxsen/dsforge/internal/pkg/errors"
)

// ILLM is the completion capability the pipeline consumes.
type ILLM interface {
	Complete(ctx context.Context, prompt string) (string, error)
	// CompleteWithReasoning expects a {"cot", "answer"} JSON reply.
	CompleteWithReasoning(ctx context.Context, prompt string) (*Reasoning, error)
	ModelName() string
}

type Reasoning struct {
	Cot    string `json:"cot"`
	Answer string `json:"answer"`
}

type ManagerConfig struct {
	Timeout       int
	MaxInputChars int
	Retry         RetryConfig
	// RequestsPerSecond <= 0 disables rate limiting.
	RequestsPerSecond float64
	Burst             int
}

type providerEntry struct {
	name     string
	provider IProvider
	model    string
}

type Manager struct {
	providers []providerEntry
	limiter   *rate.Limiter
	cfg       ManagerConfig
}

func NewManagerFromConfig(cfg config.AIConfig) (*Manager, error) {
	providers := make(map[string]IProvider, len(cfg.Providers))
	models := make(map[string]string, len(cfg.Providers))
	order := make([]string, 0, len(cfg.Providers))
	for _, item := range cfg.Providers {
		p, err := NewProvider(item.Provider, item.Data)
		if err != nil {
			return nil, fmt.Errorf("init ai provider %s: %w", item.Name, err)
		}
		providers[item.Name] = p
		models[item.Name] = item.Model
		order = append(order, item.Name)
	}
	return NewManager(providers, models, order, ManagerConfig{
		Timeout:           cfg.Timeout,
		MaxInputChars:     cfg.MaxInputChars,
		Retry:             RetryConfig{Attempts: cfg.RetryAttempts},
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	}), nil
}

// NewManager registers providers under their configured names; order decides the fallback chain.
func NewManager(providers map[string]IProvider, defaultModels map[string]string, order []string, cfg ManagerConfig) *Manager {
	m := &Manager{cfg: cfg}
	for _, name := range order {
		p := providers[name]
		if p == nil {
			continue
		}
		m.providers = append(m.providers, providerEntry{name: name, provider: p, model: defaultModels[name]})
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return m
}

// Client resolves a model selection. An empty provider falls back across every
// configured provider with its default model.
func (m *Manager) Client(mc model.ModelConfig) (ILLM, error) {
	if len(m.providers) == 0 {
		return nil, fmt.Errorf("no ai provider configured: %w", appErr.ErrUnavailable)
	}
	if strings.TrimSpace(mc.Provider) == "" {
		entries := make([]GeneratorEntry, 0, len(m.providers))
		for _, p := range m.providers {
			if p.model == "" {
				continue
			}
			entries = append(entries, GeneratorEntry{Name: p.name + "/" + p.model, Generator: m.wrap(NewGenerator(p.provider, p.model))})
		}
		if len(entries) == 0 {
			return nil, fmt.Errorf("no default model configured: %w", appErr.ErrUnavailable)
		}
		return &Client{gen: NewGroupGenerator(entries), model: groupName(entries), cfg: m.cfg}, nil
	}
	for _, p := range m.providers {
		if !strings.EqualFold(p.name, mc.Provider) {
			continue
		}
		modelName := strings.TrimSpace(mc.Model)
		if modelName == "" {
			modelName = p.model
		}
		if modelName == "" {
			return nil, fmt.Errorf("model is required for provider %s: %w", p.name, appErr.ErrMissingParameter)
		}
		return &Client{gen: m.wrap(NewGenerator(p.provider, modelName)), model: modelName, cfg: m.cfg}, nil
	}
	return nil, fmt.Errorf("unknown ai provider %s: %w", mc.Provider, appErr.ErrUnavailable)
}

func (m *Manager) MaxInputChars() int {
	return m.cfg.MaxInputChars
}

func (m *Manager) wrap(gen IGenerator) IGenerator {
	return WrapRateLimit(WrapRetry(gen, m.cfg.Retry), m.limiter)
}

type Client struct {
	gen   IGenerator
	model string
	cfg   ManagerConfig
}

func NewClient(gen IGenerator, modelName string, cfg ManagerConfig) *Client {
	return &Client{gen: gen, model: modelName, cfg: cfg}
}

func (c *Client) ModelName() string {
	return c.model
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.Timeout)*time.Second)
		defer cancel()
	}
	resp, err := c.gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return text, nil
}

func (c *Client) CompleteWithReasoning(ctx context.Context, prompt string) (*Reasoning, error) {
	text, err := c.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return ParseReasoning(text)
}

// ParseReasoning decodes a {"cot", "answer"} reply. A <think> block fills in a missing cot.
func ParseReasoning(text string) (*Reasoning, error) {
	think := ExtractThink(text)
	raw := ExtractJSON(text)
	if raw == "" {
		return nil, fmt.Errorf("no json object in reply: %w", appErr.ErrLLMResponseMalformed)
	}
	var out Reasoning
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode reasoning: %v: %w", err, appErr.ErrLLMResponseMalformed)
	}
	out.Cot = strings.TrimSpace(out.Cot)
	out.Answer = strings.TrimSpace(out.Answer)
	if out.Cot == "" {
		out.Cot = think
	}
	if out.Answer == "" {
		return nil, fmt.Errorf("reply has no answer: %w", appErr.ErrLLMResponseMalformed)
	}
	return &out, nil
}

// ParseStringArray decodes a JSON array of strings, dropping blanks and duplicates.
func ParseStringArray(text string) ([]string, error) {
	raw := ExtractJSONArray(text)
	if raw == "" {
		return nil, fmt.Errorf("no json array in reply: %w", appErr.ErrLLMResponseMalformed)
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode array: %v: %w", err, appErr.ErrLLMResponseMalformed)
	}
	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out, nil
}

// Truncate cuts text to at most limit runes; limit <= 0 keeps it whole.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
