package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// StatusError is returned when a provider answers with a non-2xx status.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s request failed: http %d: %s", e.Provider, e.StatusCode, strings.TrimSpace(e.Body))
}

// EmptyContentError marks a 2xx reply that carried no text.
type EmptyContentError struct {
	Provider     string
	FinishReason string
}

func (e *EmptyContentError) Error() string {
	return fmt.Sprintf("%s response has empty content (finish_reason=%q)", e.Provider, e.FinishReason)
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// chatEndpoint speaks the OpenAI-compatible chat completions protocol.
type chatEndpoint struct {
	provider string
	client   *http.Client
	baseURL  string
	apiKey   string
	headers  map[string]string
}

func (c *chatEndpoint) complete(ctx context.Context, model string, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%s api key not configured", c.provider)
	}
	endpoint := strings.TrimRight(c.baseURL, "/") + "/chat/completions"
	data, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	client := c.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{
			Provider:   c.provider,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode %s response: %w", c.provider, err)
	}
	if len(out.Choices) == 0 {
		return "", &EmptyContentError{Provider: c.provider}
	}
	choice := out.Choices[0]
	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return "", &EmptyContentError{Provider: c.provider, FinishReason: choice.FinishReason}
	}
	if reasoning := strings.TrimSpace(choice.Message.ReasoningContent); reasoning != "" {
		// keep provider-side reasoning so the caller can recover a chain of thought
		content = "<think>" + reasoning + "</think>\n" + content
	}
	return content, nil
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if delay := time.Until(when); delay > 0 {
			return delay
		}
	}
	return 0
}
