package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/neurorouter"
	"golang.org/x/time/rate"

	"github.com/ppiankov/turnguard/internal/memory"
)

// Default endpoints for OpenAI-compatible chat completion APIs.
const (
	DefaultOpenAIURL = "https://api.openai.com/v1/chat/completions"
	DefaultOllamaURL = "http://localhost:11434/v1/chat/completions"
	DefaultGroqURL   = "https://api.groq.com/openai/v1/chat/completions"

	defaultOpenAIModel = "gpt-4o-mini"
	defaultOllamaModel = "llama3.2"
	defaultMaxTokens   = 400
	defaultTimeout     = 60 * time.Second
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint
// (OpenAI, Groq, Ollama).
type OpenAI struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
}

// NewOpenAI builds an OpenAI-compatible oracle. Without an API URL it
// targets OpenAI when a key is set, else a local Ollama.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIURL == "" {
		if cfg.APIKey != "" {
			cfg.APIURL = DefaultOpenAIURL
		} else {
			cfg.APIURL = DefaultOllamaURL
		}
	}
	if cfg.Model == "" {
		if cfg.APIURL == DefaultOllamaURL {
			cfg.Model = defaultOllamaModel
		} else {
			cfg.Model = defaultOpenAIModel
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	o := &OpenAI{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
	if cfg.RatePerSecond > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return o, nil
}

// ChooseNextIntent asks the model for one id from allowed and returns its
// answer as given. Nothing is sent when allowed is empty.
func (o *OpenAI) ChooseNextIntent(ctx context.Context, allowed []string, c IntentContext) (string, error) {
	if len(allowed) == 0 {
		return c.Fallback, nil
	}
	msgs := []map[string]string{
		{"role": "system", "content": chooseSystemPrompt},
		{"role": "user", "content": choosePrompt(allowed, c)},
	}
	answer, err := o.complete(ctx, msgs, 16)
	if err != nil {
		return "", err
	}
	return cleanAnswer(answer), nil
}

// DraftReply sends the system prompt and history and returns the reply text.
func (o *OpenAI) DraftReply(ctx context.Context, system string, history []memory.Message, c DraftContext) (string, error) {
	return o.complete(ctx, chatMessages(draftSystem(system, c), history), o.cfg.MaxTokens)
}

func (o *OpenAI) complete(ctx context.Context, messages []map[string]string, maxTokens int) (string, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("oracle: rate limiter: %w", err)
		}
	}

	body, err := json.Marshal(map[string]interface{}{
		"model":       o.cfg.Model,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": 0,
	})
	if err != nil {
		return "", fmt.Errorf("oracle: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("oracle: create request: %w", err)
	}
	if o.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("oracle: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("oracle: %w: %s", neurorouter.ErrRateLimited, strings.TrimSpace(string(respBody)))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oracle: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil || len(result.Choices) == 0 {
		return "", fmt.Errorf("oracle: empty response")
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}
