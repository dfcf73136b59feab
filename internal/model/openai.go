package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fyrsmithlabs/brdforge/internal/config"
	"github.com/fyrsmithlabs/brdforge/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.groq.com/openai/v1"

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
// It performs a single attempt per call; wrap it in Retrying for retries.
type OpenAIClient struct {
	model      string
	apiKey     config.Secret
	baseURL    string
	maxTokens  int
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logging.Logger
}

// NewOpenAIClient creates a chat completions client.
func NewOpenAIClient(cfg config.ModelConfig, logger *logging.Logger) (*OpenAIClient, error) {
	if cfg.Name == "" {
		return nil, errors.New("model name required")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &OpenAIClient{
		model:      cfg.Name,
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{Timeout: cfg.Timeout.Duration()},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger.Named("model"),
	}, nil
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends one chat completion request.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, jsonMode bool) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", &Error{Kind: KindPermanent, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	req := chatRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: c.maxTokens,
	}
	if jsonMode {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", &Error{Kind: KindPermanent, Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindPermanent, Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey.IsSet() {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey.Value())
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", &Error{Kind: KindPermanent, Err: ctx.Err()}
		}
		return "", &Error{Kind: KindTransient, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Kind: KindTransient, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(payload)
		var apiErr apiError
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return "", &Error{Kind: kindForStatus(resp.StatusCode), StatusCode: resp.StatusCode, Err: errors.New(truncate(msg, 500))}
	}

	var out chatResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", &Error{Kind: KindTransient, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(out.Choices) == 0 {
		return "", &Error{Kind: KindTransient, StatusCode: resp.StatusCode, Err: errors.New("empty choices")}
	}

	content := out.Choices[0].Message.Content
	c.logger.Trace(ctx, "model response", zap.Int("bytes", len(content)), zap.Bool("json_mode", jsonMode))
	return content, nil
}

var _ Client = (*OpenAIClient)(nil)
