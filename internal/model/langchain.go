package model

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/brdforge/internal/config"
	"github.com/fyrsmithlabs/brdforge/internal/logging"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const jsonInstruction = "Respond with a single valid JSON object and nothing else."

// LangChainClient adapts a langchaingo model to Client.
type LangChainClient struct {
	llm       llms.Model
	maxTokens int
	limiter   *rate.Limiter
	logger    *logging.Logger
}

// NewLangChainClient builds a langchaingo OpenAI-compatible model from cfg.
func NewLangChainClient(cfg config.ModelConfig, logger *logging.Logger) (*LangChainClient, error) {
	if cfg.Name == "" {
		return nil, errors.New("model name required")
	}
	opts := []openai.Option{openai.WithModel(cfg.Name)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}
	if cfg.APIKey.IsSet() {
		opts = append(opts, openai.WithToken(cfg.APIKey.Value()))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create langchaingo client: %w", err)
	}
	return newLangChainClient(llm, cfg, logger), nil
}

func newLangChainClient(llm llms.Model, cfg config.ModelConfig, logger *logging.Logger) *LangChainClient {
	if logger == nil {
		logger = logging.Nop()
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &LangChainClient{
		llm:       llm,
		maxTokens: cfg.MaxTokens,
		limiter:   rate.NewLimiter(limit, burst),
		logger:    logger.Named("model"),
	}
}

// Complete sends messages through langchaingo. JSON mode is requested by
// instruction; callers parse tolerantly.
func (c *LangChainClient) Complete(ctx context.Context, messages []Message, jsonMode bool) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", &Error{Kind: KindPermanent, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	content := make([]llms.MessageContent, 0, len(messages)+1)
	for _, m := range messages {
		role := schema.ChatMessageTypeHuman
		if m.Role == RoleSystem {
			role = schema.ChatMessageTypeSystem
		}
		content = append(content, llms.MessageContent{
			Role:  role,
			Parts: []llms.ContentPart{llms.TextContent{Text: m.Content}},
		})
	}
	if jsonMode {
		content = append(content, llms.MessageContent{
			Role:  schema.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextContent{Text: jsonInstruction}},
		})
	}

	callOpts := []llms.CallOption{llms.WithTemperature(0)}
	if c.maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(c.maxTokens))
	}

	resp, err := c.llm.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return "", &Error{Kind: inferKind(ctx, err), Err: err}
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", &Error{Kind: KindTransient, Err: errors.New("empty choices")}
	}

	out := resp.Choices[0].Content
	c.logger.Trace(ctx, "model response", zap.Int("bytes", len(out)), zap.Bool("json_mode", jsonMode))
	return out, nil
}

// inferKind classifies langchaingo errors, which do not expose status codes.
func inferKind(ctx context.Context, err error) Kind {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return KindPermanent
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return KindRateLimit
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"),
		strings.Contains(msg, "connection"), strings.Contains(msg, "eof"),
		strings.Contains(msg, "500"), strings.Contains(msg, "502"),
		strings.Contains(msg, "503"), strings.Contains(msg, "504"):
		return KindTransient
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"),
		strings.Contains(msg, "400"), strings.Contains(msg, "404"),
		strings.Contains(msg, "invalid"), strings.Contains(msg, "unauthorized"):
		return KindPermanent
	default:
		return KindTransient
	}
}

var _ Client = (*LangChainClient)(nil)
