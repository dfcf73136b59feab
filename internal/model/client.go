// Package model is the port to the external language model.
//
// Every caller talks to a Client. Adapters translate transport failures into
// *Error values whose Kind drives the retry decisions made by callers.
package model

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/brdforge/internal/config"
	"github.com/fyrsmithlabs/brdforge/internal/logging"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is one chat message sent to the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Client completes a conversation. When jsonMode is set the model is asked to
// reply with a single JSON object.
type Client interface {
	Complete(ctx context.Context, messages []Message, jsonMode bool) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, messages []Message, jsonMode bool) (string, error)

// Complete calls f.
func (f ClientFunc) Complete(ctx context.Context, messages []Message, jsonMode bool) (string, error) {
	return f(ctx, messages, jsonMode)
}

// NewClient builds the adapter selected by cfg.Provider.
func NewClient(cfg config.ModelConfig, logger *logging.Logger) (Client, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIClient(cfg, logger)
	case "langchaingo":
		return NewLangChainClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}
