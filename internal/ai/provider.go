package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited is returned when a vendor answers 429.
	ErrRateLimited = errors.New("ai: rate limited by provider")
	// ErrModerationRejected aborts a generation before any spend.
	ErrModerationRejected = errors.New("ai: input rejected by moderation")
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func System(content string) Message { return Message{Role: "system", Content: content} }
func User(content string) Message   { return Message{Role: "user", Content: content} }

type Completion struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

func (c Completion) TotalTokens() int { return c.PromptTokens + c.CompletionTokens }

// Provider is a chat completion backend. Implementations ask the model for a
// JSON object reply.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (Completion, error)
}

// statusError maps a non-2xx vendor response to an error, keeping 429s
// recognisable through errors.Is.
func statusError(vendor string, code int, msg string) error {
	if msg == "" {
		msg = fmt.Sprintf("status %d", code)
	}
	if code == http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w: %s", vendor, ErrRateLimited, msg)
	}
	return fmt.Errorf("%s: %s", vendor, msg)
}
