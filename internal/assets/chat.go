package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/suPer8Hu/adforge/internal/ai"
	"github.com/suPer8Hu/adforge/internal/retry"
)

var errEmptyPayload = errors.New("empty payload")

// ChatRunner sends prompts to the primary model through the retry helper and,
// once those attempts are spent, gives the fallback model a single try.
type ChatRunner struct {
	primary  ai.Provider
	fallback ai.Provider
	opts     retry.Options
	log      zerolog.Logger
}

func NewChatRunner(primary, fallback ai.Provider, opts retry.Options, log zerolog.Logger) *ChatRunner {
	return &ChatRunner{primary: primary, fallback: fallback, opts: opts, log: log}
}

// run calls the model until accept takes the reply. Tokens spent on rejected
// replies are still counted.
func (r *ChatRunner) run(ctx context.Context, messages []ai.Message, accept func(content string) error) (int, error) {
	if r == nil || r.primary == nil {
		return 0, errors.New("chat: no provider configured")
	}
	tokens := 0
	attempt := func(p ai.Provider) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			c, err := p.Chat(ctx, messages)
			if err != nil {
				return err
			}
			tokens += c.TotalTokens()
			return accept(c.Content)
		}
	}

	opts := r.opts
	opts.Notify = func(err error, next time.Duration) {
		r.log.Warn().Err(err).Dur("retry_in", next).Msg("chat attempt failed")
	}
	err := retry.Do(ctx, opts, attempt(r.primary))
	if err == nil {
		return tokens, nil
	}
	if r.fallback == nil || ctx.Err() != nil {
		return tokens, err
	}

	r.log.Warn().Err(err).Msg("primary model exhausted, trying fallback")
	if ferr := attempt(r.fallback)(ctx); ferr != nil {
		return tokens, fmt.Errorf("fallback model: %w", ferr)
	}
	return tokens, nil
}

// chatJSON asks for a JSON reply and decodes it into T.
func chatJSON[T any](ctx context.Context, r *ChatRunner, system, user string) (T, int, error) {
	var out T
	tokens, err := r.run(ctx, []ai.Message{ai.System(system), ai.User(user)}, func(content string) error {
		v, err := parseModelPayload[T](content)
		if err != nil {
			return fmt.Errorf("parse model reply: %w", err)
		}
		out = v
		return nil
	})
	return out, tokens, err
}

func parseModelPayload[T any](raw string) (T, error) {
	var zero T
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return zero, errEmptyPayload
	}
	var decoded T
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return zero, err
	}
	return decoded, nil
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

// promptf builds a system prompt that pins the reply to schema.
func promptf(role, schema string) string {
	sb := &strings.Builder{}
	sb.WriteString(role)
	sb.WriteString(" Respond strictly with a single JSON object matching this schema: ")
	sb.WriteString(schema)
	sb.WriteString(". Do not add commentary or markdown.")
	return sb.String()
}
