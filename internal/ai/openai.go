package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIProvider runs chat completions through langchaingo's OpenAI client.
type OpenAIProvider struct {
	llm   llms.Model
	model string
}

func NewOpenAIProvider(apiKey, baseURL, model string) (*OpenAIProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	m, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai model: %w", err)
	}
	return &OpenAIProvider{llm: m, model: model}, nil
}

// NewLLMProvider wraps any langchaingo model.
func NewLLMProvider(m llms.Model, model string) *OpenAIProvider {
	return &OpenAIProvider{llm: m, model: model}
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message) (Completion, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case "system":
			role = llms.ChatMessageTypeSystem
		case "assistant":
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, m.Content))
	}

	resp, err := p.llm.GenerateContent(ctx, content, llms.WithJSONMode())
	if err != nil {
		if strings.Contains(err.Error(), "429") {
			return Completion{}, fmt.Errorf("openai: %w: %v", ErrRateLimited, err)
		}
		return Completion{}, fmt.Errorf("openai generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, errors.New("openai: no response choices")
	}

	choice := resp.Choices[0]
	return Completion{
		Content:          choice.Content,
		PromptTokens:     intInfo(choice.GenerationInfo, "PromptTokens"),
		CompletionTokens: intInfo(choice.GenerationInfo, "CompletionTokens"),
	}, nil
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
