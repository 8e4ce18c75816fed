package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Moderator reports whether user supplied text may be sent to generation.
type Moderator interface {
	Check(ctx context.Context, text string) error
}

// NopModerator lets everything through.
type NopModerator struct{}

func (NopModerator) Check(context.Context, string) error { return nil }

// OpenAIModerator calls the OpenAI moderations endpoint.
type OpenAIModerator struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
}

func NewOpenAIModerator(baseURL, apiKey string) *OpenAIModerator {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIModerator{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   "omni-moderation-latest",
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type moderationReq struct {
	Model string `json:"model,omitempty"`
	Input string `json:"input"`
}

type moderationResp struct {
	Results []struct {
		Flagged    bool            `json:"flagged"`
		Categories map[string]bool `json:"categories"`
	} `json:"results"`
}

// Check returns ErrModerationRejected (wrapped with the flagged categories)
// when the vendor flags the text.
func (m *OpenAIModerator) Check(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if m.Client == nil {
		return errors.New("moderation: http client is nil")
	}

	b, err := json.Marshal(moderationReq{Model: m.Model, Input: text})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/moderations", strings.TrimRight(m.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.APIKey)

	resp, err := m.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return statusError("moderation", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded moderationResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return err
	}
	for _, r := range decoded.Results {
		if !r.Flagged {
			continue
		}
		var cats []string
		for name, hit := range r.Categories {
			if hit {
				cats = append(cats, name)
			}
		}
		sort.Strings(cats)
		return fmt.Errorf("%w: %s", ErrModerationRejected, strings.Join(cats, ","))
	}
	return nil
}
