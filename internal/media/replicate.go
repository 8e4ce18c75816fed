package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrMissingAPIKey indicates that a vendor client was configured without credentials.
var ErrMissingAPIKey = errors.New("media: api key is required")

// ReplicateOptions configures the Replicate predictions client.
type ReplicateOptions struct {
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
	HTTPClient   *http.Client
	Logger       zerolog.Logger
}

// Replicate runs predictions against public models and waits for their output.
type Replicate struct {
	apiKey       string
	baseURL      string
	pollInterval time.Duration
	httpClient   *http.Client
	log          zerolog.Logger
}

type predictionRequest struct {
	Input map[string]any `json:"input"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
}

func NewReplicate(opts ReplicateOptions) *Replicate {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.replicate.com/v1"
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &Replicate{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      baseURL,
		pollInterval: poll,
		httpClient:   httpClient,
		log:          opts.Logger,
	}
}

// Run creates a prediction for model ("owner/name") and returns its output
// URLs once the prediction has succeeded. Single string outputs are returned
// as a one element slice.
func (r *Replicate) Run(ctx context.Context, model string, input map[string]any) ([]string, error) {
	if r.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	model = strings.Trim(strings.TrimSpace(model), "/")
	if model == "" {
		return nil, errors.New("replicate: model is required")
	}

	body, err := json.Marshal(predictionRequest{Input: input})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/models/%s/predictions", r.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "wait")

	p, err := r.do(req)
	if err != nil {
		return nil, err
	}

	for !terminal(p.Status) {
		r.log.Debug().Str("prediction", p.ID).Str("status", p.Status).Msg("replicate: waiting")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.pollInterval):
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/predictions/%s", r.baseURL, p.ID), nil)
		if err != nil {
			return nil, err
		}
		if p, err = r.do(req); err != nil {
			return nil, err
		}
	}

	if p.Status != "succeeded" {
		if p.Error != nil {
			return nil, fmt.Errorf("replicate: prediction %s %s: %v", p.ID, p.Status, p.Error)
		}
		return nil, fmt.Errorf("replicate: prediction %s %s", p.ID, p.Status)
	}
	return outputURLs(p.Output)
}

func (r *Replicate) do(req *http.Request) (*prediction, error) {
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, vendorError("replicate", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var p prediction
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("replicate: decode prediction: %w", err)
	}
	if p.ID == "" {
		return nil, errors.New("replicate: prediction id missing")
	}
	return &p, nil
}

func terminal(status string) bool {
	switch status {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

func outputURLs(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, errors.New("replicate: empty output")
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return []string{one}, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, fmt.Errorf("replicate: unexpected output: %s", string(raw))
	}
	if len(many) == 0 {
		return nil, errors.New("replicate: empty output")
	}
	return many, nil
}
