package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ClipDrop wraps the replace-background endpoint.
type ClipDrop struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClipDrop(baseURL, apiKey string, httpClient *http.Client) *ClipDrop {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = "https://clipdrop-api.co"
	}
	return &ClipDrop{apiKey: strings.TrimSpace(apiKey), baseURL: baseURL, httpClient: httpClient}
}

// ReplaceBackground keeps the product in image and paints a new scene from
// prompt behind it. The result is the encoded image returned by the vendor.
func (c *ClipDrop) ReplaceBackground(ctx context.Context, image []byte, filename, prompt string) ([]byte, string, error) {
	if c.apiKey == "" {
		return nil, "", ErrMissingAPIKey
	}
	if len(image) == 0 {
		return nil, "", errors.New("clipdrop: image is required")
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, "", errors.New("clipdrop: prompt is required")
	}
	if filename == "" {
		filename = "image.png"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image_file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("prompt", prompt); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/replace-background/v1", &buf)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, "", vendorError("clipdrop", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("clipdrop: read body: %w", err)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(out)
	}
	return out, ct, nil
}
