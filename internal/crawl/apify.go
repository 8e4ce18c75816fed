package crawl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/suPer8Hu/adforge/internal/ai"
)

// maxTextRunes caps how much page text is handed to a prompt.
const maxTextRunes = 6000

var ErrNoContent = errors.New("crawl: page returned no content")

// Page is the readable content of a crawled url.
type Page struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Text        string `json:"text"`
}

// Apify runs a website-content crawler actor synchronously.
type Apify struct {
	baseURL    string
	token      string
	actor      string
	httpClient *http.Client
}

func NewApify(baseURL, token, actor string, httpClient *http.Client) *Apify {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.apify.com/v2"
	}
	if actor == "" {
		actor = "apify~website-content-crawler"
	}
	return &Apify{baseURL: baseURL, token: strings.TrimSpace(token), actor: actor, httpClient: httpClient}
}

type apifyInput struct {
	StartURLs     []apifyStartURL `json:"startUrls"`
	MaxCrawlPages int             `json:"maxCrawlPages"`
	MaxCrawlDepth int             `json:"maxCrawlDepth"`
}

type apifyStartURL struct {
	URL string `json:"url"`
}

type apifyItem struct {
	URL      string `json:"url"`
	Text     string `json:"text"`
	Markdown string `json:"markdown"`
	Metadata struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"metadata"`
}

// Page crawls a single url and returns its text content.
func (a *Apify) Page(ctx context.Context, pageURL string) (*Page, error) {
	if a.token == "" {
		return nil, errors.New("apify: token is required")
	}
	u, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("apify: invalid url %q", pageURL)
	}

	body, err := json.Marshal(apifyInput{
		StartURLs:     []apifyStartURL{{URL: u.String()}},
		MaxCrawlPages: 1,
		MaxCrawlDepth: 0,
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/acts/%s/run-sync-get-dataset-items?token=%s",
		a.baseURL, url.PathEscape(a.actor), url.QueryEscape(a.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("apify: %w", ai.ErrRateLimited)
		}
		return nil, fmt.Errorf("apify: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var items []apifyItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("apify: decode dataset: %w", err)
	}
	for _, it := range items {
		text := strings.TrimSpace(it.Text)
		if text == "" {
			text = strings.TrimSpace(it.Markdown)
		}
		if text == "" {
			continue
		}
		pageOut := &Page{
			URL:         it.URL,
			Title:       strings.TrimSpace(it.Metadata.Title),
			Description: strings.TrimSpace(it.Metadata.Description),
			Text:        truncate(text, maxTextRunes),
		}
		if pageOut.URL == "" {
			pageOut.URL = u.String()
		}
		return pageOut, nil
	}
	return nil, ErrNoContent
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
