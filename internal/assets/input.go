package assets

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidInput wraps every validation failure so handlers can map it to 400.
var ErrInvalidInput = errors.New("invalid input")

// Input is the request body of an asset's start route. Validate also fills
// defaults, so it must run before the input is stored.
type Input interface {
	Validate() error
	// ModerationText is the free text a user typed, checked before generation.
	ModerationText() string
	// CorrelationID groups jobs that feed one composite ad. Empty means none.
	CorrelationID() string
}

// Common carries fields shared by every asset input.
type Common struct {
	AdID     string `json:"adId,omitempty"`
	Language string `json:"language,omitempty"`
}

func (c Common) CorrelationID() string { return strings.TrimSpace(c.AdID) }

func (c *Common) normalize() {
	c.AdID = strings.TrimSpace(c.AdID)
	c.Language = strings.TrimSpace(c.Language)
	if c.Language == "" {
		c.Language = "English"
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func required(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return invalid("%s is required", name)
	}
	return nil
}

func maxLen(name, v string, n int) error {
	if len([]rune(v)) > n {
		return invalid("%s must be at most %d characters", name, n)
	}
	return nil
}

// countOr returns def when n is unset and rejects values outside [lo, hi].
func countOr(name string, n, def, lo, hi int) (int, error) {
	if n == 0 {
		return def, nil
	}
	if n < lo || n > hi {
		return 0, invalid("%s must be between %d and %d", name, lo, hi)
	}
	return n, nil
}

func httpURL(name, raw string, optional bool) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if optional {
			return nil
		}
		return invalid("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("%s must be an http(s) url", name)
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func joinText(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}
