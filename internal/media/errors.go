package media

import (
	"fmt"
	"net/http"

	"github.com/suPer8Hu/adforge/internal/ai"
)

// vendorError keeps 429 responses recognisable as ai.ErrRateLimited so the
// retry helper and workers treat every vendor the same way.
func vendorError(vendor string, code int, msg string) error {
	if msg == "" {
		msg = fmt.Sprintf("status %d", code)
	}
	if code == http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w: %s", vendor, ai.ErrRateLimited, msg)
	}
	return fmt.Errorf("%s: status %d: %s", vendor, code, msg)
}
