// Package assets holds every generatable asset type: its input shape, its
// generator, and how the finished payload becomes Creation rows.
package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/suPer8Hu/adforge/internal/crawl"
	"github.com/suPer8Hu/adforge/internal/media"
	"github.com/suPer8Hu/adforge/internal/retry"
)

// Progress lets a generator report intermediate completion (0..100).
type Progress func(pct int)

// Output is what a generator hands back to the worker.
type Output struct {
	Payload any
	Tokens  int
}

type Definition struct {
	Name         string
	CreationType string
	NewInput     func() Input
	Generate     func(ctx context.Context, in Input, progress Progress) (Output, error)

	// Split turns a JSON array payload into one Creation per element.
	Split bool
	// MaxItems caps the number of Creations kept when Split is set. Zero keeps all.
	MaxItems int
	// Score orders split items, highest first. Nil keeps generation order.
	Score func(item json.RawMessage) float64
	// Fragment names the composite slot this asset fills when the input has an adId.
	Fragment string
}

// Items returns the payload as it should be persisted: one element per
// Creation, sorted and sliced according to the definition.
func (d Definition) Items(payload json.RawMessage) ([]json.RawMessage, error) {
	if !d.Split {
		return []json.RawMessage{payload}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("%s: payload is not a list: %w", d.Name, err)
	}
	if d.Score != nil {
		scores := make(map[int]float64, len(items))
		idx := make([]int, len(items))
		for i := range items {
			idx[i] = i
			scores[i] = d.Score(items[i])
		}
		sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
		sorted := make([]json.RawMessage, len(items))
		for i, j := range idx {
			sorted[i] = items[j]
		}
		items = sorted
	}
	if d.MaxItems > 0 && len(items) > d.MaxItems {
		items = items[:d.MaxItems]
	}
	return items, nil
}

// Predictor runs a hosted model (Replicate) and returns output URLs.
type Predictor interface {
	Run(ctx context.Context, model string, input map[string]any) ([]string, error)
}

type BackgroundReplacer interface {
	ReplaceBackground(ctx context.Context, image []byte, filename, prompt string) ([]byte, string, error)
}

type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

type MediaStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	URL(key string) string
}

type PageCrawler interface {
	Page(ctx context.Context, url string) (*crawl.Page, error)
}

// Deps are the vendor clients generators call. Nil clients make the assets
// that need them fail at generation time, not at startup.
type Deps struct {
	Chat       *ChatRunner
	Predictor  Predictor
	Background BackgroundReplacer
	Fetcher    ImageFetcher
	Media      MediaStore
	Crawler    PageCrawler
	Retry      retry.Options
	ImageModel string
	VideoModel string
	Log        zerolog.Logger
}

type Catalog struct {
	defs map[string]Definition
}

// NewCatalog wires every asset generator to deps.
func NewCatalog(deps Deps) *Catalog {
	c := &Catalog{defs: make(map[string]Definition)}
	for _, d := range []Definition{
		marketingHooks(deps),
		benefitStacks(deps),
		faq(deps),
		seo(deps),
		product(deps),
		imageIdeas(deps),
		emailSequence(deps),
		pageGenerator(deps),
		proposal(deps),
		adSocialImage(deps),
		imageToVideo(deps),
		productPlacement(deps),
	} {
		c.defs[d.Name] = d
	}
	return c
}

func (c *Catalog) Get(name string) (Definition, bool) {
	d, ok := c.defs[name]
	return d, ok
}

// All returns definitions sorted by name.
func (c *Catalog) All() []Definition {
	out := make([]Definition, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DecodeInput rebuilds a stored input for the named asset.
func (c *Catalog) DecodeInput(name string, raw json.RawMessage) (Input, error) {
	d, ok := c.defs[name]
	if !ok {
		return nil, fmt.Errorf("unknown asset: %s", name)
	}
	in := d.NewInput()
	if err := json.Unmarshal(raw, in); err != nil {
		return nil, fmt.Errorf("decode %s input: %w", name, err)
	}
	return in, nil
}

// vendorCall runs fn through the shared retry helper.
func (d Deps) vendorCall(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	opts := d.Retry
	opts.Notify = func(err error, next time.Duration) {
		d.Log.Warn().Err(err).Str("vendor", name).Dur("retry_in", next).Msg("vendor call failed, retrying")
	}
	return retry.Do(ctx, opts, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, media.ErrMissingAPIKey) || errors.Is(err, media.ErrBlockedAddress) {
			return retry.Permanent(err)
		}
		return err
	})
}
