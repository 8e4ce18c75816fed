package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/suPer8Hu/adforge/internal/ai"
	"github.com/suPer8Hu/adforge/internal/crawl"
	"github.com/suPer8Hu/adforge/internal/media"
	"github.com/suPer8Hu/adforge/internal/retry"
)

// scriptedProvider replays replies in order; a reply starting with "ERR:"
// is returned as an error.
type scriptedProvider struct {
	mu      sync.Mutex
	replies []string
	calls   int
	prompts []string
}

func (p *scriptedProvider) Chat(ctx context.Context, messages []ai.Message) (ai.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.prompts = append(p.prompts, messages[len(messages)-1].Content)
	if len(p.replies) == 0 {
		return ai.Completion{}, errors.New("no scripted reply")
	}
	r := p.replies[0]
	p.replies = p.replies[1:]
	if strings.HasPrefix(r, "ERR:") {
		return ai.Completion{}, errors.New(strings.TrimPrefix(r, "ERR:"))
	}
	return ai.Completion{Content: r, PromptTokens: 10, CompletionTokens: 5}, nil
}

func fastRetry() retry.Options {
	return retry.Options{Attempts: 2, InitialDelay: time.Millisecond}
}

func newRunner(primary, fallback ai.Provider) *ChatRunner {
	return NewChatRunner(primary, fallback, fastRetry(), zerolog.Nop())
}

func noProgress(int) {}

func TestExtractJSONFragment(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```":        `{"a":1}`,
		"Sure! here you go {\"a\":[1]} ok": `{"a":[1]}`,
		"  [1,2]  ":                        `[1,2]`,
		"":                                 "",
	}
	for in, want := range cases {
		if got := extractJSONFragment(in); got != want {
			t.Fatalf("extractJSONFragment(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestChatRunnerRetriesThenFallback(t *testing.T) {
	primary := &scriptedProvider{replies: []string{"ERR:boom", "ERR:boom again"}}
	fallback := &scriptedProvider{replies: []string{`{"title":"t","description":"d","keywords":["x"]}`}}

	out, tokens, err := chatJSON[SEOTags](context.Background(), newRunner(primary, fallback), "s", "u")
	if err != nil {
		t.Fatalf("chatJSON: %v", err)
	}
	if primary.calls != 2 || fallback.calls != 1 {
		t.Fatalf("calls primary=%d fallback=%d, want 2/1", primary.calls, fallback.calls)
	}
	if out.Title != "t" || tokens != 15 {
		t.Fatalf("out=%+v tokens=%d", out, tokens)
	}
}

func TestChatRunnerRetriesUnparseableReply(t *testing.T) {
	primary := &scriptedProvider{replies: []string{"not json at all", `{"title":"ok"}`}}

	out, tokens, err := chatJSON[SEOTags](context.Background(), newRunner(primary, nil), "s", "u")
	if err != nil {
		t.Fatalf("chatJSON: %v", err)
	}
	if out.Title != "ok" || primary.calls != 2 {
		t.Fatalf("out=%+v calls=%d", out, primary.calls)
	}
	if tokens != 30 {
		t.Fatalf("tokens = %d, want both attempts counted", tokens)
	}
}

func TestChatRunnerFailsWithoutFallback(t *testing.T) {
	primary := &scriptedProvider{replies: []string{"ERR:a", "ERR:b"}}
	if _, _, err := chatJSON[SEOTags](context.Background(), newRunner(primary, nil), "s", "u"); err == nil {
		t.Fatalf("expected error")
	}
	if primary.calls != 2 {
		t.Fatalf("calls = %d, want 2", primary.calls)
	}
}

func TestChatRunnerFallbackFailure(t *testing.T) {
	primary := &scriptedProvider{replies: []string{"ERR:a", "ERR:b"}}
	fallback := &scriptedProvider{replies: []string{"ERR:c"}}
	_, _, err := chatJSON[SEOTags](context.Background(), newRunner(primary, fallback), "s", "u")
	if err == nil || !strings.Contains(err.Error(), "fallback model") {
		t.Fatalf("err = %v", err)
	}
}

func TestCatalogHasEveryAsset(t *testing.T) {
	c := NewCatalog(Deps{})
	want := []string{
		"ad-social-image", "benefit-stacks", "email-sequence", "faq", "image-ideas", "image-to-video",
		"marketing-hooks", "page-generator", "product", "product-placement", "proposal", "seo",
	}
	all := c.All()
	if len(all) != len(want) {
		t.Fatalf("catalog has %d assets, want %d", len(all), len(want))
	}
	for i, d := range all {
		if d.Name != want[i] {
			t.Fatalf("asset[%d] = %s, want %s", i, d.Name, want[i])
		}
		if d.CreationType == "" || d.NewInput == nil || d.Generate == nil {
			t.Fatalf("asset %s is incomplete", d.Name)
		}
	}
}

func TestDecodeInput(t *testing.T) {
	c := NewCatalog(Deps{})
	in, err := c.DecodeInput("faq", json.RawMessage(`{"productName":"p","productDescription":"d","adId":"ad1"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if in.CorrelationID() != "ad1" {
		t.Fatalf("correlation id = %q", in.CorrelationID())
	}
	if _, err := c.DecodeInput("nope", nil); err == nil {
		t.Fatalf("expected unknown asset error")
	}
}

func TestInputValidation(t *testing.T) {
	hooks := &MarketingHooksInput{BusinessDescription: "coffee shop"}
	if err := hooks.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if hooks.HookLength != 8 || hooks.Language != "English" {
		t.Fatalf("defaults not applied: %+v", hooks)
	}

	bad := []Input{
		&MarketingHooksInput{},
		&MarketingHooksInput{BusinessDescription: "x", HookLength: 99},
		&FAQInput{ProductName: "p", ProductDescription: "d", Count: 11},
		&ImageToVideoInput{ImageURL: "ftp://x/y.png", Prompt: "zoom"},
		&ProductInput{ProductName: "p", ProductURL: "not a url"},
		&AdSocialImageInput{ProductDescription: "p", Platform: "myspace"},
		&EmailSequenceInput{ProductName: "p"},
	}
	for i, in := range bad {
		err := in.Validate()
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("case %d: err = %v, want ErrInvalidInput", i, err)
		}
	}
}

func TestHooksSortedAndSliced(t *testing.T) {
	items := make([]string, 0, hookBatch)
	for i := 0; i < hookBatch; i++ {
		// scores 3..27 spread in a scrambled order
		s := (i*7)%hookBatch + 1
		items = append(items, fmt.Sprintf(`{"h":"hook %d","c":%d,"l":%d,"a":%d}`, i, min(s, 10), min(max(s-10, 1), 10), min(max(s-20, 1), 10)))
	}
	primary := &scriptedProvider{replies: []string{`{"items":[` + strings.Join(items, ",") + `]}`}}
	def, _ := NewCatalog(Deps{Chat: newRunner(primary, nil)}).Get("marketing-hooks")

	in := &MarketingHooksInput{BusinessDescription: "bakery", HookLength: 5}
	if err := in.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	out, err := def.Generate(context.Background(), in, noProgress)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	payload, _ := json.Marshal(out.Payload)

	kept, err := def.Items(payload)
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	if len(kept) != maxHooks {
		t.Fatalf("kept %d hooks, want %d", len(kept), maxHooks)
	}
	prev := 1e9
	for _, raw := range kept {
		s := hookScore(raw)
		if s > prev {
			t.Fatalf("hooks not sorted descending: %v after %v", s, prev)
		}
		prev = s
	}
	if !strings.Contains(primary.prompts[0], "5 words") {
		t.Fatalf("hook length not in prompt: %s", primary.prompts[0])
	}
}

func TestItemsForSingleObjectAsset(t *testing.T) {
	def, _ := NewCatalog(Deps{}).Get("seo")
	items, err := def.Items(json.RawMessage(`{"title":"t"}`))
	if err != nil || len(items) != 1 {
		t.Fatalf("items = %v, err = %v", items, err)
	}
}

type fakePredictor struct {
	models []string
	inputs []map[string]any
}

func (f *fakePredictor) Run(ctx context.Context, model string, input map[string]any) ([]string, error) {
	f.models = append(f.models, model)
	f.inputs = append(f.inputs, input)
	return []string{fmt.Sprintf("https://cdn.test/%d.png", len(f.models))}, nil
}

func TestAdSocialImageRendersEachConcept(t *testing.T) {
	primary := &scriptedProvider{replies: []string{
		`{"items":[{"headline":"a","caption":"c1","prompt":"p1"},{"headline":"b","caption":"c2","prompt":"p2"},{"headline":"x","caption":"x","prompt":"x"}]}`,
	}}
	pred := &fakePredictor{}
	def, _ := NewCatalog(Deps{Chat: newRunner(primary, nil), Predictor: pred, ImageModel: "flux", Retry: fastRetry()}).Get("ad-social-image")

	in := &AdSocialImageInput{ProductDescription: "sneakers", Platform: "TikTok"}
	if err := in.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	var seen []int
	out, err := def.Generate(context.Background(), in, func(p int) { seen = append(seen, p) })
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	imgs := out.Payload.([]SocialImage)
	if len(imgs) != 2 {
		t.Fatalf("images = %d, want 2 (variants default)", len(imgs))
	}
	if imgs[1].ImageURL != "https://cdn.test/2.png" || imgs[0].Platform != "tiktok" {
		t.Fatalf("images = %+v", imgs)
	}
	if pred.inputs[0]["aspect_ratio"] != "9:16" || pred.models[0] != "flux" {
		t.Fatalf("predictor input = %v model = %v", pred.inputs[0], pred.models)
	}
	if seen[len(seen)-1] != 90 {
		t.Fatalf("progress = %v", seen)
	}
}

type fakeFetcher struct{}

func (fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	return []byte("src"), "image/png", nil
}

type flakyBackground struct{ calls int }

func (f *flakyBackground) ReplaceBackground(ctx context.Context, image []byte, filename, prompt string) ([]byte, string, error) {
	f.calls++
	if f.calls == 1 {
		return nil, "", errors.New("temporary")
	}
	return []byte("out:" + string(image)), "image/jpeg", nil
}

func TestProductPlacementStoresResult(t *testing.T) {
	dir := t.TempDir()
	store, err := media.NewFileStore(dir, "https://files.test")
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	bg := &flakyBackground{}
	def, _ := NewCatalog(Deps{
		Background: bg,
		Fetcher:    fakeFetcher{},
		Media:      store,
		Retry:      fastRetry(),
		Log:        zerolog.Nop(),
	}).Get("product-placement")

	in := &ProductPlacementInput{ImageURL: "https://shop.test/p.png", Scene: "marble kitchen"}
	if err := in.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	out, err := def.Generate(context.Background(), in, noProgress)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if bg.calls != 2 {
		t.Fatalf("background calls = %d, want retry once", bg.calls)
	}
	p := out.Payload.(Placement)
	if !strings.HasPrefix(p.ImageURL, "https://files.test/placements/") || !strings.HasSuffix(p.ImageURL, ".jpg") {
		t.Fatalf("image url = %q", p.ImageURL)
	}
	key := strings.TrimPrefix(p.ImageURL, "https://files.test/")
	b, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	if err != nil || string(b) != "out:src" {
		t.Fatalf("stored file = %q, err = %v", b, err)
	}
}

type blockedFetcher struct{ calls int }

func (f *blockedFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	f.calls++
	return nil, "", media.ErrBlockedAddress
}

func TestProductPlacementInternalURLIsNotRetried(t *testing.T) {
	store, err := media.NewFileStore(t.TempDir(), "https://files.test")
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	fetcher := &blockedFetcher{}
	bg := &flakyBackground{}
	def, _ := NewCatalog(Deps{
		Background: bg,
		Fetcher:    fetcher,
		Media:      store,
		Retry:      fastRetry(),
		Log:        zerolog.Nop(),
	}).Get("product-placement")

	in := &ProductPlacementInput{ImageURL: "http://169.254.169.254/latest", Scene: "studio"}
	if err := in.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if _, err := def.Generate(context.Background(), in, noProgress); !errors.Is(err, media.ErrBlockedAddress) {
		t.Fatalf("err = %v, want ErrBlockedAddress", err)
	}
	if fetcher.calls != 1 || bg.calls != 0 {
		t.Fatalf("fetch calls = %d, background calls = %d", fetcher.calls, bg.calls)
	}
}

type failingCrawler struct{ calls int }

func (f *failingCrawler) Page(ctx context.Context, url string) (*crawl.Page, error) {
	f.calls++
	return nil, crawl.ErrNoContent
}

func TestProductGeneratesWithoutCrawl(t *testing.T) {
	primary := &scriptedProvider{replies: []string{`{"name":"","tagline":"t","description":"d","features":["f"]}`}}
	cr := &failingCrawler{}
	def, _ := NewCatalog(Deps{Chat: newRunner(primary, nil), Crawler: cr, Retry: fastRetry(), Log: zerolog.Nop()}).Get("product")

	in := &ProductInput{ProductName: "Mug", ProductURL: "https://shop.test/mug"}
	if err := in.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	out, err := def.Generate(context.Background(), in, noProgress)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	pc := out.Payload.(ProductCopy)
	if pc.Name != "Mug" || pc.SourceURL != "https://shop.test/mug" {
		t.Fatalf("copy = %+v", pc)
	}
	if cr.calls != 2 {
		t.Fatalf("crawler calls = %d, want retried", cr.calls)
	}
	if strings.Contains(primary.prompts[0], "Use only facts") {
		t.Fatalf("prompt should not carry page context after crawl failure")
	}
}

func TestVisualAssetsNeedVendors(t *testing.T) {
	def, _ := NewCatalog(Deps{}).Get("image-to-video")
	in := &ImageToVideoInput{ImageURL: "https://x.test/a.png", Prompt: "slow pan"}
	if _, err := def.Generate(context.Background(), in, noProgress); err == nil {
		t.Fatalf("expected error without predictor")
	}
}
