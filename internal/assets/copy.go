package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	hookBatch = 25
	maxHooks  = 20
)

type MarketingHooksInput struct {
	Common
	BusinessDescription string `json:"businessDescription" binding:"required"`
	TargetAudience      string `json:"targetAudience,omitempty"`
	Tone                string `json:"tone,omitempty"`
	HookLength          int    `json:"hookLength,omitempty"`
}

func (in *MarketingHooksInput) Validate() error {
	in.normalize()
	if err := firstErr(
		required("businessDescription", in.BusinessDescription),
		maxLen("businessDescription", in.BusinessDescription, 2000),
	); err != nil {
		return err
	}
	n, err := countOr("hookLength", in.HookLength, 8, 3, 30)
	if err != nil {
		return err
	}
	in.HookLength = n
	return nil
}

func (in *MarketingHooksInput) ModerationText() string {
	return joinText(in.BusinessDescription, in.TargetAudience, in.Tone)
}

// Hook is one scored opening line. C, L and A rate curiosity, loss aversion
// and authority on a 1..10 scale.
type Hook struct {
	H string `json:"h"`
	C int    `json:"c"`
	L int    `json:"l"`
	A int    `json:"a"`
}

func hookScore(item json.RawMessage) float64 {
	var h Hook
	if err := json.Unmarshal(item, &h); err != nil {
		return 0
	}
	return float64(h.C + h.L + h.A)
}

func marketingHooks(deps Deps) Definition {
	return Definition{
		Name:         "marketing-hooks",
		CreationType: "hook",
		NewInput:     func() Input { return &MarketingHooksInput{} },
		Split:        true,
		MaxItems:     maxHooks,
		Score:        hookScore,
		Generate: func(ctx context.Context, raw Input, progress Progress) (Output, error) {
			in := raw.(*MarketingHooksInput)
			system := promptf(
				"You are a direct-response copywriter writing scroll-stopping ad hooks.",
				`{"items":[{"h":string,"c":int,"l":int,"a":int}]}`,
			)
			user := fmt.Sprintf(
				"Write %d distinct hooks of about %d words in %s for this business: %q. Audience: %q. Tone: %q. "+
					"Score each hook from 1 to 10 for curiosity (c), loss aversion (l) and authority (a).",
				hookBatch, in.HookLength, in.Language, in.BusinessDescription, in.TargetAudience, in.Tone,
			)
			reply, tokens, err := chatJSON[struct {
				Items []Hook `json:"items"`
			}](ctx, deps.Chat, system, user)
			if err != nil {
				return Output{Tokens: tokens}, err
			}

			hooks := make([]Hook, 0, len(reply.Items))
			for _, h := range reply.Items {
				h.H = strings.TrimSpace(h.H)
				if h.H == "" {
					continue
				}
				h.C, h.L, h.A = clampScore(h.C), clampScore(h.L), clampScore(h.A)
				hooks = append(hooks, h)
			}
			if len(hooks) == 0 {
				return Output{Tokens: tokens}, errors.New("model returned no hooks")
			}
			return Output{Payload: hooks, Tokens: tokens}, nil
		},
	}
}

func clampScore(n int) int {
	if n < 1 {
		return 1
	}
	if n > 10 {
		return 10
	}
	return n
}

type BenefitStacksInput struct {
	Common
	ProductName        string `json:"productName" binding:"required"`
	ProductDescription string `json:"productDescription" binding:"required"`
	TargetAudience     string `json:"targetAudience,omitempty"`
}

func (in *BenefitStacksInput) Validate() error {
	in.normalize()
	return firstErr(
		required("productName", in.ProductName),
		required("productDescription", in.ProductDescription),
		maxLen("productDescription", in.ProductDescription, 4000),
	)
}

func (in *BenefitStacksInput) ModerationText() string {
	return joinText(in.ProductName, in.ProductDescription, in.TargetAudience)
}

type BenefitStack struct {
	Benefit string `json:"benefit"`
	Proof   string `json:"proof"`
	Outcome string `json:"outcome"`
}

func benefitStacks(deps Deps) Definition {
	return Definition{
		Name:         "benefit-stacks",
		CreationType: "benefit-stack",
		NewInput:     func() Input { return &BenefitStacksInput{} },
		Split:        true,
		MaxItems:     10,
		Fragment:     "benefits",
		Generate: func(ctx context.Context, raw Input, progress Progress) (Output, error) {
			in := raw.(*BenefitStacksInput)
			system := promptf(
				"You are a conversion copywriter turning product features into benefit stacks.",
				`{"items":[{"benefit":string,"proof":string,"outcome":string}]}`,
			)
			user := fmt.Sprintf(
				"Write 10 benefit stacks in %s for %q. Description: %q. Audience: %q.",
				in.Language, in.ProductName, in.ProductDescription, in.TargetAudience,
			)
			reply, tokens, err := chatJSON[struct {
				Items []BenefitStack `json:"items"`
			}](ctx, deps.Chat, system, user)
			if err != nil {
				return Output{Tokens: tokens}, err
			}
			if len(reply.Items) == 0 {
				return Output{Tokens: tokens}, errors.New("model returned no benefit stacks")
			}
			return Output{Payload: reply.Items, Tokens: tokens}, nil
		},
	}
}

type FAQInput struct {
	Common
	ProductName        string `json:"productName" binding:"required"`
	ProductDescription string `json:"productDescription" binding:"required"`
	Count              int    `json:"count,omitempty"`
}

func (in *FAQInput) Validate() error {
	in.normalize()
	if err := firstErr(
		required("productName", in.ProductName),
		required("productDescription", in.ProductDescription),
	); err != nil {
		return err
	}
	n, err := countOr("count", in.Count, 8, 1, 10)
	in.Count = n
	return err
}

func (in *FAQInput) ModerationText() string {
	return joinText(in.ProductName, in.ProductDescription)
}

type FAQEntry struct {
	Q string `json:"q"`
	A string `json:"a"`
}

func faq(deps Deps) Definition {
	return Definition{
		Name:         "faq",
		CreationType: "faq",
		NewInput:     func() Input { return &FAQInput{} },
		Split:        true,
		MaxItems:     10,
		Fragment:     "faq",
		Generate: func(ctx context.Context, raw Input, progress Progress) (Output, error) {
			in := raw.(*FAQInput)
			system := promptf(
				"You write FAQ sections that remove buying objections.",
				`{"items":[{"q":string,"a":string}]}`,
			)
			user := fmt.Sprintf("Write %d FAQ entries in %s for %q: %q.",
				in.Count, in.Language, in.ProductName, in.ProductDescription)
			reply, tokens, err := chatJSON[struct {
				Items []FAQEntry `json:"items"`
			}](ctx, deps.Chat, system, user)
			if err != nil {
				return Output{Tokens: tokens}, err
			}
			if len(reply.Items) == 0 {
				return Output{Tokens: tokens}, errors.New("model returned no faq entries")
			}
			return Output{Payload: reply.Items, Tokens: tokens}, nil
		},
	}
}

type SEOInput struct {
	Common
	PageTopic    string   `json:"pageTopic" binding:"required"`
	BusinessName string   `json:"businessName,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
}

func (in *SEOInput) Validate() error {
	in.normalize()
	if err := required("pageTopic", in.PageTopic); err != nil {
		return err
	}
	if len(in.Keywords) > 20 {
		return invalid("at most 20 keywords")
	}
	return nil
}

func (in *SEOInput) ModerationText() string {
	return joinText(in.PageTopic, in.BusinessName, strings.Join(in.Keywords, ", "))
}

type SEOTags struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

func seo(deps Deps) Definition {
	return Definition{
		Name:         "seo",
		CreationType: "seo",
		NewInput:     func() Input { return &SEOInput{} },
		Fragment:     "seo",
		Generate: func(ctx context.Context, raw Input, progress Progress) (Output, error) {
			in := raw.(*SEOInput)
			system := promptf(
				"You are an SEO specialist writing meta tags. Titles stay under 60 characters, descriptions under 160.",
				`{"title":string,"description":string,"keywords":string[]}`,
			)
			user := fmt.Sprintf("Write meta tags in %s for a page about %q by %q. Seed keywords: %s.",
				in.Language, in.PageTopic, in.BusinessName, strings.Join(in.Keywords, ", "))
			tags, tokens, err := chatJSON[SEOTags](ctx, deps.Chat, system, user)
			if err != nil {
				return Output{Tokens: tokens}, err
			}
			if strings.TrimSpace(tags.Title) == "" {
				return Output{Tokens: tokens}, errors.New("model returned no title")
			}
			tags.Keywords = normalizeKeywords(tags.Keywords)
			return Output{Payload: tags, Tokens: tokens}, nil
		},
	}
}

func normalizeKeywords(keywords []string) []string {
	seen := make(map[string]struct{})
	result := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		lower := strings.ToLower(kw)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		result = append(result, kw)
	}
	return result
}

type ImageIdeasInput struct {
	Common
	ProductDescription string `json:"productDescription" binding:"required"`
	Style              string `json:"style,omitempty"`
	Count              int    `json:"count,omitempty"`
}

func (in *ImageIdeasInput) Validate() error {
	in.normalize()
	if err := required("productDescription", in.ProductDescription); err != nil {
		return err
	}
	n, err := countOr("count", in.Count, 6, 1, 8)
	in.Count = n
	return err
}

func (in *ImageIdeasInput) ModerationText() string {
	return joinText(in.ProductDescription, in.Style)
}

type ImageIdea struct {
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
	Style  string `json:"style"`
}

func imageIdeas(deps Deps) Definition {
	return Definition{
		Name:         "image-ideas",
		CreationType: "image-idea",
		NewInput:     func() Input { return &ImageIdeasInput{} },
		Split:        true,
		MaxItems:     8,
		Generate: func(ctx context.Context, raw Input, progress Progress) (Output, error) {
			in := raw.(*ImageIdeasInput)
			system := promptf(
				"You are an art director proposing ad photo concepts. Prompts are written in English for an image model.",
				`{"items":[{"title":string,"prompt":string,"style":string}]}`,
			)
			user := fmt.Sprintf("Propose %d concepts (titles in %s) for: %q. Preferred style: %q.",
				in.Count, in.Language, in.ProductDescription, in.Style)
			reply, tokens, err := chatJSON[struct {
				Items []ImageIdea `json:"items"`
			}](ctx, deps.Chat, system, user)
			if err != nil {
				return Output{Tokens: tokens}, err
			}
			if len(reply.Items) == 0 {
				return Output{Tokens: tokens}, errors.New("model returned no image ideas")
			}
			return Output{Payload: reply.Items, Tokens: tokens}, nil
		},
	}
}

type EmailSequenceInput struct {
	Common
	ProductName string `json:"productName" binding:"required"`
	Goal        string `json:"goal" binding:"required"`
	Audience    string `json:"audience,omitempty"`
	Emails      int    `json:"emails,omitempty"`
}

func (in *EmailSequenceInput) Validate() error {
	in.normalize()
	if err := firstErr(required("productName", in.ProductName), required("goal", in.Goal)); err != nil {
		return err
	}
	n, err := countOr("emails", in.Emails, 5, 1, 14)
	in.Emails = n
	return err
}

func (in *EmailSequenceInput) ModerationText() string {
	return joinText(in.ProductName, in.Goal, in.Audience)
}

type Email struct {
	Day     int    `json:"day"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func emailSequence(deps Deps) Definition {
	return Definition{
		Name:         "email-sequence",
		CreationType: "email",
		NewInput:     func() Input { return &EmailSequenceInput{} },
		Split:        true,
		MaxItems:     14,
		Generate: func(ctx context.Context, raw Input, progress Progress) (Output, error) {
			in := raw.(*EmailSequenceInput)
			system := promptf(
				"You are an email marketer writing a nurture sequence. Days start at 1 and increase.",
				`{"items":[{"day":int,"subject":string,"body":string}]}`,
			)
			user := fmt.Sprintf("Write a %d email sequence in %s for %q. Goal: %q. Audience: %q.",
				in.Emails, in.Language, in.ProductName, in.Goal, in.Audience)
			reply, tokens, err := chatJSON[struct {
				Items []Email `json:"items"`
			}](ctx, deps.Chat, system, user)
			if err != nil {
				return Output{Tokens: tokens}, err
			}
			if len(reply.Items) == 0 {
				return Output{Tokens: tokens}, errors.New("model returned no emails")
			}
			return Output{Payload: reply.Items, Tokens: tokens}, nil
		},
	}
}

type ProposalInput struct {
	Common
	ClientName   string `json:"clientName" binding:"required"`
	ProjectScope string `json:"projectScope" binding:"required"`
	Budget       string `json:"budget,omitempty"`
	Timeline     string `json:"timeline,omitempty"`
}

func (in *ProposalInput) Validate() error {
	in.normalize()
	return firstErr(
		required("clientName", in.ClientName),
		required("projectScope", in.ProjectScope),
		maxLen("projectScope", in.ProjectScope, 6000),
	)
}

func (in *ProposalInput) ModerationText() string {
	return joinText(in.ClientName, in.ProjectScope, in.Budget, in.Timeline)
}

type ProposalSection struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

type Proposal struct {
	Title    string            `json:"title"`
	Summary  string            `json:"summary"`
	Sections []ProposalSection `json:"sections"`
	Price    string            `json:"price"`
}

func proposal(deps Deps) Definition {
	return Definition{
		Name:         "proposal",
		CreationType: "proposal",
		NewInput:     func() Input { return &ProposalInput{} },
		Generate: func(ctx context.Context, raw Input, progress Progress) (Output, error) {
			in := raw.(*ProposalInput)
			system := promptf(
				"You are an agency account lead writing a client proposal.",
				`{"title":string,"summary":string,"sections":[{"heading":string,"body":string}],"price":string}`,
			)
			user := fmt.Sprintf("Write a proposal in %s for %q. Scope: %q. Budget: %q. Timeline: %q.",
				in.Language, in.ClientName, in.ProjectScope, in.Budget, in.Timeline)
			p, tokens, err := chatJSON[Proposal](ctx, deps.Chat, system, user)
			if err != nil {
				return Output{Tokens: tokens}, err
			}
			if strings.TrimSpace(p.Title) == "" || len(p.Sections) == 0 {
				return Output{Tokens: tokens}, errors.New("model returned an incomplete proposal")
			}
			return Output{Payload: p, Tokens: tokens}, nil
		},
	}
}
