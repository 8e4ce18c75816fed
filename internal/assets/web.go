package assets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/suPer8Hu/adforge/internal/crawl"
)

// crawlContext fetches url when set and formats it for a prompt. Crawl
// failures degrade to no context instead of failing the job.
func (d Deps) crawlContext(ctx context.Context, url string) string {
	url = strings.TrimSpace(url)
	if url == "" || d.Crawler == nil {
		return ""
	}
	var page *crawl.Page
	err := d.vendorCall(ctx, "apify", func(ctx context.Context) error {
		p, err := d.Crawler.Page(ctx, url)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		d.Log.Warn().Err(err).Str("url", url).Msg("crawl failed, generating without page context")
		return ""
	}
	return fmt.Sprintf("Page title: %s\nPage description: %s\nPage text:\n%s", page.Title, page.Description, page.Text)
}

type ProductInput struct {
	Common
	ProductName string `json:"productName" binding:"required"`
	ProductURL  string `json:"productUrl,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

func (in *ProductInput) Validate() error {
	in.normalize()
	return firstErr(
		required("productName", in.ProductName),
		httpURL("productUrl", in.ProductURL, true),
	)
}

func (in *ProductInput) ModerationText() string {
	return joinText(in.ProductName, in.Notes)
}

type ProductCopy struct {
	Name        string   `json:"name"`
	Tagline     string   `json:"tagline"`
	Description string   `json:"description"`
	Features    []string `json:"features"`
	SourceURL   string   `json:"sourceUrl,omitempty"`
}

func product(deps Deps) Definition {
	return Definition{
		Name:         "product",
		CreationType: "product",
		NewInput:     func() Input { return &ProductInput{} },
		Generate: func(ctx context.Context, raw Input, progress Progress) (Output, error) {
			in := raw.(*ProductInput)
			page := deps.crawlContext(ctx, in.ProductURL)
			progress(40)

			system := promptf(
				"You are an e-commerce copywriter writing a product listing.",
				`{"name":string,"tagline":string,"description":string,"features":string[]}`,
			)
			user := fmt.Sprintf("Write product copy in %s for %q. Notes: %q.", in.Language, in.ProductName, in.Notes)
			if page != "" {
				user += "\nUse only facts from this page:\n" + page
			}
			out, tokens, err := chatJSON[ProductCopy](ctx, deps.Chat, system, user)
			if err != nil {
				return Output{Tokens: tokens}, err
			}
			if strings.TrimSpace(out.Description) == "" {
				return Output{Tokens: tokens}, errors.New("model returned no description")
			}
			if out.Name == "" {
				out.Name = in.ProductName
			}
			out.SourceURL = in.ProductURL
			return Output{Payload: out, Tokens: tokens}, nil
		},
	}
}

type PageGeneratorInput struct {
	Common
	BusinessName string `json:"businessName" binding:"required"`
	Offer        string `json:"offer" binding:"required"`
	SourceURL    string `json:"sourceUrl,omitempty"`
}

func (in *PageGeneratorInput) Validate() error {
	in.normalize()
	return firstErr(
		required("businessName", in.BusinessName),
		required("offer", in.Offer),
		httpURL("sourceUrl", in.SourceURL, true),
	)
}

func (in *PageGeneratorInput) ModerationText() string {
	return joinText(in.BusinessName, in.Offer)
}

type PageSection struct {
	Section  string `json:"section"`
	Headline string `json:"headline"`
	Body     string `json:"body"`
	CTA      string `json:"cta"`
}

type LandingPage struct {
	Title    string        `json:"title"`
	Sections []PageSection `json:"sections"`
}

func pageGenerator(deps Deps) Definition {
	return Definition{
		Name:         "page-generator",
		CreationType: "landing-page",
		NewInput:     func() Input { return &PageGeneratorInput{} },
		Generate: func(ctx context.Context, raw Input, progress Progress) (Output, error) {
			in := raw.(*PageGeneratorInput)
			page := deps.crawlContext(ctx, in.SourceURL)
			progress(40)

			system := promptf(
				"You design high converting landing pages. Use sections hero, problem, solution, proof, offer, faq, cta.",
				`{"title":string,"sections":[{"section":string,"headline":string,"body":string,"cta":string}]}`,
			)
			user := fmt.Sprintf("Write a landing page in %s for %q selling %q.", in.Language, in.BusinessName, in.Offer)
			if page != "" {
				user += "\nReference material from the current site:\n" + page
			}
			lp, tokens, err := chatJSON[LandingPage](ctx, deps.Chat, system, user)
			if err != nil {
				return Output{Tokens: tokens}, err
			}
			if len(lp.Sections) == 0 {
				return Output{Tokens: tokens}, errors.New("model returned no sections")
			}
			return Output{Payload: lp, Tokens: tokens}, nil
		},
	}
}
