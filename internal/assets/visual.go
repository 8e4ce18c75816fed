package assets

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/suPer8Hu/adforge/internal/common"
	"github.com/suPer8Hu/adforge/internal/media"
)

var aspectRatios = map[string]string{
	"instagram": "1:1",
	"facebook":  "4:5",
	"linkedin":  "1:1",
	"tiktok":    "9:16",
}

type AdSocialImageInput struct {
	Common
	ProductDescription string `json:"productDescription" binding:"required"`
	Platform           string `json:"platform,omitempty"`
	Variants           int    `json:"variants,omitempty"`
}

func (in *AdSocialImageInput) Validate() error {
	in.normalize()
	if err := required("productDescription", in.ProductDescription); err != nil {
		return err
	}
	in.Platform = strings.ToLower(strings.TrimSpace(in.Platform))
	if in.Platform == "" {
		in.Platform = "instagram"
	}
	if _, ok := aspectRatios[in.Platform]; !ok {
		return invalid("unsupported platform %q", in.Platform)
	}
	n, err := countOr("variants", in.Variants, 2, 1, 4)
	in.Variants = n
	return err
}

func (in *AdSocialImageInput) ModerationText() string {
	return in.ProductDescription
}

type SocialImage struct {
	Headline string `json:"headline"`
	Caption  string `json:"caption"`
	Prompt   string `json:"prompt"`
	ImageURL string `json:"imageUrl"`
	Platform string `json:"platform"`
}

func adSocialImage(deps Deps) Definition {
	return Definition{
		Name:         "ad-social-image",
		CreationType: "social-image",
		NewInput:     func() Input { return &AdSocialImageInput{} },
		Split:        true,
		MaxItems:     4,
		Fragment:     "images",
		Generate: func(ctx context.Context, raw Input, progress Progress) (Output, error) {
			in := raw.(*AdSocialImageInput)
			if deps.Predictor == nil {
				return Output{}, errors.New("image generation is not configured")
			}

			system := promptf(
				"You are a social ad creative director. Image prompts are in English and describe a photo without any text in it.",
				`{"items":[{"headline":string,"caption":string,"prompt":string}]}`,
			)
			user := fmt.Sprintf("Create %d %s ad concepts (headline and caption in %s) for: %q.",
				in.Variants, in.Platform, in.Language, in.ProductDescription)
			reply, tokens, err := chatJSON[struct {
				Items []SocialImage `json:"items"`
			}](ctx, deps.Chat, system, user)
			if err != nil {
				return Output{Tokens: tokens}, err
			}
			items := reply.Items
			if len(items) > in.Variants {
				items = items[:in.Variants]
			}
			if len(items) == 0 {
				return Output{Tokens: tokens}, errors.New("model returned no concepts")
			}
			progress(30)

			for i := range items {
				var urls []string
				err := deps.vendorCall(ctx, "replicate", func(ctx context.Context) error {
					out, err := deps.Predictor.Run(ctx, deps.ImageModel, map[string]any{
						"prompt":       items[i].Prompt,
						"aspect_ratio": aspectRatios[in.Platform],
						"num_outputs":  1,
					})
					urls = out
					if err == nil && len(out) == 0 {
						return errors.New("replicate returned no output")
					}
					return err
				})
				if err != nil {
					return Output{Tokens: tokens}, fmt.Errorf("render image %d: %w", i+1, err)
				}
				items[i].ImageURL = urls[0]
				items[i].Platform = in.Platform
				progress(30 + 60*(i+1)/len(items))
			}
			return Output{Payload: items, Tokens: tokens}, nil
		},
	}
}

type ImageToVideoInput struct {
	Common
	ImageURL string `json:"imageUrl" binding:"required"`
	Prompt   string `json:"prompt" binding:"required"`
}

func (in *ImageToVideoInput) Validate() error {
	in.normalize()
	return firstErr(
		httpURL("imageUrl", in.ImageURL, false),
		required("prompt", in.Prompt),
		maxLen("prompt", in.Prompt, 1000),
	)
}

func (in *ImageToVideoInput) ModerationText() string { return in.Prompt }

type Video struct {
	ImageURL string `json:"imageUrl"`
	Prompt   string `json:"prompt"`
	VideoURL string `json:"videoUrl"`
}

func imageToVideo(deps Deps) Definition {
	return Definition{
		Name:         "image-to-video",
		CreationType: "video",
		NewInput:     func() Input { return &ImageToVideoInput{} },
		Generate: func(ctx context.Context, raw Input, progress Progress) (Output, error) {
			in := raw.(*ImageToVideoInput)
			if deps.Predictor == nil {
				return Output{}, errors.New("video generation is not configured")
			}
			var urls []string
			err := deps.vendorCall(ctx, "replicate", func(ctx context.Context) error {
				out, err := deps.Predictor.Run(ctx, deps.VideoModel, map[string]any{
					"prompt":            in.Prompt,
					"first_frame_image": in.ImageURL,
				})
				urls = out
				if err == nil && len(out) == 0 {
					return errors.New("replicate returned no output")
				}
				return err
			})
			if err != nil {
				return Output{}, err
			}
			return Output{Payload: Video{ImageURL: in.ImageURL, Prompt: in.Prompt, VideoURL: urls[0]}}, nil
		},
	}
}

type ProductPlacementInput struct {
	Common
	ImageURL string `json:"imageUrl" binding:"required"`
	Scene    string `json:"scene" binding:"required"`
}

func (in *ProductPlacementInput) Validate() error {
	in.normalize()
	return firstErr(
		httpURL("imageUrl", in.ImageURL, false),
		required("scene", in.Scene),
		maxLen("scene", in.Scene, 1000),
	)
}

func (in *ProductPlacementInput) ModerationText() string { return in.Scene }

type Placement struct {
	SourceURL string `json:"sourceUrl"`
	Scene     string `json:"scene"`
	ImageURL  string `json:"imageUrl"`
}

func productPlacement(deps Deps) Definition {
	return Definition{
		Name:         "product-placement",
		CreationType: "product-placement",
		NewInput:     func() Input { return &ProductPlacementInput{} },
		Generate: func(ctx context.Context, raw Input, progress Progress) (Output, error) {
			in := raw.(*ProductPlacementInput)
			if deps.Background == nil || deps.Fetcher == nil || deps.Media == nil {
				return Output{}, errors.New("product placement is not configured")
			}

			// 1) download the product shot
			var src []byte
			var srcType string
			if err := deps.vendorCall(ctx, "fetch", func(ctx context.Context) error {
				b, ct, err := deps.Fetcher.Fetch(ctx, in.ImageURL)
				src, srcType = b, ct
				return err
			}); err != nil {
				return Output{}, fmt.Errorf("download source image: %w", err)
			}
			progress(30)

			// 2) replace the background
			var img []byte
			var imgType string
			if err := deps.vendorCall(ctx, "clipdrop", func(ctx context.Context) error {
				b, ct, err := deps.Background.ReplaceBackground(ctx, src, "source"+media.ExtensionFor(srcType), in.Scene)
				img, imgType = b, ct
				return err
			}); err != nil {
				return Output{}, err
			}
			progress(80)

			// 3) store the result
			id, err := common.NewULID()
			if err != nil {
				return Output{}, err
			}
			key, err := deps.Media.Write(ctx, path.Join("placements", id+media.ExtensionFor(imgType)), img)
			if err != nil {
				return Output{}, err
			}
			return Output{Payload: Placement{
				SourceURL: in.ImageURL,
				Scene:     in.Scene,
				ImageURL:  deps.Media.URL(key),
			}}, nil
		},
	}
}
