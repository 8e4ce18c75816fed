package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/suPer8Hu/adforge/internal/ai"
	"github.com/suPer8Hu/adforge/internal/assets"
)

type UsageRecorder interface {
	Record(ctx context.Context, userID uint64, tokens int) error
}

// Runner is the worker body shared by the inline and rabbitmq dispatch modes.
type Runner struct {
	store     *Store
	catalog   *assets.Catalog
	moderator ai.Moderator
	usage     UsageRecorder
	timeout   time.Duration
	log       zerolog.Logger
}

func NewRunner(store *Store, catalog *assets.Catalog, moderator ai.Moderator, usage UsageRecorder, timeout time.Duration, log zerolog.Logger) *Runner {
	if moderator == nil {
		moderator = ai.NopModerator{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Runner{store: store, catalog: catalog, moderator: moderator, usage: usage, timeout: timeout, log: log}
}

// Run generates the asset for token and stores the outcome in its record.
// Generation failures end up in the record; the returned error is reserved
// for job-store problems a queue consumer may want to retry.
func (r *Runner) Run(ctx context.Context, token string) error {
	rec, err := r.store.Get(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.log.Warn().Str("token", token).Msg("job expired before it ran")
			return nil
		}
		return err
	}
	if rec.Terminal() {
		// redelivered after a previous run finished
		return nil
	}

	log := r.log.With().Str("token", token).Str("asset", rec.Asset).Uint64("user_id", rec.UserID).Logger()
	start := time.Now()

	payload, tokens, genErr := r.generate(ctx, token, rec, log)

	if tokens > 0 && r.usage != nil {
		if err := r.usage.Record(ctx, rec.UserID, tokens); err != nil {
			log.Warn().Err(err).Int("tokens", tokens).Msg("record usage failed")
		}
	}

	if genErr != nil {
		log.Warn().Err(genErr).Dur("took", time.Since(start)).Msg("job failed")
		return r.finish(r.store.Fail(ctx, token, genErr.Error()))
	}
	log.Info().Dur("took", time.Since(start)).Int("tokens", tokens).Msg("job completed")
	return r.finish(r.store.Complete(ctx, token, payload))
}

// finish drops store errors that only mean someone else already settled the job.
func (r *Runner) finish(err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrTerminal) {
		return nil
	}
	return err
}

func (r *Runner) generate(ctx context.Context, token string, rec *Record, log zerolog.Logger) (payload []byte, tokens int, err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("generator panicked")
			err = fmt.Errorf("generation crashed: %v", p)
		}
	}()

	def, ok := r.catalog.Get(rec.Asset)
	if !ok {
		return nil, 0, fmt.Errorf("unknown asset %q", rec.Asset)
	}
	in, err := r.catalog.DecodeInput(rec.Asset, rec.Input)
	if err != nil {
		return nil, 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// 1) moderation happens before any paid call
	if err := r.moderator.Check(ctx, in.ModerationText()); err != nil {
		if errors.Is(err, ai.ErrModerationRejected) {
			return nil, 0, errors.New("input rejected by content moderation")
		}
		return nil, 0, fmt.Errorf("moderation: %w", err)
	}
	r.progress(ctx, token, 10, log)

	// 2) generate
	out, err := def.Generate(ctx, in, func(pct int) { r.progress(ctx, token, pct, log) })
	tokens = out.Tokens
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, tokens, fmt.Errorf("generation timed out after %s", r.timeout)
		}
		if errors.Is(err, ai.ErrRateLimited) {
			return nil, tokens, errors.New("the generation service is busy, please try again shortly")
		}
		return nil, tokens, err
	}

	payload, err = json.Marshal(out.Payload)
	if err != nil {
		return nil, tokens, fmt.Errorf("encode result: %w", err)
	}
	return payload, tokens, nil
}

func (r *Runner) progress(ctx context.Context, token string, pct int, log zerolog.Logger) {
	if err := r.store.SetProgress(ctx, token, pct); err != nil && !errors.Is(err, ErrTerminal) {
		log.Debug().Err(err).Int("progress", pct).Msg("progress update skipped")
	}
}
