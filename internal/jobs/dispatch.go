package jobs

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Dispatcher hands a freshly created token to whatever runs the worker.
// Dispatch must not wait for the generation itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, token string) error
}

// Handler runs one job to completion.
type Handler func(ctx context.Context, token string) error

// InlineDispatcher runs jobs as goroutines of the API process, at most
// `concurrency` at a time. Jobs queue on the semaphore, never on the caller.
type InlineDispatcher struct {
	base   context.Context
	sem    *semaphore.Weighted
	handle Handler
	log    zerolog.Logger
	wg     sync.WaitGroup
}

// NewInlineDispatcher runs handle under base, which outlives any request.
func NewInlineDispatcher(base context.Context, concurrency int, handle Handler, log zerolog.Logger) *InlineDispatcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &InlineDispatcher{
		base:   base,
		sem:    semaphore.NewWeighted(int64(concurrency)),
		handle: handle,
		log:    log,
	}
}

func (d *InlineDispatcher) Dispatch(_ context.Context, token string) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.sem.Acquire(d.base, 1); err != nil {
			d.log.Warn().Err(err).Str("token", token).Msg("job dropped on shutdown")
			return
		}
		defer d.sem.Release(1)

		if err := d.handle(d.base, token); err != nil {
			d.log.Error().Err(err).Str("token", token).Msg("job handler failed")
		}
	}()
	return nil
}

// Wait blocks until every dispatched job has returned.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}

// TokenPublisher is the queue side of the rabbitmq dispatch mode.
type TokenPublisher interface {
	PublishToken(ctx context.Context, token string) error
}

type QueueDispatcher struct {
	pub TokenPublisher
}

func NewQueueDispatcher(pub TokenPublisher) *QueueDispatcher {
	return &QueueDispatcher{pub: pub}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, token string) error {
	return d.pub.PublishToken(ctx, token)
}
