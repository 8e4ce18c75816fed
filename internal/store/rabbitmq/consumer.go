package rabbitmq

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const retryHeader = "x-retry-count"

type ConsumerOptions struct {
	URL         string
	Queue       string
	Concurrency int
	// MaxRetries is how often a failed delivery goes through the retry queue
	// before it is dead-lettered.
	MaxRetries int
	RetryDelay time.Duration
	Logger     zerolog.Logger
}

// Consumer feeds job tokens from the main queue to a fixed worker pool.
type Consumer struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	opts ConsumerOptions
	log  zerolog.Logger
}

func NewConsumer(opts ConsumerOptions) (*Consumer, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 10 * time.Second
	}
	conn, err := amqp.Dial(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("rabbit dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbit channel: %w", err)
	}
	if err := declareTopology(ch, opts.Queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	// strict concurrency control
	if err := ch.Qos(opts.Concurrency, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("qos: %w", err)
	}
	return &Consumer{conn: conn, ch: ch, opts: opts, log: opts.Logger}, nil
}

func (c *Consumer) Close() error {
	_ = c.ch.Close()
	return c.conn.Close()
}

// Run consumes until ctx is done, then waits for in-flight jobs. Jobs already
// handed to a worker are not cancelled by ctx.
func (c *Consumer) Run(ctx context.Context, handle func(ctx context.Context, token string) error) error {
	msgs, err := c.ch.Consume(c.opts.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.log.Info().Str("queue", c.opts.Queue).Int("concurrency", c.opts.Concurrency).Msg("worker started")

	// worker pool
	deliveries := make(chan amqp.Delivery, c.opts.Concurrency*2)

	var wg sync.WaitGroup
	wg.Add(c.opts.Concurrency)
	for i := 0; i < c.opts.Concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range deliveries {
				c.process(ctx, workerID, d, handle)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("worker shutting down")
			close(deliveries)
			wg.Wait()
			return nil

		case d, ok := <-msgs:
			if !ok {
				close(deliveries)
				wg.Wait()
				return fmt.Errorf("delivery channel closed")
			}
			deliveries <- d
		}
	}
}

func (c *Consumer) process(ctx context.Context, workerID int, d amqp.Delivery, handle func(ctx context.Context, token string) error) {
	log := c.log.With().Int("worker", workerID).Logger()

	token, err := decodeToken(d.Body)
	if err != nil {
		log.Warn().Err(err).Msg("bad message")
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	if err := handle(context.WithoutCancel(ctx), token); err != nil {
		log.Error().Err(err).Str("token", token).Dur("took", time.Since(start)).Msg("job failed")
		c.retryOrDrop(ctx, d, log)
		return
	}
	if err := d.Ack(false); err != nil {
		log.Warn().Err(err).Str("token", token).Msg("ack failed")
	}
}

// retryOrDrop parks the delivery on the retry queue, whose TTL sends it back
// to the main queue, until MaxRetries is reached; then it goes to the DLQ.
func (c *Consumer) retryOrDrop(ctx context.Context, d amqp.Delivery, log zerolog.Logger) {
	n := retryCount(d.Headers)
	if n >= c.opts.MaxRetries {
		_ = d.Nack(false, false)
		return
	}

	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[retryHeader] = int32(n + 1)

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := c.ch.PublishWithContext(pctx, "", retryQueue(c.opts.Queue), false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Body:         d.Body,
		Headers:      headers,
		Expiration:   strconv.FormatInt(c.opts.RetryDelay.Milliseconds(), 10),
		Timestamp:    time.Now(),
	})
	if err != nil {
		log.Warn().Err(err).Msg("retry publish failed, dead-lettering")
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

func retryCount(h amqp.Table) int {
	switch v := h[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}
