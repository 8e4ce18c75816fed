package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	compositePrefix = "composite:"
	inputField      = "input:"
	outputField     = "output:"
	userField       = "user"
	takeAttempts    = 3
)

// Composite is the set of fragments several pipelines collected for one ad.
type Composite struct {
	UserID uint64
	Input  map[string]json.RawMessage
	Output map[string]json.RawMessage

	remaining time.Duration
}

// CompositeStore accumulates fragments in a Redis hash per correlation id.
// Each fragment is its own field, so pipelines finishing together never
// overwrite each other.
type CompositeStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCompositeStore(rdb *redis.Client, ttl time.Duration) *CompositeStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CompositeStore{rdb: rdb, ttl: ttl}
}

func compositeKey(adID string) string { return compositePrefix + adID }

// Merge writes one fragment and refreshes the TTL. A composite started by
// another user is reported as ErrNotFound.
func (s *CompositeStore) Merge(ctx context.Context, adID string, userID uint64, fragment string, input, output json.RawMessage) error {
	key := compositeKey(adID)
	uid := strconv.FormatUint(userID, 10)

	// 1) first writer owns the composite
	created, err := s.rdb.HSetNX(ctx, key, userField, uid).Result()
	if err != nil {
		return err
	}
	if !created {
		owner, err := s.rdb.HGet(ctx, key, userField).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if owner != uid {
			return ErrNotFound
		}
	}

	// 2) fragment fields + ttl in one round trip
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, inputField+fragment, string(input), outputField+fragment, string(output))
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

// Take reads and deletes the composite in one transaction. An empty or
// foreign composite yields ErrNotFound and is left untouched.
func (s *CompositeStore) Take(ctx context.Context, adID string, userID uint64) (*Composite, error) {
	key := compositeKey(adID)
	var out *Composite

	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		c, ok := decodeComposite(fields)
		if !ok || c.UserID != userID {
			return ErrNotFound
		}
		if c.remaining, err = tx.PTTL(ctx, key).Result(); err != nil {
			return err
		}
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		}); err != nil {
			return err
		}
		out = c
		return nil
	}

	for i := 0; i < takeAttempts; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, redis.TxFailedErr
}

// Restore writes a taken composite back with the lifetime it had left when
// taken, used when persisting it failed.
func (s *CompositeStore) Restore(ctx context.Context, adID string, c *Composite) error {
	key := compositeKey(adID)
	ttl := c.remaining
	if ttl <= 0 || ttl > s.ttl {
		ttl = s.ttl
	}
	values := []any{userField, strconv.FormatUint(c.UserID, 10)}
	for k, v := range c.Input {
		values = append(values, inputField+k, string(v))
	}
	for k, v := range c.Output {
		values = append(values, outputField+k, string(v))
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values...)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	return err
}

func decodeComposite(fields map[string]string) (*Composite, bool) {
	c := &Composite{
		Input:  map[string]json.RawMessage{},
		Output: map[string]json.RawMessage{},
	}
	n := 0
	for k, v := range fields {
		switch {
		case k == userField:
			uid, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return nil, false
			}
			c.UserID = uid
		case strings.HasPrefix(k, inputField):
			c.Input[strings.TrimPrefix(k, inputField)] = json.RawMessage(v)
			n++
		case strings.HasPrefix(k, outputField):
			c.Output[strings.TrimPrefix(k, outputField)] = json.RawMessage(v)
			n++
		}
	}
	return c, n > 0
}
