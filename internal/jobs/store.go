package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps job records in Redis under their token with a TTL. Only the
// worker owning a token writes to it; end removes it.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Create(ctx context.Context, token string, rec *Record) error {
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, token, b, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("job token %s already in use", token)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, token string) (*Record, error) {
	raw, err := s.rdb.Get(ctx, token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", token, err)
	}
	return &rec, nil
}

// update rewrites a live, non-terminal record in place. The key keeps its TTL
// and is never recreated once end or expiry removed it.
func (s *Store) update(ctx context.Context, token string, fn func(rec *Record)) error {
	rec, err := s.Get(ctx, token)
	if err != nil {
		return err
	}
	if rec.Terminal() {
		return ErrTerminal
	}
	fn(rec)
	rec.UpdatedAt = time.Now().UTC()
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	err = s.rdb.SetArgs(ctx, token, b, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	return err
}

func (s *Store) SetProgress(ctx context.Context, token string, pct int) error {
	if pct < 0 {
		pct = 0
	}
	if pct > 99 {
		pct = 99
	}
	return s.update(ctx, token, func(rec *Record) {
		if pct > rec.Progress {
			rec.Progress = pct
		}
	})
}

func (s *Store) Complete(ctx context.Context, token string, response []byte) error {
	return s.update(ctx, token, func(rec *Record) {
		rec.Status = StatusCompleted
		rec.Progress = 100
		rec.Response = string(response)
		rec.Error = ""
	})
}

func (s *Store) Fail(ctx context.Context, token string, msg string) error {
	return s.update(ctx, token, func(rec *Record) {
		rec.Status = StatusError
		rec.Error = msg
	})
}

// Claim deletes the record and reports whether this caller removed it. Of
// several concurrent callers exactly one gets true.
func (s *Store) Claim(ctx context.Context, token string) (bool, error) {
	_, ok, err := s.Take(ctx, token)
	return ok, err
}

// Take is Claim that also returns how long the record had left to live, so a
// later Restore does not extend its lifetime.
func (s *Store) Take(ctx context.Context, token string) (time.Duration, bool, error) {
	var pttl *redis.DurationCmd
	var del *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pttl = pipe.PTTL(ctx, token)
		del = pipe.Del(ctx, token)
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	if del.Val() != 1 {
		return 0, false, nil
	}
	return pttl.Val(), true, nil
}

// Restore puts a taken record back for the remaining lifetime Take reported,
// used when persisting its result failed. Out of range values fall back to
// the store TTL.
func (s *Store) Restore(ctx context.Context, token string, rec *Record, remaining time.Duration) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if remaining <= 0 || remaining > s.ttl {
		remaining = s.ttl
	}
	return s.rdb.Set(ctx, token, b, remaining).Err()
}
