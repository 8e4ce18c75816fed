package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestAllowFixedWindow(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := s.Allow(ctx, "user:1", 3, time.Minute)
		require.NoError(t, err)
		require.True(t, ok, "hit %d should pass", i+1)
	}
	ok, err := s.Allow(ctx, "user:1", 3, time.Minute)
	require.NoError(t, err)
	require.False(t, ok, "4th hit should be refused")

	// other keys are independent
	ok, err = s.Allow(ctx, "user:2", 3, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(time.Minute + time.Second)
	ok, err = s.Allow(ctx, "user:1", 3, time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "window should reset after expiry")
}

func TestAllowSetsExpiryOnFirstHit(t *testing.T) {
	s, mr := newTestStore(t)
	ok, err := s.Allow(context.Background(), "ip:1.2.3.4", 5, 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 30*time.Second, mr.TTL("ratelimit:ip:1.2.3.4"))
}

func TestAllowHealsCounterWithoutExpiry(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	// a counter left over limit with no TTL
	require.NoError(t, mr.Set("ratelimit:user:9", "10"))

	ok, err := s.Allow(ctx, "user:9", 3, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, time.Minute, mr.TTL("ratelimit:user:9"))

	mr.FastForward(time.Minute + time.Second)
	ok, err = s.Allow(ctx, "user:9", 3, time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "counter must not block past its window")
}

func TestAllowDisabled(t *testing.T) {
	s, _ := newTestStore(t)
	ok, err := s.Allow(context.Background(), "user:1", 0, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPing(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))
}
