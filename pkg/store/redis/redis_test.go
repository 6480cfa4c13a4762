package redis

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/txnotify/pkg/api"
	"github.com/ArionMiles/txnotify/pkg/store/storetest"
)

// TestStore_Conformance needs a running Redis; every subtest writes under a
// fresh key prefix and removes its keys afterwards.
func TestStore_Conformance(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping integration test")
	}

	storetest.Run(t, func(t *testing.T, window time.Duration) api.Store {
		prefix := "txnotify-test-" + uuid.NewString()
		s, err := New(Config{Addr: addr, Prefix: prefix, DedupeWindow: window}, nil)
		require.NoError(t, err)

		t.Cleanup(func() {
			c, err := New(Config{Addr: addr, Prefix: prefix}, nil)
			if err != nil {
				return
			}
			defer c.Close()
			keys, _ := c.client.Keys(prefix + ":*").Result()
			if len(keys) > 0 {
				c.client.Del(keys...)
			}
		})
		return s
	})
}

func TestNew_Unreachable(t *testing.T) {
	_, err := New(Config{Addr: "127.0.0.1:1"}, nil)
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	s := &Store{prefix: DefaultPrefix}

	tests := []struct {
		got  string
		want string
	}{
		{s.keyTxn("abc"), "txnotify:txn:abc"},
		{s.keyTimeline(), "txnotify:timeline"},
		{s.keyPending(), "txnotify:pending"},
		{s.keyFingerprint("ff00"), "txnotify:fp:ff00"},
	}
	for _, tc := range tests {
		if tc.got != tc.want {
			t.Errorf("key: got %q, want %q", tc.got, tc.want)
		}
	}
}

func TestStop(t *testing.T) {
	for _, tc := range []struct {
		limit int
		want  int64
	}{
		{0, -1},
		{-3, -1},
		{1, 0},
		{10, 9},
	} {
		t.Run(fmt.Sprint(tc.limit), func(t *testing.T) {
			if got := stop(tc.limit); got != tc.want {
				t.Errorf("stop(%d): got %d, want %d", tc.limit, got, tc.want)
			}
		})
	}
}

func TestScore_MicrosecondOrdering(t *testing.T) {
	a := time.Date(2026, 2, 25, 9, 0, 0, 0, time.UTC)
	b := a.Add(time.Microsecond)
	if !(score(a) < score(b)) {
		t.Errorf("score(%v) = %v should be below score(%v) = %v", a, score(a), b, score(b))
	}
}
