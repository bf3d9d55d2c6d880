package lottery

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/lottery-bot/internal/storage"
)

// fakeClock — управляемое время для тестов.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// flakyKV — хранилище, которое можно "сломать".
type flakyKV struct {
	*storage.Memory
	mu   sync.Mutex
	fail bool
	sets int
}

func newFlakyKV() *flakyKV {
	return &flakyKV{Memory: storage.NewMemory()}
}

func (f *flakyKV) SetFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func (f *flakyKV) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	fail := f.fail
	f.sets++
	f.mu.Unlock()
	if fail {
		return errors.New("хранилище недоступно")
	}
	return f.Memory.Set(ctx, key, value)
}

func newTestStore(t *testing.T, kv storage.KV, clock *fakeClock) *Store {
	t.Helper()
	if kv == nil {
		kv = storage.NewMemory()
	}
	if clock == nil {
		clock = newFakeClock()
	}
	return NewStore(kv, WithClock(clock.Now), WithRand(rand.New(rand.NewSource(1))))
}

func mustUser(t *testing.T, s *Store, externalID, name string) User {
	t.Helper()
	u, err := s.ResolveOrCreateUser(context.Background(), externalID, name)
	require.NoError(t, err)
	return u
}

func openLottery(t *testing.T, s *Store, kind Kind) Lottery {
	t.Helper()
	s.OpenLotteriesIfNone(context.Background())
	l, err := s.OpenLotteryByKind(kind)
	require.NoError(t, err)
	return l
}
