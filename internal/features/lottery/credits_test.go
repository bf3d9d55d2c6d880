package lottery

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceOfUnknownUserHasNoSideEffect(t *testing.T) {
	s := newTestStore(t, nil, nil)
	m := NewAdMeter(s)

	b := m.BalanceOf("u1")
	assert.True(t, b.Credits.IsZero())
	assert.Nil(t, b.LastAdWatchTime)
	assert.Empty(t, s.balances)
	assert.True(t, m.CanWatchAd("u1"))
}

func TestWatchAdCooldown(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := newTestStore(t, nil, clock)
	m := NewAdMeter(s)

	require.True(t, m.WatchAd(ctx, "u1"))
	assert.True(t, m.BalanceOf("u1").Credits.Equal(decimal.RequireFromString("0.05")))

	clock.Advance(29*time.Minute + 59*time.Second)
	assert.False(t, m.CanWatchAd("u1"))
	assert.False(t, m.WatchAd(ctx, "u1"))
	assert.Equal(t, "0.05", m.BalanceOf("u1").Credits.StringFixed(2))
	assert.Equal(t, time.Second, m.CooldownLeft("u1"))

	// ровно 30 минут — уже можно
	clock.Advance(time.Second)
	assert.True(t, m.CanWatchAd("u1"))
	require.True(t, m.WatchAd(ctx, "u1"))
	assert.Equal(t, "0.10", m.BalanceOf("u1").Credits.StringFixed(2))

	last := m.BalanceOf("u1").LastAdWatchTime
	require.NotNil(t, last)
	assert.Equal(t, clock.Now(), *last)
}

func TestTwentyAdsMakeExactlyOneCredit(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := newTestStore(t, nil, clock)
	m := NewAdMeter(s)

	for i := 0; i < 20; i++ {
		require.True(t, m.WatchAd(ctx, "u1"), "просмотр %d", i)
		clock.Advance(AdCooldown)
	}
	assert.True(t, m.BalanceOf("u1").Credits.Equal(decimal.NewFromInt(1)))
}

func TestSpendCreditForEntry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil, nil)
	m := NewAdMeter(s)

	assert.False(t, m.SpendCreditForEntry(ctx, "nobody"))

	s.balances["u1"] = &AdCreditBalance{UserID: "u1", Credits: decimal.RequireFromString("0.95")}
	assert.False(t, m.SpendCreditForEntry(ctx, "u1"))
	assert.Equal(t, "0.95", m.BalanceOf("u1").Credits.StringFixed(2))

	s.balances["u1"].Credits = decimal.RequireFromString("1.00")
	assert.True(t, m.SpendCreditForEntry(ctx, "u1"))
	assert.True(t, m.BalanceOf("u1").Credits.IsZero())

	s.balances["u1"].Credits = decimal.RequireFromString("2.35")
	assert.True(t, m.SpendCreditForEntry(ctx, "u1"))
	assert.Equal(t, "1.35", m.BalanceOf("u1").Credits.StringFixed(2))
}

func TestBalanceOfReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil, nil)
	m := NewAdMeter(s)
	require.True(t, m.WatchAd(ctx, "u1"))

	b := m.BalanceOf("u1")
	*b.LastAdWatchTime = b.LastAdWatchTime.Add(-time.Hour)
	assert.False(t, m.CanWatchAd("u1"))
}
