package lottery

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/lottery-bot/internal/common"
	"serotonyl.ru/lottery-bot/internal/storage"
)

type countingRecorder struct {
	mu        sync.Mutex
	entries   map[string]int
	ads       int
	referrals int
	draws     int
}

func (r *countingRecorder) EntryRecorded(source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries == nil {
		r.entries = make(map[string]int)
	}
	r.entries[source]++
}

func (r *countingRecorder) AdWatched() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ads++
}

func (r *countingRecorder) ReferralApplied(int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.referrals++
}

func (r *countingRecorder) LotteryClosed(string, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draws++
}

type serviceFixture struct {
	svc      *Service
	store    *Store
	kv       storage.KV
	clock    *fakeClock
	recorder *countingRecorder
	cancel   context.CancelFunc
}

func startService(t *testing.T, adDelay time.Duration) *serviceFixture {
	t.Helper()
	return startServiceWithKV(t, storage.NewMemory(), adDelay)
}

func startServiceWithKV(t *testing.T, kv storage.KV, adDelay time.Duration) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		kv:       kv,
		clock:    newFakeClock(),
		recorder: &countingRecorder{},
	}
	f.store = newTestStore(t, f.kv, f.clock)
	f.svc = NewService(f.store,
		WithAdDelay(adDelay),
		WithRecorder(f.recorder),
		WithDrawRand(rand.New(rand.NewSource(3))),
	)

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go f.svc.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-f.svc.Done()
	})
	return f
}

func TestServiceBootstrapsLotteries(t *testing.T) {
	f := startService(t, 0)
	ctx := context.Background()

	stats, err := f.svc.LotteryStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 3)
	for _, s := range stats {
		assert.Zero(t, s.Participants)
		assert.Zero(t, s.Entries)
	}
}

func TestServiceLoginBootstrapsLotteries(t *testing.T) {
	f := startService(t, 0)
	ctx := context.Background()

	// хранилище без лотерей: Run их уже завёл, убираем
	require.NoError(t, f.svc.do(ctx, func() error {
		f.store.lotteries = nil
		f.store.lotteriesByID = make(map[string]*Lottery)
		return nil
	}))

	_, err := f.svc.Login(ctx, "pi-1", "alice")
	require.NoError(t, err)
	stats, err := f.svc.LotteryStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, len(Kinds))

	// повторный вход ничего не добавляет
	_, err = f.svc.Login(ctx, "pi-2", "bob")
	require.NoError(t, err)
	stats, err = f.svc.LotteryStats(ctx)
	require.NoError(t, err)
	assert.Len(t, stats, len(Kinds))
}

func TestServiceTwentyAdsThenCreditEntry(t *testing.T) {
	f := startService(t, 0)
	ctx := context.Background()

	u, err := f.svc.Login(ctx, "pi-1", "alice")
	require.NoError(t, err)
	daily, err := f.svc.OpenLottery(ctx, KindDaily)
	require.NoError(t, err)

	_, err = f.svc.EnterWithCredits(ctx, u.ID, daily.ID)
	assert.ErrorIs(t, err, common.ErrInsufficientCredits)

	for i := 0; i < 20; i++ {
		_, err := f.svc.WatchAd(ctx, u.ID)
		require.NoError(t, err, "просмотр %d", i)

		_, err = f.svc.WatchAd(ctx, u.ID)
		require.ErrorIs(t, err, common.ErrCooldownActive)

		f.clock.Advance(AdCooldown)
	}

	b, _, err := f.svc.Balance(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.00", b.Credits.StringFixed(2))

	e, err := f.svc.EnterWithCredits(ctx, u.ID, daily.ID)
	require.NoError(t, err)
	assert.Equal(t, SourceAd, e.Source)

	b, _, err = f.svc.Balance(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, b.Credits.IsZero())

	d, err := f.svc.Dashboard(ctx, u.ID)
	require.NoError(t, err)
	for _, v := range d.Lotteries {
		if v.Lottery.ID == daily.ID {
			assert.Equal(t, 1, v.MyEntries)
		} else {
			assert.Zero(t, v.MyEntries)
		}
	}

	assert.Equal(t, 20, f.recorder.ads)
	assert.Equal(t, 1, f.recorder.entries[string(SourceAd)])
}

func TestServiceEnterClosedLottery(t *testing.T) {
	f := startService(t, 0)
	ctx := context.Background()

	u, err := f.svc.Login(ctx, "pi-1", "alice")
	require.NoError(t, err)
	daily, err := f.svc.OpenLottery(ctx, KindDaily)
	require.NoError(t, err)

	_, err = f.svc.EnterWithPayment(ctx, u.ID, daily.ID)
	require.NoError(t, err)

	res, err := f.svc.CloseLottery(ctx, daily.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, res.WinnerNames)

	_, err = f.svc.EnterWithPayment(ctx, u.ID, daily.ID)
	assert.ErrorIs(t, err, common.ErrLotteryClosed)

	// кредит не списывается, если лотерея закрыта
	f.store.balances[u.ID] = &AdCreditBalance{UserID: u.ID, Credits: EntryCost}
	_, err = f.svc.EnterWithCredits(ctx, u.ID, daily.ID)
	assert.ErrorIs(t, err, common.ErrLotteryClosed)
	b, _, err := f.svc.Balance(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, b.Credits.Equal(EntryCost))

	_, err = f.svc.OpenLottery(ctx, KindDaily)
	assert.ErrorIs(t, err, common.ErrNotFound)

	history, err := f.svc.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, []string{"alice"}, history[0].WinnerNames)
}

func TestServiceWatchAdCancelledGrantsNothing(t *testing.T) {
	f := startService(t, 200*time.Millisecond)
	u, err := f.svc.Login(context.Background(), "pi-1", "alice")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = f.svc.WatchAd(ctx, u.ID)
	require.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)

	b, left, err := f.svc.Balance(context.Background(), u.ID)
	require.NoError(t, err)
	assert.True(t, b.Credits.IsZero())
	assert.Nil(t, b.LastAdWatchTime)
	assert.Zero(t, left)
}

func TestServiceConcurrentWatchAdCreditsOnce(t *testing.T) {
	f := startService(t, 10*time.Millisecond)
	ctx := context.Background()
	u, err := f.svc.Login(ctx, "pi-1", "alice")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.WatchAd(ctx, u.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, common.ErrCooldownActive)
		}
	}
	assert.Equal(t, 1, ok)

	b, _, err := f.svc.Balance(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.05", b.Credits.StringFixed(2))
}

func TestServiceReferralAndParticipants(t *testing.T) {
	f := startService(t, 0)
	ctx := context.Background()

	alice, err := f.svc.Login(ctx, "pi-1", "alice")
	require.NoError(t, err)
	bob, err := f.svc.Login(ctx, "pi-2", "bob")
	require.NoError(t, err)

	res, err := f.svc.ApplyReferral(ctx, alice.ReferralCode, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.EntriesGranted)

	_, err = f.svc.ApplyReferral(ctx, bob.ReferralCode, bob.ID)
	assert.ErrorIs(t, err, common.ErrSelfReferral)

	participants, err := f.svc.Participants(ctx)
	require.NoError(t, err)
	require.Len(t, participants, 2)
	assert.Equal(t, alice.ID, participants[0].User.ID)
	assert.Equal(t, 3, participants[0].Entries)
	assert.Zero(t, participants[1].Entries)

	stats, err := f.svc.LotteryStats(ctx)
	require.NoError(t, err)
	for _, s := range stats {
		assert.Equal(t, 1, s.Participants)
		assert.Equal(t, 1, s.Entries)
	}
	assert.Equal(t, 1, f.recorder.referrals)
}

func TestServiceExpiredOpenLotteries(t *testing.T) {
	f := startService(t, 0)
	ctx := context.Background()

	expired, err := f.svc.ExpiredOpenLotteries(ctx)
	require.NoError(t, err)
	assert.Empty(t, expired)

	f.clock.Advance(24 * time.Hour)
	expired, err = f.svc.ExpiredOpenLotteries(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, KindDaily, expired[0].Kind)
}

func TestServiceStoppedAndCancelled(t *testing.T) {
	f := startService(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.Login(ctx, "pi-1", "alice")
	// запрос мог успеть попасть в очередь, но чаще отклоняется
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}

	f.cancel()
	<-f.svc.Done()

	_, err = f.svc.Login(context.Background(), "pi-2", "bob")
	assert.ErrorIs(t, err, common.ErrServiceStopped)
}

func TestServiceFlushOnStop(t *testing.T) {
	kv := newFlakyKV()
	f := startServiceWithKV(t, kv, 0)

	kv.SetFailing(true)
	_, err := f.svc.Login(context.Background(), "pi-1", "alice")
	require.NoError(t, err)
	require.Error(t, f.svc.Flush(context.Background()))

	kv.SetFailing(false)
	f.cancel()
	<-f.svc.Done()

	_, found, err := kv.Get(context.Background(), keyUsers)
	require.NoError(t, err)
	assert.True(t, found)
}
