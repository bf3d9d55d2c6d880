package lottery

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Параметры рекламных кредитов.
var (
	// AdReward — сколько начисляется за просмотр.
	AdReward = decimal.New(5, -2)
	// EntryCost — цена билета в кредитах.
	EntryCost = decimal.NewFromInt(1)
)

// AdCooldown — минимальный интервал между просмотрами.
const AdCooldown = 30 * time.Minute

// AdMeter начисляет и списывает рекламные кредиты.
type AdMeter struct {
	store *Store
}

// NewAdMeter создаёт счётчик поверх Store.
func NewAdMeter(store *Store) *AdMeter {
	return &AdMeter{store: store}
}

// BalanceOf возвращает баланс. Для нового пользователя — нулевой, запись не создаётся.
func (m *AdMeter) BalanceOf(userID string) AdCreditBalance {
	b, ok := m.store.balances[userID]
	if !ok {
		return AdCreditBalance{UserID: userID, Credits: decimal.Zero}
	}
	out := *b
	if b.LastAdWatchTime != nil {
		t := *b.LastAdWatchTime
		out.LastAdWatchTime = &t
	}
	return out
}

// CooldownLeft — сколько ждать до следующего просмотра.
func (m *AdMeter) CooldownLeft(userID string) time.Duration {
	b, ok := m.store.balances[userID]
	if !ok || b.LastAdWatchTime == nil {
		return 0
	}
	left := AdCooldown - m.store.now().Sub(*b.LastAdWatchTime)
	if left < 0 {
		return 0
	}
	return left
}

// CanWatchAd — прошло ли 30 минут с прошлого просмотра (ровно 30 — можно).
func (m *AdMeter) CanWatchAd(userID string) bool {
	return m.CooldownLeft(userID) == 0
}

// WatchAd начисляет AdReward. Во время кулдауна ничего не меняет и возвращает false.
func (m *AdMeter) WatchAd(ctx context.Context, userID string) bool {
	if !m.CanWatchAd(userID) {
		return false
	}

	b, ok := m.store.balances[userID]
	if !ok {
		b = &AdCreditBalance{UserID: userID, Credits: decimal.Zero}
		m.store.balances[userID] = b
	}
	now := m.store.now()
	b.Credits = b.Credits.Add(AdReward)
	b.LastAdWatchTime = &now
	m.store.save(ctx, keyAdCredits)

	log.WithFields(log.Fields{
		"user_id": userID,
		"credits": b.Credits.StringFixed(2),
	}).Debug("Начислен рекламный кредит")
	return true
}

// SpendCreditForEntry списывает ровно EntryCost, если на балансе не меньше.
func (m *AdMeter) SpendCreditForEntry(ctx context.Context, userID string) bool {
	b, ok := m.store.balances[userID]
	if !ok || b.Credits.LessThan(EntryCost) {
		return false
	}
	b.Credits = b.Credits.Sub(EntryCost)
	m.store.save(ctx, keyAdCredits)
	return true
}
