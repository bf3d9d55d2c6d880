package lottery

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lottery-bot/internal/common"
)

// ReferralEngine начисляет бонусные билеты владельцам реферальных кодов.
type ReferralEngine struct {
	store *Store
}

// NewReferralEngine создаёт движок поверх Store.
func NewReferralEngine(store *Store) *ReferralEngine {
	return &ReferralEngine{store: store}
}

// ApplyReferral даёт владельцу кода по одному билету в каждой открытой лотерее.
// Код можно применять сколько угодно раз. ReferredBy не заполняется.
func (r *ReferralEngine) ApplyReferral(ctx context.Context, code, actingUserID string) (ReferralResult, error) {
	code = strings.TrimSpace(code)
	owner, ok := r.store.usersByCode[code]
	if !ok || code == "" {
		return ReferralResult{}, fmt.Errorf("%w: %q", common.ErrInvalidCode, code)
	}
	if _, ok := r.store.usersByID[actingUserID]; !ok {
		return ReferralResult{}, fmt.Errorf("пользователь %s: %w", actingUserID, common.ErrNotFound)
	}
	if owner.ID == actingUserID {
		return ReferralResult{}, common.ErrSelfReferral
	}

	granted := 0
	for _, l := range r.store.lotteries {
		if !l.IsOpen() {
			continue
		}
		if _, err := r.store.appendEntry(owner.ID, l.ID, SourceReferral); err != nil {
			return ReferralResult{}, err
		}
		granted++
	}
	if granted > 0 {
		r.store.save(ctx, keyEntries)
	}

	log.WithFields(log.Fields{
		"referrer_id": owner.ID,
		"acting_id":   actingUserID,
		"granted":     granted,
	}).Info("Реферальный код применён")

	return ReferralResult{Referrer: *owner, EntriesGranted: granted}, nil
}
