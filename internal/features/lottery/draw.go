package lottery

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lottery-bot/internal/common"
)

// DrawEngine закрывает лотереи и выбирает победителей.
type DrawEngine struct {
	store *Store
	rnd   *rand.Rand
}

// NewDrawEngine создаёт движок. Если rnd == nil, используется генератор от текущего времени.
func NewDrawEngine(store *Store, rnd *rand.Rand) *DrawEngine {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &DrawEngine{store: store, rnd: rnd}
}

// CloseLottery разыгрывает лотерею: каждый уникальный участник имеет равные
// шансы на место независимо от числа билетов. Закрытую лотерею повторно
// разыграть нельзя. Лотерея без участников остаётся открытой.
func (d *DrawEngine) CloseLottery(ctx context.Context, lotteryID string) (Lottery, error) {
	l, ok := d.store.lotteriesByID[lotteryID]
	if !ok {
		return Lottery{}, fmt.Errorf("лотерея %s: %w", lotteryID, common.ErrNotFound)
	}
	if !l.IsOpen() {
		return Lottery{}, fmt.Errorf("лотерея %s: %w", lotteryID, common.ErrLotteryClosed)
	}

	participants := d.store.DistinctParticipants(lotteryID)
	if len(participants) == 0 {
		return Lottery{}, fmt.Errorf("лотерея %s: %w", lotteryID, common.ErrNoParticipants)
	}

	winners := pickWinners(participants, l.WinnerSlots, d.rnd)
	count := len(participants)

	l.Status = StatusClosed
	l.Winners = winners
	l.ParticipantCount = &count

	d.store.pushHistory(l.clone())
	d.store.save(ctx, keyLotteries, keyHistory)

	log.WithFields(log.Fields{
		"lottery_id":   l.ID,
		"participants": count,
		"winners":      len(winners),
	}).Info("Лотерея разыграна")

	return l.clone(), nil
}

// pickWinners перемешивает копию участников (Фишер–Йетс) и берёт первые slots.
func pickWinners(participants []string, slots int, rnd *rand.Rand) []string {
	p := append([]string(nil), participants...)
	for i := len(p) - 1; i > 0; i-- {
		j := rnd.Intn(i + 1)
		p[i], p[j] = p[j], p[i]
	}
	if slots > len(p) {
		slots = len(p)
	}
	if slots < 0 {
		slots = 0
	}
	return p[:slots]
}
