// Package lottery — service.go содержит Service: единственную горутину-владельца
// состояния. Все операции передаются ей через канал и выполняются по очереди,
// поэтому Store, AdMeter, ReferralEngine и DrawEngine не нуждаются в мьютексах.
package lottery

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lottery-bot/internal/common"
)

// Recorder получает события для метрик.
type Recorder interface {
	EntryRecorded(source string)
	AdWatched()
	ReferralApplied(entries int)
	LotteryClosed(kind string, participants, winners int)
}

type nopRecorder struct{}

func (nopRecorder) EntryRecorded(string)           {}
func (nopRecorder) AdWatched()                     {}
func (nopRecorder) ReferralApplied(int)            {}
func (nopRecorder) LotteryClosed(string, int, int) {}

type request struct {
	fn   func() error
	done chan error
}

// Service — владелец состояния лотереи.
type Service struct {
	store     *Store
	meter     *AdMeter
	referrals *ReferralEngine
	draws     *DrawEngine

	adDelay  time.Duration
	drawRnd  *rand.Rand
	recorder Recorder

	requests chan request
	stopped  chan struct{}
}

// ServiceOption настраивает Service.
type ServiceOption func(*Service)

// WithAdDelay задаёт длительность "просмотра" рекламы.
func WithAdDelay(d time.Duration) ServiceOption {
	return func(s *Service) { s.adDelay = d }
}

// WithRecorder подключает метрики.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) { s.recorder = r }
}

// WithDrawRand задаёт генератор для розыгрышей (в тестах — с фиксированным seed).
func WithDrawRand(rnd *rand.Rand) ServiceOption {
	return func(s *Service) { s.drawRnd = rnd }
}

// NewService собирает сервис поверх загруженного Store. Запускать через Run.
func NewService(store *Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		adDelay:  2 * time.Second,
		recorder: nopRecorder{},
		requests: make(chan request),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.meter = NewAdMeter(store)
	s.referrals = NewReferralEngine(store)
	s.draws = NewDrawEngine(store, s.drawRnd)
	return s
}

// Run обслуживает запросы до отмены ctx. При остановке сбрасывает
// несохранённые ключи в хранилище.
func (s *Service) Run(ctx context.Context) {
	defer close(s.stopped)

	s.store.OpenLotteriesIfNone(ctx)
	log.Info("Сервис лотереи запущен")

	for {
		select {
		case <-ctx.Done():
			if err := s.store.Flush(ctx); err != nil {
				log.WithError(err).Error("Не удалось сохранить состояние при остановке")
			}
			log.Info("Сервис лотереи остановлен")
			return
		case req := <-s.requests:
			s.execute(req)
		}
	}
}

// Done закрывается, когда Run завершился.
func (s *Service) Done() <-chan struct{} {
	return s.stopped
}

func (s *Service) execute(req request) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", fmt.Sprintf("%v", r)).Error("ПАНИКА в сервисе лотереи — восстановлено")
			req.done <- fmt.Errorf("внутренняя ошибка: %v", r)
		}
	}()
	req.done <- req.fn()
}

// do выполняет fn в горутине-владельце. Принятый запрос доводится до конца,
// даже если ctx отменили во время выполнения.
func (s *Service) do(ctx context.Context, fn func() error) error {
	req := request{fn: fn, done: make(chan error, 1)}
	select {
	case s.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return common.ErrServiceStopped
	}
	return <-req.done
}

// Login находит или создаёт пользователя по данным провайдера
// и заводит стартовые лотереи, если их ещё нет.
func (s *Service) Login(ctx context.Context, externalID, displayName string) (User, error) {
	var u User
	err := s.do(ctx, func() error {
		var err error
		u, err = s.store.ResolveOrCreateUser(ctx, externalID, displayName)
		if err != nil {
			return err
		}
		s.store.OpenLotteriesIfNone(ctx)
		return nil
	})
	return u, err
}

// User возвращает пользователя по id.
func (s *Service) User(ctx context.Context, userID string) (User, error) {
	var u User
	err := s.do(ctx, func() error {
		var err error
		u, err = s.store.User(userID)
		return err
	})
	return u, err
}

// Dashboard собирает главный экран пользователя.
func (s *Service) Dashboard(ctx context.Context, userID string) (Dashboard, error) {
	var d Dashboard
	err := s.do(ctx, func() error {
		u, err := s.store.User(userID)
		if err != nil {
			return err
		}
		d.User = u
		for _, l := range s.store.OpenLotteries() {
			d.Lotteries = append(d.Lotteries, LotteryView{
				Lottery:   l,
				MyEntries: s.store.countEntries(userID, l.ID),
			})
		}
		d.Balance = s.meter.BalanceOf(userID)
		d.CooldownLeft = s.meter.CooldownLeft(userID)
		d.CanWatchAd = d.CooldownLeft == 0
		return nil
	})
	return d, err
}

// OpenLottery возвращает открытую лотерею заданного типа.
func (s *Service) OpenLottery(ctx context.Context, kind Kind) (Lottery, error) {
	var l Lottery
	err := s.do(ctx, func() error {
		var err error
		l, err = s.store.OpenLotteryByKind(kind)
		return err
	})
	return l, err
}

// EnterWithPayment выдаёт билет за оплату. Сама оплата не проводится.
func (s *Service) EnterWithPayment(ctx context.Context, userID, lotteryID string) (Entry, error) {
	var e Entry
	err := s.do(ctx, func() error {
		if err := s.requireOpen(lotteryID); err != nil {
			return err
		}
		var err error
		e, err = s.store.RecordEntry(ctx, userID, lotteryID, SourcePayment)
		return err
	})
	if err == nil {
		s.recorder.EntryRecorded(string(SourcePayment))
	}
	return e, err
}

// EnterWithCredits обменивает 1.00 кредит на билет.
func (s *Service) EnterWithCredits(ctx context.Context, userID, lotteryID string) (Entry, error) {
	var e Entry
	err := s.do(ctx, func() error {
		if _, err := s.store.User(userID); err != nil {
			return err
		}
		if err := s.requireOpen(lotteryID); err != nil {
			return err
		}
		if !s.meter.SpendCreditForEntry(ctx, userID) {
			return common.ErrInsufficientCredits
		}
		var err error
		e, err = s.store.RecordEntry(ctx, userID, lotteryID, SourceAd)
		return err
	})
	if err == nil {
		s.recorder.EntryRecorded(string(SourceAd))
	}
	return e, err
}

func (s *Service) requireOpen(lotteryID string) error {
	l, err := s.store.Lottery(lotteryID)
	if err != nil {
		return err
	}
	if !l.IsOpen() {
		return fmt.Errorf("лотерея %s: %w", lotteryID, common.ErrLotteryClosed)
	}
	return nil
}

// WatchAd "показывает" рекламу и начисляет кредит. Если ctx отменён до конца
// показа, кредит не начисляется. Кулдаун проверяется и до, и после показа.
func (s *Service) WatchAd(ctx context.Context, userID string) (AdCreditBalance, error) {
	err := s.do(ctx, func() error {
		if _, err := s.store.User(userID); err != nil {
			return err
		}
		if left := s.meter.CooldownLeft(userID); left > 0 {
			return fmt.Errorf("%w: осталось %s", common.ErrCooldownActive, common.FormatCooldown(left))
		}
		return nil
	})
	if err != nil {
		return AdCreditBalance{}, err
	}

	if s.adDelay > 0 {
		timer := time.NewTimer(s.adDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			log.WithField("user_id", userID).Debug("Просмотр рекламы прерван")
			return AdCreditBalance{}, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return AdCreditBalance{}, err
	}

	var b AdCreditBalance
	err = s.do(ctx, func() error {
		if !s.meter.WatchAd(ctx, userID) {
			return fmt.Errorf("%w: осталось %s", common.ErrCooldownActive,
				common.FormatCooldown(s.meter.CooldownLeft(userID)))
		}
		b = s.meter.BalanceOf(userID)
		return nil
	})
	if err == nil {
		s.recorder.AdWatched()
	}
	return b, err
}

// Balance возвращает баланс кредитов и остаток кулдауна.
func (s *Service) Balance(ctx context.Context, userID string) (AdCreditBalance, time.Duration, error) {
	var (
		b    AdCreditBalance
		left time.Duration
	)
	err := s.do(ctx, func() error {
		if _, err := s.store.User(userID); err != nil {
			return err
		}
		b = s.meter.BalanceOf(userID)
		left = s.meter.CooldownLeft(userID)
		return nil
	})
	return b, left, err
}

// ApplyReferral применяет реферальный код от имени actingUserID.
func (s *Service) ApplyReferral(ctx context.Context, code, actingUserID string) (ReferralResult, error) {
	var res ReferralResult
	err := s.do(ctx, func() error {
		var err error
		res, err = s.referrals.ApplyReferral(ctx, code, actingUserID)
		return err
	})
	if err == nil {
		s.recorder.ReferralApplied(res.EntriesGranted)
	}
	return res, err
}

// CloseLottery разыгрывает лотерею.
func (s *Service) CloseLottery(ctx context.Context, lotteryID string) (DrawResult, error) {
	var res DrawResult
	err := s.do(ctx, func() error {
		l, err := s.draws.CloseLottery(ctx, lotteryID)
		if err != nil {
			return err
		}
		res = DrawResult{Lottery: l, WinnerNames: s.winnerNames(l.Winners)}
		return nil
	})
	if err == nil {
		participants := 0
		if res.Lottery.ParticipantCount != nil {
			participants = *res.Lottery.ParticipantCount
		}
		s.recorder.LotteryClosed(string(res.Lottery.Kind), participants, len(res.Lottery.Winners))
	}
	return res, err
}

func (s *Service) winnerNames(ids []string) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.store.usersByID[id]; ok {
			names = append(names, u.DisplayName)
		} else {
			names = append(names, id)
		}
	}
	return names
}

// History возвращает последние розыгрыши, новые первыми.
func (s *Service) History(ctx context.Context) ([]DrawResult, error) {
	var out []DrawResult
	err := s.do(ctx, func() error {
		for _, l := range s.store.History() {
			out = append(out, DrawResult{Lottery: l, WinnerNames: s.winnerNames(l.Winners)})
		}
		return nil
	})
	return out, err
}

// LotteryStats — открытые лотереи с числом участников и билетов.
func (s *Service) LotteryStats(ctx context.Context) ([]LotteryStats, error) {
	var out []LotteryStats
	err := s.do(ctx, func() error {
		for _, l := range s.store.OpenLotteries() {
			out = append(out, LotteryStats{
				Lottery:      l,
				Participants: len(s.store.DistinctParticipants(l.ID)),
				Entries:      len(s.store.EntriesForLottery(l.ID)),
			})
		}
		return nil
	})
	return out, err
}

// Participants — все пользователи с общим числом билетов.
func (s *Service) Participants(ctx context.Context) ([]ParticipantSummary, error) {
	var out []ParticipantSummary
	err := s.do(ctx, func() error {
		for _, u := range s.store.Users() {
			out = append(out, ParticipantSummary{User: u, Entries: s.store.countEntries(u.ID, "")})
		}
		return nil
	})
	return out, err
}

// Overview — всего участников, билетов и открытых лотерей.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	var o Overview
	err := s.do(ctx, func() error {
		o = Overview{
			Users:         len(s.store.users),
			Entries:       len(s.store.entries),
			OpenLotteries: len(s.store.OpenLotteries()),
		}
		return nil
	})
	return o, err
}

// ExpiredOpenLotteries — открытые лотереи, у которых уже прошёл EndTime.
func (s *Service) ExpiredOpenLotteries(ctx context.Context) ([]Lottery, error) {
	var out []Lottery
	err := s.do(ctx, func() error {
		now := s.store.now()
		for _, l := range s.store.OpenLotteries() {
			if !now.Before(l.EndTime) {
				out = append(out, l)
			}
		}
		return nil
	})
	return out, err
}

// Flush повторяет запись несохранённых ключей.
func (s *Service) Flush(ctx context.Context) error {
	var pending int
	err := s.do(ctx, func() error {
		err := s.store.Flush(ctx)
		pending = len(s.store.Dirty())
		return err
	})
	if err != nil && !errors.Is(err, common.ErrServiceStopped) {
		log.WithError(err).WithField("pending", pending).Warn("Сохранение не завершено")
	}
	return err
}
