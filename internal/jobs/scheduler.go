// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: периодическое сохранение состояния
// лотереи и ежечасные напоминания админам о просроченных розыгрышах.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lottery-bot/internal/bot/messenger"
	"serotonyl.ru/lottery-bot/internal/features/lottery"
)

const reminderSchedule = "0 * * * *"

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron          *cron.Cron
	service       *lottery.Service
	sender        messenger.Sender
	notifyIDs     []int64
	flushSchedule string

	mu       sync.Mutex
	reminded map[string]bool
}

// NewScheduler создаёт планировщик в часовом поясе бота.
func NewScheduler(service *lottery.Service, sender messenger.Sender, notifyIDs []int64, flushSchedule string, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:          cron.New(cron.WithLocation(loc)),
		service:       service,
		sender:        sender,
		notifyIDs:     notifyIDs,
		flushSchedule: flushSchedule,
		reminded:      make(map[string]bool),
	}
}

// Start регистрирует задачи и запускает cron.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.flushSchedule, func() { s.RunFlush(ctx) }); err != nil {
		return fmt.Errorf("расписание FLUSH_SCHEDULE %q: %w", s.flushSchedule, err)
	}

	if len(s.notifyIDs) > 0 {
		if _, err := s.cron.AddFunc(reminderSchedule, func() { s.RunReminders(ctx) }); err != nil {
			return fmt.Errorf("расписание напоминаний: %w", err)
		}
	}

	s.cron.Start()
	log.WithFields(log.Fields{
		"flush":     s.flushSchedule,
		"reminders": len(s.notifyIDs) > 0,
	}).Info("Планировщик задач запущен")
	return nil
}

// Stop останавливает планировщик и ждёт завершения текущих задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

// RunFlush дописывает в хранилище ключи, которые не удалось сохранить сразу.
func (s *Scheduler) RunFlush(ctx context.Context) {
	log.Debug("[CRON] Сохранение состояния лотереи")
	if err := s.service.Flush(ctx); err != nil {
		log.WithError(err).Error("[CRON] Ошибка сохранения")
	}
}

// RunReminders сообщает админам о лотереях, срок которых истёк, а розыгрыша не было.
// О каждой лотерее напоминает один раз.
func (s *Scheduler) RunReminders(ctx context.Context) {
	log.Debug("[CRON] Проверка просроченных лотерей")

	expired, err := s.service.ExpiredOpenLotteries(ctx)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка напоминаний")
		return
	}
	if len(expired) == 0 {
		return
	}

	stats, err := s.service.LotteryStats(ctx)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка напоминаний")
		return
	}
	participants := make(map[string]int, len(stats))
	for _, st := range stats {
		participants[st.Lottery.ID] = st.Participants
	}

	for _, l := range expired {
		if !s.markReminded(l.ID) {
			continue
		}
		text := fmt.Sprintf("⏰ Лотерея «%s» завершилась по времени, участников: %d.\nПроведите розыгрыш: /розыгрыш %s",
			l.Kind.Title(), participants[l.ID], l.ID)
		for _, adminID := range s.notifyIDs {
			s.sender.Send(ctx, adminID, text)
		}
		log.WithField("lottery_id", l.ID).Info("[CRON] Админам отправлено напоминание")
	}
}

func (s *Scheduler) markReminded(lotteryID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reminded[lotteryID] {
		return false
	}
	s.reminded[lotteryID] = true
	return true
}
