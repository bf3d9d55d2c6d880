// Package lottery — handlers.go обрабатывает команды участников:
// список лотерей, билеты, реклама, рефералы, история.
package lottery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lottery-bot/internal/bot/messenger"
	"serotonyl.ru/lottery-bot/internal/common"
)

// Handler обрабатывает пользовательские команды лотереи.
type Handler struct {
	service     *Service
	sender      messenger.Sender
	botUsername string
	loc         *time.Location
	now         func() time.Time
}

// NewHandler создаёт обработчик. botUsername нужен для реферальной ссылки.
func NewHandler(service *Service, sender messenger.Sender, botUsername string, loc *time.Location) *Handler {
	return &Handler{
		service:     service,
		sender:      sender,
		botUsername: botUsername,
		loc:         loc,
		now:         time.Now,
	}
}

// HandleStart показывает главный экран. Аргумент /start — реферальный код из ссылки.
func (h *Handler) HandleStart(ctx context.Context, chatID int64, userID string, args []string) {
	if len(args) > 0 {
		h.HandleReferral(ctx, chatID, userID, args)
	}

	d, err := h.service.Dashboard(ctx, userID)
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🎟 Привет, %s!\n\n", d.User.DisplayName))
	sb.WriteString(h.formatLotteries(d.Lotteries))
	sb.WriteString(fmt.Sprintf("\n💰 Кредиты: %s", d.Balance.Credits.StringFixed(2)))
	if d.CanWatchAd {
		sb.WriteString(" (реклама доступна: /реклама)\n")
	} else {
		sb.WriteString(fmt.Sprintf(" (реклама через %s)\n", common.FormatCooldown(d.CooldownLeft)))
	}
	sb.WriteString("\nКоманды:\n")
	sb.WriteString("/лотереи — открытые лотереи\n")
	sb.WriteString("/билет <день|неделя|месяц> — купить билет\n")
	sb.WriteString("/обменять <день|неделя|месяц> — билет за 1.00 кредит\n")
	sb.WriteString("/реклама — посмотреть рекламу (+0.05)\n")
	sb.WriteString("/кредиты — баланс кредитов\n")
	sb.WriteString("/код — ваш реферальный код\n")
	sb.WriteString("/реферал <код> — применить код друга\n")
	sb.WriteString("/история — последние розыгрыши\n")
	sb.WriteString("/выйти — выйти")

	h.sender.Send(ctx, chatID, sb.String())
}

// HandleLotteries показывает открытые лотереи.
func (h *Handler) HandleLotteries(ctx context.Context, chatID int64, userID string) {
	d, err := h.service.Dashboard(ctx, userID)
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}
	h.sender.Send(ctx, chatID, h.formatLotteries(d.Lotteries))
}

func (h *Handler) formatLotteries(views []LotteryView) string {
	if len(views) == 0 {
		return "Открытых лотерей нет.\n"
	}
	var sb strings.Builder
	sb.WriteString("🎰 Открытые лотереи:\n")
	now := h.now()
	for _, v := range views {
		l := v.Lottery
		sb.WriteString(fmt.Sprintf("• %s — осталось %s, %d %s, у вас %s\n",
			l.Kind.Title(),
			common.FormatTimeLeft(l.TimeLeft(now)),
			l.WinnerSlots, common.PluralizeWinners(l.WinnerSlots),
			common.FormatEntries(v.MyEntries),
		))
	}
	return sb.String()
}

// HandleEnter выдаёт билет за оплату (source=payment) или за кредит (source=ad).
func (h *Handler) HandleEnter(ctx context.Context, chatID int64, userID string, args []string, source Source) {
	if len(args) == 0 {
		h.sender.Send(ctx, chatID, "Укажите лотерею: день, неделя или месяц")
		return
	}
	kind, err := ParseKind(args[0])
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}
	l, err := h.service.OpenLottery(ctx, kind)
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}

	if source == SourceAd {
		_, err = h.service.EnterWithCredits(ctx, userID, l.ID)
	} else {
		_, err = h.service.EnterWithPayment(ctx, userID, l.ID)
	}
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}

	text := fmt.Sprintf("✅ Билет в лотерею «%s» получен!", kind.Title())
	if source == SourceAd {
		text += " Списан 1.00 кредит."
	}
	h.sender.Send(ctx, chatID, text)
}

// HandleWatchAd "показывает" рекламу и начисляет кредит.
func (h *Handler) HandleWatchAd(ctx context.Context, chatID int64, userID string) {
	_, left, err := h.service.Balance(ctx, userID)
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}
	if left > 0 {
		h.sender.Send(ctx, chatID, fmt.Sprintf("⏳ Следующая реклама через %s", common.FormatCooldown(left)))
		return
	}

	h.sender.Send(ctx, chatID, "📺 Смотрим рекламу...")
	b, err := h.service.WatchAd(ctx, userID)
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}
	h.sender.Send(ctx, chatID, fmt.Sprintf("✅ +%s кредита. Баланс: %s",
		AdReward.StringFixed(2), b.Credits.StringFixed(2)))
}

// HandleCredits показывает баланс кредитов.
func (h *Handler) HandleCredits(ctx context.Context, chatID int64, userID string) {
	b, left, err := h.service.Balance(ctx, userID)
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}
	text := fmt.Sprintf("💰 Кредиты: %s\nБилет стоит %s кредит.",
		b.Credits.StringFixed(2), EntryCost.StringFixed(2))
	if left > 0 {
		text += fmt.Sprintf("\n⏳ Реклама через %s", common.FormatCooldown(left))
	} else {
		text += "\n📺 Реклама доступна: /реклама"
	}
	h.sender.Send(ctx, chatID, text)
}

// HandleCode показывает реферальный код и ссылку.
func (h *Handler) HandleCode(ctx context.Context, chatID int64, userID string) {
	u, err := h.service.User(ctx, userID)
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}
	text := fmt.Sprintf("🔗 Ваш код: %s\nКаждый, кто применит код, приносит вам по билету в каждую открытую лотерею.",
		u.ReferralCode)
	if h.botUsername != "" {
		text += fmt.Sprintf("\nСсылка: https://t.me/%s?start=%s", h.botUsername, u.ReferralCode)
	}
	h.sender.Send(ctx, chatID, text)
}

// HandleReferral применяет чужой реферальный код.
func (h *Handler) HandleReferral(ctx context.Context, chatID int64, userID string, args []string) {
	if len(args) == 0 {
		h.sender.Send(ctx, chatID, "Использование: /реферал <код>")
		return
	}
	res, err := h.service.ApplyReferral(ctx, args[0], userID)
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}
	h.sender.Send(ctx, chatID, fmt.Sprintf("🤝 Код принят! %s получает %s.",
		res.Referrer.DisplayName, common.FormatEntries(res.EntriesGranted)))
}

// HandleHistory показывает последние розыгрыши.
func (h *Handler) HandleHistory(ctx context.Context, chatID int64) {
	history, err := h.service.History(ctx)
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}
	if len(history) == 0 {
		h.sender.Send(ctx, chatID, "📜 Розыгрышей пока не было")
		return
	}

	var sb strings.Builder
	sb.WriteString("📜 Последние розыгрыши:\n")
	for _, r := range history {
		participants := 0
		if r.Lottery.ParticipantCount != nil {
			participants = *r.Lottery.ParticipantCount
		}
		sb.WriteString(fmt.Sprintf("\n%s (%s), участников: %d\n",
			r.Lottery.Kind.Title(), common.FormatDateTime(r.Lottery.EndTime, h.loc), participants))
		for i, name := range r.WinnerNames {
			sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, name))
		}
	}
	h.sender.Send(ctx, chatID, sb.String())
}

func (h *Handler) replyError(ctx context.Context, chatID int64, err error) {
	h.sender.Send(ctx, chatID, "❌ "+ErrorMessage(err))
}

// ErrorMessage переводит ошибку в сообщение для пользователя.
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, common.ErrCooldownActive):
		return err.Error()
	case errors.Is(err, common.ErrInsufficientCredits):
		return common.ErrInsufficientCredits.Error()
	case errors.Is(err, common.ErrInvalidCode):
		return common.ErrInvalidCode.Error()
	case errors.Is(err, common.ErrSelfReferral):
		return common.ErrSelfReferral.Error()
	case errors.Is(err, common.ErrLotteryClosed):
		return common.ErrLotteryClosed.Error()
	case errors.Is(err, common.ErrNoParticipants):
		return common.ErrNoParticipants.Error()
	case errors.Is(err, common.ErrUnknownKind):
		return "неизвестная лотерея, укажите: день, неделя или месяц"
	case errors.Is(err, common.ErrNotFound):
		return "не найдено"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "операция прервана"
	}
	log.WithError(err).Error("Необработанная ошибка лотереи")
	return "внутренняя ошибка, попробуйте позже"
}
