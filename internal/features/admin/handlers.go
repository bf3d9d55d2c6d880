// Package admin — handlers.go обрабатывает админ-команды в личных сообщениях.
// Поток: /login → пароль → /админ (список) → /розыгрыш → номер лотереи.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"serotonyl.ru/lottery-bot/internal/bot/messenger"
	"serotonyl.ru/lottery-bot/internal/common"
	"serotonyl.ru/lottery-bot/internal/features/auth"
	"serotonyl.ru/lottery-bot/internal/features/lottery"
)

// Handler обрабатывает админ-команды.
type Handler struct {
	service *Service
	sender  messenger.Sender
}

// NewHandler создаёт обработчик админки.
func NewHandler(service *Service, sender messenger.Sender) *Handler {
	return &Handler{
		service: service,
		sender:  sender,
	}
}

// IsAdminCommand — относится ли команда к админке.
func IsAdminCommand(cmd string) bool {
	switch cmd {
	case "login", "админ", "участники", "розыгрыш":
		return true
	}
	return false
}

// HandleCommand маршрутизирует админ-команду. Возвращает false, если команда не админская.
func (h *Handler) HandleCommand(ctx context.Context, chatID int64, p auth.Principal, cmd string, args []string) bool {
	if !IsAdminCommand(cmd) {
		return false
	}
	if !h.service.IsAdmin(p) {
		h.replyError(ctx, chatID, common.ErrNotAdmin)
		return true
	}

	switch cmd {
	case "login":
		h.handleLogin(ctx, chatID, p, args)
	case "админ":
		h.handleList(ctx, chatID, p)
	case "участники":
		h.handleParticipants(ctx, chatID, p)
	case "розыгрыш":
		h.handleDraw(ctx, chatID, p, args)
	}
	return true
}

// HandleStateInput обрабатывает обычный текст, если у администратора идёт диалог.
func (h *Handler) HandleStateInput(ctx context.Context, chatID int64, p auth.Principal, text string) bool {
	if !h.service.IsAdmin(p) {
		return false
	}
	state := h.service.GetState(p.ExternalID)
	if state == nil {
		return false
	}

	switch state.State {
	case StateAwaitingPassword:
		h.service.ClearState(p.ExternalID)
		h.verifyPassword(ctx, chatID, p, strings.TrimSpace(text))
		return true
	case StateDrawSelect:
		h.handleDrawSelect(ctx, chatID, p, state, text)
		return true
	}
	return false
}

func (h *Handler) handleLogin(ctx context.Context, chatID int64, p auth.Principal, args []string) {
	if !h.service.RequiresPassword() {
		h.sender.Send(ctx, chatID, "✅ Пароль не требуется. Команды: /админ, /участники, /розыгрыш")
		return
	}
	if len(args) == 0 {
		h.sender.Send(ctx, chatID, "🔐 Введите пароль для доступа к админке:")
		h.service.SetState(p.ExternalID, StateAwaitingPassword, nil)
		return
	}
	h.verifyPassword(ctx, chatID, p, args[0])
}

func (h *Handler) verifyPassword(ctx context.Context, chatID int64, p auth.Principal, password string) {
	if err := h.service.VerifyPassword(p, password); err != nil {
		h.replyError(ctx, chatID, err)
		return
	}
	h.sender.Send(ctx, chatID, "✅ Аутентификация успешна! Команды: /админ, /участники, /розыгрыш")
}

// handleList — /админ: общие счётчики и открытые лотереи.
func (h *Handler) handleList(ctx context.Context, chatID int64, p auth.Principal) {
	overview, err := h.service.Overview(ctx, p)
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}
	stats, err := h.service.ListOpenLotteries(ctx, p)
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}
	h.sender.Send(ctx, chatID, formatOverview(overview)+"\n\n"+formatStats(stats))
}

func formatOverview(o lottery.Overview) string {
	return fmt.Sprintf("📊 Участников: %d, билетов: %d, открытых лотерей: %d",
		o.Users, o.Entries, o.OpenLotteries)
}

func formatStats(stats []lottery.LotteryStats) string {
	if len(stats) == 0 {
		return "Открытых лотерей нет"
	}
	var sb strings.Builder
	sb.WriteString("🛠 Открытые лотереи:\n\n")
	for i, s := range stats {
		sb.WriteString(fmt.Sprintf("%d. %s [%s]\n   участников: %d, %s, мест: %d\n",
			i+1, s.Lottery.Kind.Title(), s.Lottery.ID,
			s.Participants, common.FormatEntries(s.Entries), s.Lottery.WinnerSlots))
	}
	return sb.String()
}

// handleParticipants — /участники: все пользователи с билетами и кодами.
func (h *Handler) handleParticipants(ctx context.Context, chatID int64, p auth.Principal) {
	list, err := h.service.Participants(ctx, p)
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}
	if len(list) == 0 {
		h.sender.Send(ctx, chatID, "Участников пока нет")
		return
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👥 Участники (%d):\n\n", len(list)))
	for i, ps := range list {
		sb.WriteString(fmt.Sprintf("%d. %s — %s, код %s\n",
			i+1, ps.User.DisplayName, common.FormatEntries(ps.Entries), ps.User.ReferralCode))
	}
	h.sender.Send(ctx, chatID, sb.String())
}

// handleDraw — /розыгрыш <id> сразу, без аргумента показывает список и ждёт номер.
func (h *Handler) handleDraw(ctx context.Context, chatID int64, p auth.Principal, args []string) {
	if len(args) > 0 {
		h.draw(ctx, chatID, p, args[0])
		return
	}

	stats, err := h.service.ListOpenLotteries(ctx, p)
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}
	if len(stats) == 0 {
		h.sender.Send(ctx, chatID, "Открытых лотерей нет")
		return
	}
	h.sender.Send(ctx, chatID, formatStats(stats)+"\nВыберите лотерею (отправьте номер):")
	h.service.SetState(p.ExternalID, StateDrawSelect, stats)
}

func (h *Handler) handleDrawSelect(ctx context.Context, chatID int64, p auth.Principal, state *AdminState, text string) {
	stats, _ := state.Data.([]lottery.LotteryStats)

	num, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || num < 1 || num > len(stats) {
		h.sender.Send(ctx, chatID, "❌ Неверный номер. Попробуйте ещё раз.")
		return
	}
	h.service.ClearState(p.ExternalID)
	h.draw(ctx, chatID, p, stats[num-1].Lottery.ID)
}

func (h *Handler) draw(ctx context.Context, chatID int64, p auth.Principal, lotteryID string) {
	res, err := h.service.SelectWinners(ctx, p, lotteryID)
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}

	participants := 0
	if res.Lottery.ParticipantCount != nil {
		participants = *res.Lottery.ParticipantCount
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🏆 Розыгрыш «%s» завершён! Участников: %d\n\n",
		res.Lottery.Kind.Title(), participants))
	for i, name := range res.WinnerNames {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, name))
	}
	h.sender.Send(ctx, chatID, sb.String())
}

func (h *Handler) replyError(ctx context.Context, chatID int64, err error) {
	switch {
	case errors.Is(err, common.ErrNotAdmin),
		errors.Is(err, common.ErrWrongPassword),
		errors.Is(err, common.ErrTooManyAttempts),
		errors.Is(err, common.ErrSessionExpired):
		h.sender.Send(ctx, chatID, "❌ "+err.Error())
	default:
		h.sender.Send(ctx, chatID, "❌ "+lottery.ErrorMessage(err))
	}
}
