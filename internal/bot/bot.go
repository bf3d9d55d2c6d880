// Package bot содержит главный модуль бота — приём апдейтов и маршрутизацию команд.
// bot.go запускает long polling и раздаёт сообщения обработчикам лотереи и админки.
package bot

import (
	"context"
	"strconv"
	"sync"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lottery-bot/internal/bot/filters"
	"serotonyl.ru/lottery-bot/internal/bot/messenger"
	"serotonyl.ru/lottery-bot/internal/bot/middleware"
	"serotonyl.ru/lottery-bot/internal/common"
	"serotonyl.ru/lottery-bot/internal/config"
	"serotonyl.ru/lottery-bot/internal/features/admin"
	"serotonyl.ru/lottery-bot/internal/features/auth"
	"serotonyl.ru/lottery-bot/internal/features/lottery"
)

// Латинские синонимы для меню Telegram: BotFather не принимает кириллицу в командах.
var commandAliases = map[string]string{
	"help":      "start",
	"lotteries": "лотереи",
	"ticket":    "билет",
	"redeem":    "обменять",
	"ad":        "реклама",
	"credits":   "кредиты",
	"code":      "код",
	"referral":  "реферал",
	"history":   "история",
	"logout":    "выйти",
	"admin":     "админ",
	"users":     "участники",
	"draw":      "розыгрыш",
}

var menuCommands = []telego.BotCommand{
	{Command: "start", Description: "Главный экран"},
	{Command: "lotteries", Description: "Открытые лотереи"},
	{Command: "ticket", Description: "Купить билет: день, неделя, месяц"},
	{Command: "redeem", Description: "Билет за 1.00 кредит"},
	{Command: "ad", Description: "Посмотреть рекламу (+0.05)"},
	{Command: "credits", Description: "Баланс кредитов"},
	{Command: "code", Description: "Мой реферальный код"},
	{Command: "history", Description: "Последние розыгрыши"},
	{Command: "logout", Description: "Выйти"},
}

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	api    *telego.Bot
	cfg    *config.Config
	sender messenger.Sender

	chatFilter  *filters.ChatFilter
	rateLimiter *middleware.RateLimiter

	auth           *auth.Provider
	lotteryService *lottery.Service
	lotteryHandler *lottery.Handler
	adminHandler   *admin.Handler

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
	wg       sync.WaitGroup
}

// New создаёт новый экземпляр бота со всеми зависимостями.
func New(
	api *telego.Bot,
	cfg *config.Config,
	sender messenger.Sender,
	authProvider *auth.Provider,
	lotteryService *lottery.Service,
	lotteryHandler *lottery.Handler,
	adminHandler *admin.Handler,
	chatFilter *filters.ChatFilter,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:            api,
		cfg:            cfg,
		sender:         sender,
		chatFilter:     chatFilter,
		rateLimiter:    middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		auth:           authProvider,
		lotteryService: lotteryService,
		lotteryHandler: lotteryHandler,
		adminHandler:   adminHandler,
		inflight:       make(chan struct{}, maxInFlight),
	}
}

// Start запускает long polling и блокируется до отмены ctx.
// Перед возвратом дожидается обработчиков, которые уже работают.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.api.SetMyCommands(ctx, &telego.SetMyCommandsParams{Commands: menuCommands}); err != nil {
		log.WithError(err).Warn("Не удалось установить меню команд")
	}

	updates, err := b.api.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout: b.cfg.BotUpdateTimeoutSeconds,
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"max_inflight": cap(b.inflight),
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			return nil

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return nil
			}

			// лимит параллелизма
			select {
			case b.inflight <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			b.wg.Add(1)
			go func(upd telego.Update) {
				defer b.wg.Done()
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// Close освобождает фоновые ресурсы бота.
func (b *Bot) Close() {
	b.rateLimiter.Close()
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update telego.Update) {
	defer middleware.RecoverFromPanic("update")

	if update.Message == nil || update.Message.Text == "" {
		return
	}
	b.handleMessage(ctx, update.Message)
}

func (b *Bot) handleMessage(ctx context.Context, message *telego.Message) {
	middleware.LogMessage(message)

	// только личные сообщения от людей
	if !b.chatFilter.CheckAccess(ctx, message) {
		return
	}

	if !b.rateLimiter.Allow(message.From.ID) {
		log.WithField("user_id", message.From.ID).Debug("rate limited")
		return
	}

	chatID := message.Chat.ID
	externalID := strconv.FormatInt(message.From.ID, 10)

	cmd, args, isCommand := filters.ParseCommand(message.Text)
	if !isCommand {
		// обычный текст нужен только в пошаговых диалогах админки
		if p, ok := b.auth.Session(externalID); ok {
			b.adminHandler.HandleStateInput(ctx, chatID, p, message.Text)
		}
		return
	}
	if alias, ok := commandAliases[cmd]; ok {
		cmd = alias
	}

	log.WithFields(log.Fields{
		"cmd":  cmd,
		"args": args,
	}).Debug("routing command")

	if cmd == "start" {
		b.handleStart(ctx, chatID, message.From, args)
		return
	}

	p, ok := b.auth.Session(externalID)
	if !ok {
		b.sender.Send(ctx, chatID, "🔒 "+common.ErrNotSignedIn.Error())
		return
	}
	b.routeCommand(ctx, chatID, p, cmd, args)
}

// handleStart — вход через провайдера, затем главный экран.
func (b *Bot) handleStart(ctx context.Context, chatID int64, from *telego.User, args []string) {
	p, err := b.auth.Authenticate(ctx, from)
	if err != nil {
		log.WithError(err).WithField("chat_id", chatID).Warn("Вход не выполнен")
		b.sender.Send(ctx, chatID, "❌ "+err.Error())
		return
	}

	u, err := b.lotteryService.Login(ctx, p.ExternalID, p.DisplayName)
	if err != nil {
		b.sender.Send(ctx, chatID, "❌ "+lottery.ErrorMessage(err))
		return
	}
	b.lotteryHandler.HandleStart(ctx, chatID, u.ID, args)
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, chatID int64, p auth.Principal, cmd string, args []string) {
	if b.adminHandler.HandleCommand(ctx, chatID, p, cmd, args) {
		return
	}

	if cmd == "выйти" {
		b.auth.SignOut(p.ExternalID)
		b.sender.Send(ctx, chatID, "👋 Вы вышли. Чтобы вернуться: /start")
		return
	}

	u, err := b.lotteryService.Login(ctx, p.ExternalID, p.DisplayName)
	if err != nil {
		b.sender.Send(ctx, chatID, "❌ "+lottery.ErrorMessage(err))
		return
	}

	switch cmd {
	case "лотереи":
		b.lotteryHandler.HandleLotteries(ctx, chatID, u.ID)
	case "билет":
		b.lotteryHandler.HandleEnter(ctx, chatID, u.ID, args, lottery.SourcePayment)
	case "обменять":
		b.lotteryHandler.HandleEnter(ctx, chatID, u.ID, args, lottery.SourceAd)
	case "реклама":
		b.lotteryHandler.HandleWatchAd(ctx, chatID, u.ID)
	case "кредиты":
		b.lotteryHandler.HandleCredits(ctx, chatID, u.ID)
	case "код":
		b.lotteryHandler.HandleCode(ctx, chatID, u.ID)
	case "реферал":
		b.lotteryHandler.HandleReferral(ctx, chatID, u.ID, args)
	case "история":
		b.lotteryHandler.HandleHistory(ctx, chatID)
	default:
		b.sender.Send(ctx, chatID, "🤔 Неизвестная команда. Список команд: /start")
	}
}

