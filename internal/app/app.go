// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: выбирает хранилище, поднимает состояние лотереи,
// создаёт сервисы, обработчики, фильтры и собирает всё в один объект Bot.
package app

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lottery-bot/internal/bot"
	"serotonyl.ru/lottery-bot/internal/bot/filters"
	"serotonyl.ru/lottery-bot/internal/bot/messenger"
	"serotonyl.ru/lottery-bot/internal/common"
	"serotonyl.ru/lottery-bot/internal/config"
	"serotonyl.ru/lottery-bot/internal/db/postgres"
	"serotonyl.ru/lottery-bot/internal/db/redisstore"
	"serotonyl.ru/lottery-bot/internal/features/admin"
	"serotonyl.ru/lottery-bot/internal/features/auth"
	"serotonyl.ru/lottery-bot/internal/features/lottery"
	"serotonyl.ru/lottery-bot/internal/jobs"
	"serotonyl.ru/lottery-bot/internal/metrics"
	"serotonyl.ru/lottery-bot/internal/storage"
)

// App содержит все компоненты приложения.
type App struct {
	Bot       *bot.Bot
	Lottery   *lottery.Service
	Scheduler *jobs.Scheduler
	Metrics   *metrics.Server // nil, если METRICS_ADDR пуст
	BotAPI    *telego.Bot

	closers []func()
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	// === 1. Хранилище ===
	kv, err := a.openStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	// === 2. Telegram Bot API ===
	botAPI, err := telego.NewBot(cfg.TelegramBotToken,
		telego.WithDefaultLogger(cfg.AppEnv == "development", true))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	me, err := botAPI.GetMe(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("ошибка авторизации в Telegram: %w", err)
	}
	log.Infof("Авторизован как @%s", me.Username)
	a.BotAPI = botAPI

	loc := common.LoadLocation(cfg.AppTimezone)
	sender := messenger.NewTelegram(botAPI)

	// === 3. Состояние лотереи ===
	store := lottery.NewStore(kv, lottery.WithSaveTimeout(cfg.StoreSaveTimeout))
	store.Load(ctx)

	// === 4. Сервисы ===
	var recorder lottery.Recorder
	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.New()
		recorder = m
		a.Metrics = metrics.NewServer(cfg.MetricsAddr, m)
	}
	serviceOpts := []lottery.ServiceOption{lottery.WithAdDelay(cfg.AdWatchDelay)}
	if recorder != nil {
		serviceOpts = append(serviceOpts, lottery.WithRecorder(recorder))
	}
	a.Lottery = lottery.NewService(store, serviceOpts...)

	authProvider := auth.NewProvider(me.Username)
	adminService := admin.NewService(a.Lottery, cfg.AdminUsername, cfg.AdminPasswordHash)
	if cfg.AdminPasswordHash == "" {
		log.Warn("ADMIN_PASSWORD_HASH не задан: админка доступна по имени пользователя без пароля")
	}

	// === 5. Обработчики ===
	lotteryHandler := lottery.NewHandler(a.Lottery, sender, me.Username, loc)
	adminHandler := admin.NewHandler(adminService, sender)

	// === 6. Фильтры ===
	chatFilter := filters.NewChatFilter(sender)

	// === 7. Собираем бота ===
	a.Bot = bot.New(
		botAPI, cfg, sender,
		authProvider,
		a.Lottery, lotteryHandler,
		adminHandler,
		chatFilter,
	)
	a.closers = append(a.closers, a.Bot.Close)

	// === 8. Планировщик задач ===
	a.Scheduler = jobs.NewScheduler(a.Lottery, sender, cfg.AdminNotifyIDs, cfg.FlushSchedule, loc)

	return a, nil
}

// openStore подключает хранилище по STORE_BACKEND.
func (a *App) openStore(ctx context.Context, cfg *config.Config) (storage.KV, error) {
	logger := log.WithField("backend", cfg.StoreBackend)

	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return nil, fmt.Errorf("ошибка миграций: %w", err)
		}
		logger.Info("Хранилище: PostgreSQL")
		return postgres.NewKVStore(pool), nil

	case config.StoreBackendRedis:
		client, err := redisstore.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к Redis: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				log.WithError(err).Warn("Ошибка закрытия Redis")
			}
		})
		logger.Info("Хранилище: Redis")
		return redisstore.NewKVStore(client, cfg.RedisKeyPrefix), nil

	case config.StoreBackendMemory:
		logger.Warn("Хранилище в памяти: состояние пропадёт при перезапуске")
		return storage.NewMemory(), nil
	}
	return nil, fmt.Errorf("неизвестный STORE_BACKEND: %q", cfg.StoreBackend)
}

// Close освобождает ресурсы в обратном порядке.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
