package bot

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/lottery-bot/internal/bot/filters"
	"serotonyl.ru/lottery-bot/internal/common"
	"serotonyl.ru/lottery-bot/internal/config"
	"serotonyl.ru/lottery-bot/internal/features/admin"
	"serotonyl.ru/lottery-bot/internal/features/auth"
	"serotonyl.ru/lottery-bot/internal/features/lottery"
	"serotonyl.ru/lottery-bot/internal/storage"
)

type sentMessage struct {
	chatID int64
	text   string
}

type recordingSender struct {
	mu       sync.Mutex
	messages []sentMessage
}

func (r *recordingSender) Send(_ context.Context, chatID int64, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, sentMessage{chatID: chatID, text: text})
}

func (r *recordingSender) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return ""
	}
	return r.messages[len(r.messages)-1].text
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

type botFixture struct {
	bot    *Bot
	sender *recordingSender
	svc    *lottery.Service
}

func newTestBot(t *testing.T, rateLimit int) *botFixture {
	t.Helper()
	cfg := &config.Config{
		AdminUsername:     "boss",
		RateLimitRequests: rateLimit,
		RateLimitWindow:   time.Minute,
		BotMaxInflight:    4,
	}

	store := lottery.NewStore(storage.NewMemory())
	svc := lottery.NewService(store,
		lottery.WithAdDelay(0),
		lottery.WithDrawRand(rand.New(rand.NewSource(1))),
	)
	ctx, cancel := context.WithCancel(context.Background())
	go svc.Run(ctx)

	sender := &recordingSender{}
	b := New(nil, cfg, sender,
		auth.NewProvider("pi_lottery_bot"),
		svc,
		lottery.NewHandler(svc, sender, "pi_lottery_bot", nil),
		admin.NewHandler(admin.NewService(svc, cfg.AdminUsername, cfg.AdminPasswordHash), sender),
		filters.NewChatFilter(sender),
	)
	t.Cleanup(func() {
		b.Close()
		cancel()
		<-svc.Done()
	})
	return &botFixture{bot: b, sender: sender, svc: svc}
}

func privateMessage(userID int64, username, text string) *telego.Message {
	return &telego.Message{
		From: &telego.User{ID: userID, Username: username, FirstName: username},
		Chat: telego.Chat{ID: userID, Type: telego.ChatTypePrivate},
		Text: text,
	}
}

func TestCommandsRequireSignIn(t *testing.T) {
	f := newTestBot(t, 100)
	ctx := context.Background()

	f.bot.handleMessage(ctx, privateMessage(1, "alice", "/лотереи"))
	assert.Contains(t, f.sender.last(), common.ErrNotSignedIn.Error())

	f.bot.handleMessage(ctx, privateMessage(1, "alice", "/start"))
	assert.Contains(t, f.sender.last(), "Привет, alice")

	f.bot.handleMessage(ctx, privateMessage(1, "alice", "/lotteries"))
	assert.Contains(t, f.sender.last(), "Открытые лотереи")

	f.bot.handleMessage(ctx, privateMessage(1, "alice", "/выйти"))
	assert.Contains(t, f.sender.last(), "Вы вышли")

	f.bot.handleMessage(ctx, privateMessage(1, "alice", "/код"))
	assert.Contains(t, f.sender.last(), common.ErrNotSignedIn.Error())
}

func TestStartWithReferralDeepLink(t *testing.T) {
	f := newTestBot(t, 100)
	ctx := context.Background()

	alice, err := f.svc.Login(ctx, "1", "alice")
	require.NoError(t, err)

	f.bot.handleMessage(ctx, privateMessage(2, "bob", "/start "+alice.ReferralCode))
	stats, err := f.svc.Participants(ctx)
	require.NoError(t, err)

	entries := map[string]int{}
	for _, s := range stats {
		entries[s.User.DisplayName] = s.Entries
	}
	assert.Equal(t, len(lottery.Kinds), entries["alice"])
	assert.Equal(t, 0, entries["bob"])
}

func TestEnterAndAdCommands(t *testing.T) {
	f := newTestBot(t, 100)
	ctx := context.Background()

	f.bot.handleMessage(ctx, privateMessage(1, "alice", "/start"))
	f.bot.handleMessage(ctx, privateMessage(1, "alice", "/билет день"))
	assert.Contains(t, f.sender.last(), "Ежедневная")

	f.bot.handleMessage(ctx, privateMessage(1, "alice", "!реклама"))
	assert.Contains(t, f.sender.last(), "Баланс: 0.05")

	f.bot.handleMessage(ctx, privateMessage(1, "alice", "/redeem неделя"))
	assert.Contains(t, f.sender.last(), common.ErrInsufficientCredits.Error())

	f.bot.handleMessage(ctx, privateMessage(1, "alice", "/непонятно"))
	assert.Contains(t, f.sender.last(), "Неизвестная команда")
}

func TestAdminCommandsRouted(t *testing.T) {
	f := newTestBot(t, 100)
	ctx := context.Background()

	f.bot.handleMessage(ctx, privateMessage(1, "alice", "/start"))
	f.bot.handleMessage(ctx, privateMessage(1, "alice", "/розыгрыш"))
	assert.Contains(t, f.sender.last(), common.ErrNotAdmin.Error())

	f.bot.handleMessage(ctx, privateMessage(9, "boss", "/start"))
	f.bot.handleMessage(ctx, privateMessage(9, "boss", "/admin"))
	assert.Contains(t, f.sender.last(), "Открытые лотереи")
}

func TestAdminRequiresTelegramUsername(t *testing.T) {
	f := newTestBot(t, 100)
	ctx := context.Background()

	// имя совпадает с ADMIN_USERNAME, но username не задан
	msg := func(text string) *telego.Message {
		m := privateMessage(13, "", text)
		m.From.FirstName = "boss"
		return m
	}
	f.bot.handleMessage(ctx, msg("/start"))
	assert.Contains(t, f.sender.last(), "Привет, boss")

	f.bot.handleMessage(ctx, msg("/admin"))
	assert.Contains(t, f.sender.last(), common.ErrNotAdmin.Error())
}

func TestGroupMessagesIgnored(t *testing.T) {
	f := newTestBot(t, 100)
	msg := privateMessage(1, "alice", "/start")
	msg.Chat = telego.Chat{ID: -100, Type: telego.ChatTypeGroup}

	f.bot.handleMessage(context.Background(), msg)
	assert.Equal(t, 1, f.sender.count())
	assert.Contains(t, f.sender.last(), "личных сообщениях")

	_, ok := f.bot.auth.Session("1")
	assert.False(t, ok)
}

func TestRateLimitDropsMessages(t *testing.T) {
	f := newTestBot(t, 2)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.bot.handleMessage(ctx, privateMessage(1, "alice", "/лотереи"))
	}
	assert.Equal(t, 2, f.sender.count())
}

func TestHandleUpdateRecoversAndSkipsEmpty(t *testing.T) {
	f := newTestBot(t, 100)
	assert.NotPanics(t, func() {
		f.bot.handleUpdate(context.Background(), telego.Update{})
		f.bot.handleUpdate(context.Background(), telego.Update{Message: &telego.Message{}})
	})
	assert.Zero(t, f.sender.count())
}
