package filters

import (
	"context"
	"sync"
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
)

type recordingSender struct {
	mu    sync.Mutex
	chats []int64
}

func (r *recordingSender) Send(_ context.Context, chatID int64, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats = append(r.chats, chatID)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text string
		cmd  string
		args []string
		ok   bool
	}{
		{"/start", "start", []string{}, true},
		{"/start REF_ALICE_AB12CD", "start", []string{"REF_ALICE_AB12CD"}, true},
		{"/Билет неделя", "билет", []string{"неделя"}, true},
		{"!реклама", "реклама", []string{}, true},
		{".кредиты", "кредиты", []string{}, true},
		{"/розыгрыш@pi_lottery_bot daily_1", "розыгрыш", []string{"daily_1"}, true},
		{"  /код  ", "код", []string{}, true},
		{"привет", "", nil, false},
		{"/", "", nil, false},
		{"/@bot", "", nil, false},
		{"", "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			cmd, args, ok := ParseCommand(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.cmd, cmd)
			if tt.ok {
				assert.Equal(t, tt.args, args)
			}
		})
	}
}

func TestCheckAccess(t *testing.T) {
	sender := &recordingSender{}
	f := NewChatFilter(sender)
	ctx := context.Background()
	human := &telego.User{ID: 1, FirstName: "Алиса"}

	assert.False(t, f.CheckAccess(ctx, nil))
	assert.False(t, f.CheckAccess(ctx, &telego.Message{Chat: telego.Chat{ID: 1, Type: telego.ChatTypePrivate}}))
	assert.False(t, f.CheckAccess(ctx, &telego.Message{
		From: &telego.User{ID: 2, IsBot: true},
		Chat: telego.Chat{ID: 2, Type: telego.ChatTypePrivate},
	}))
	assert.True(t, f.CheckAccess(ctx, &telego.Message{
		From: human,
		Chat: telego.Chat{ID: 1, Type: telego.ChatTypePrivate},
		Text: "/start",
	}))

	// в группе обычный текст молча игнорируется, на команду приходит подсказка
	assert.False(t, f.CheckAccess(ctx, &telego.Message{
		From: human,
		Chat: telego.Chat{ID: -100, Type: telego.ChatTypeGroup},
		Text: "всем привет",
	}))
	assert.Empty(t, sender.chats)

	assert.False(t, f.CheckAccess(ctx, &telego.Message{
		From: human,
		Chat: telego.Chat{ID: -100, Type: telego.ChatTypeSupergroup},
		Text: "/билет день",
	}))
	assert.Equal(t, []int64{-100}, sender.chats)
}
