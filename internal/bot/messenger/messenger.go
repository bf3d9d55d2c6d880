// Package messenger — отправка текстовых ответов в Telegram.
// Обработчики фич зависят только от интерфейса Sender, поэтому их можно
// тестировать без сети.
package messenger

import (
	"context"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
)

// Sender отправляет сообщение в чат. Ошибки логируются внутри.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string)
}

// Telegram — Sender поверх telego.
type Telegram struct {
	api *telego.Bot
}

// NewTelegram создаёт отправителя.
func NewTelegram(api *telego.Bot) *Telegram {
	return &Telegram{api: api}
}

// Send отправляет текст. Превью ссылок отключено, чтобы реферальная ссылка не разворачивалась.
func (t *Telegram) Send(ctx context.Context, chatID int64, text string) {
	msg := tu.Message(tu.ID(chatID), text).
		WithLinkPreviewOptions(&telego.LinkPreviewOptions{IsDisabled: true})
	if _, err := t.api.SendMessage(ctx, msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
