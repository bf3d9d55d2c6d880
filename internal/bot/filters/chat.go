// Package filters решает, какие сообщения бот вообще обрабатывает.
package filters

import (
	"context"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lottery-bot/internal/bot/messenger"
)

const groupHint = "🎟 Лотерея работает только в личных сообщениях. Напишите мне напрямую."

// ChatFilter пропускает только личные сообщения от людей.
type ChatFilter struct {
	sender messenger.Sender
}

// NewChatFilter создаёт фильтр; sender нужен для ответа в групповой чат.
func NewChatFilter(sender messenger.Sender) *ChatFilter {
	return &ChatFilter{sender: sender}
}

// CheckAccess возвращает true, если сообщение нужно обработать.
// На команды из групп отвечает подсказкой, остальной групповой текст игнорирует.
func (f *ChatFilter) CheckAccess(ctx context.Context, message *telego.Message) bool {
	if message == nil {
		log.WithField("component", "ChatFilter").Warn("nil message")
		return false
	}
	if message.From == nil {
		log.WithFields(log.Fields{
			"component": "ChatFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Warn("nil message.From (service/channel message?)")
		return false
	}

	logger := log.WithFields(log.Fields{
		"component": "ChatFilter",
		"chat_id":   message.Chat.ID,
		"chat_type": message.Chat.Type,
		"user_id":   message.From.ID,
	})

	if message.From.IsBot {
		logger.Debug("deny: bot sender")
		return false
	}
	if message.Chat.Type == telego.ChatTypePrivate {
		return true
	}

	if _, _, ok := ParseCommand(message.Text); ok && f.sender != nil {
		f.sender.Send(ctx, message.Chat.ID, groupHint)
	}
	logger.Debug("deny: not a private chat")
	return false
}
