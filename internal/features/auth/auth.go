// Package auth — провайдер идентификации поверх Telegram.
// Telegram уже подтвердил отправителя апдейта, поэтому "вход" сводится к проверке
// отправителя, выдаче токена сессии и локальной записи о входе.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lottery-bot/internal/common"
)

// Principal — результат успешного входа.
type Principal struct {
	ExternalID  string
	DisplayName string
	// Username — @username из Telegram, может быть пустым. Права проверяются только по нему.
	Username     string
	SessionToken string
	IssuedAt     time.Time
}

// Provider выдаёт и хранит локальные сессии. Сессии живут в памяти процесса.
type Provider struct {
	botUsername string
	now         func() time.Time

	mu       sync.RWMutex
	sessions map[string]Principal
}

// NewProvider создаёт провайдер. Пустой botUsername означает, что бот не
// авторизован в Telegram и входить некуда.
func NewProvider(botUsername string) *Provider {
	return &Provider{
		botUsername: botUsername,
		now:         time.Now,
		sessions:    make(map[string]Principal),
	}
}

// Authenticate проверяет отправителя и открывает сессию.
func (p *Provider) Authenticate(ctx context.Context, from *telego.User) (Principal, error) {
	if p == nil || p.botUsername == "" {
		return Principal{}, common.ErrProviderUnavailable
	}
	if err := ctx.Err(); err != nil {
		return Principal{}, fmt.Errorf("%w: %v", common.ErrProviderUnavailable, err)
	}
	if from == nil {
		return Principal{}, fmt.Errorf("%w: нет отправителя", common.ErrAuthenticationDenied)
	}
	if from.IsBot {
		return Principal{}, fmt.Errorf("%w: боты не участвуют", common.ErrAuthenticationDenied)
	}

	token, err := NewToken()
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", common.ErrProviderUnavailable, err)
	}

	principal := Principal{
		ExternalID:   strconv.FormatInt(from.ID, 10),
		DisplayName:  DisplayName(from),
		Username:     from.Username,
		SessionToken: token,
		IssuedAt:     p.now(),
	}

	p.mu.Lock()
	p.sessions[principal.ExternalID] = principal
	p.mu.Unlock()

	log.WithFields(log.Fields{
		"external_id":  principal.ExternalID,
		"display_name": principal.DisplayName,
	}).Debug("Пользователь вошёл")
	return principal, nil
}

// Session возвращает сохранённую сессию.
func (p *Provider) Session(externalID string) (Principal, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	principal, ok := p.sessions[externalID]
	return principal, ok
}

// IsAuthenticated — есть ли локальная сессия.
func (p *Provider) IsAuthenticated(externalID string) bool {
	_, ok := p.Session(externalID)
	return ok
}

// SignOut удаляет только локальную запись. В Telegram ничего не отзывается.
func (p *Provider) SignOut(externalID string) {
	p.mu.Lock()
	delete(p.sessions, externalID)
	p.mu.Unlock()
}

// DisplayName — username, а если его нет, имя. Только для показа.
func DisplayName(u *telego.User) string {
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}

// NewToken генерирует криптографически безопасный токен сессии.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("не удалось сгенерировать токен: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
