// Package admin — service.go содержит проверку прав, аутентификацию по паролю,
// state-машину диалога и админские операции над лотереями.
package admin

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"serotonyl.ru/lottery-bot/internal/common"
	"serotonyl.ru/lottery-bot/internal/features/auth"
	"serotonyl.ru/lottery-bot/internal/features/lottery"
)

// Service управляет админкой.
type Service struct {
	lottery       *lottery.Service
	adminUsername string
	passwordHash  string
	now           func() time.Time

	mu       sync.Mutex
	sessions map[string]*AdminSession
	attempts map[string][]LoginAttempt
	states   map[string]*AdminState
}

// NewService создаёт сервис. Пустой passwordHash отключает пароль.
func NewService(lotteryService *lottery.Service, adminUsername, passwordHash string) *Service {
	return &Service{
		lottery:       lotteryService,
		adminUsername: adminUsername,
		passwordHash:  passwordHash,
		now:           time.Now,
		sessions:      make(map[string]*AdminSession),
		attempts:      make(map[string][]LoginAttempt),
		states:        make(map[string]*AdminState),
	}
}

// IsAdmin — точное совпадение Telegram username с ADMIN_USERNAME.
// Отображаемое имя не учитывается: его может выставить себе кто угодно.
func (s *Service) IsAdmin(p auth.Principal) bool {
	return p.Username != "" && p.Username == s.adminUsername
}

// RequiresPassword — задан ли ADMIN_PASSWORD_HASH.
func (s *Service) RequiresPassword() bool {
	return s.passwordHash != ""
}

// VerifyPassword проверяет пароль администратора (Argon2id).
// 3 неудачные попытки за час блокируют вход до конца окна.
func (s *Service) VerifyPassword(p auth.Principal, password string) error {
	if !s.IsAdmin(p) {
		return common.ErrNotAdmin
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.recentFailures(p.ExternalID, now) >= maxAttempts {
		return common.ErrTooManyAttempts
	}

	match := verifyArgon2id(password, s.passwordHash)
	s.attempts[p.ExternalID] = append(s.attempts[p.ExternalID], LoginAttempt{AttemptTime: now, Success: match})

	logger := log.WithField("external_id", p.ExternalID)
	if !match {
		logger.Warn("Неверный пароль администратора")
		return common.ErrWrongPassword
	}

	token, err := auth.NewToken()
	if err != nil {
		return err
	}
	s.sessions[p.ExternalID] = &AdminSession{
		ExternalID:      p.ExternalID,
		SessionToken:    token,
		AuthenticatedAt: now,
		ExpiresAt:       now.Add(sessionTTL),
	}
	logger.Info("Администратор вошёл")
	return nil
}

// recentFailures считает неудачные попытки за последний час и чистит старые.
// Вызывать под s.mu.
func (s *Service) recentFailures(externalID string, now time.Time) int {
	cutoff := now.Add(-attemptsWindow)
	var recent []LoginAttempt
	failures := 0
	for _, a := range s.attempts[externalID] {
		if a.AttemptTime.After(cutoff) {
			recent = append(recent, a)
			if !a.Success {
				failures++
			}
		}
	}
	if len(recent) == 0 {
		delete(s.attempts, externalID)
	} else {
		s.attempts[externalID] = recent
	}
	return failures
}

// HasActiveSession проверяет, есть ли у администратора непросроченная сессия.
func (s *Service) HasActiveSession(externalID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[externalID]
	if !ok {
		return false
	}
	if !s.now().Before(session.ExpiresAt) {
		delete(s.sessions, externalID)
		return false
	}
	return true
}

// Authorize проверяет права и, если нужен пароль, активную сессию.
func (s *Service) Authorize(p auth.Principal) error {
	if !s.IsAdmin(p) {
		return common.ErrNotAdmin
	}
	if s.RequiresPassword() && !s.HasActiveSession(p.ExternalID) {
		return common.ErrSessionExpired
	}
	return nil
}

// ListOpenLotteries — открытые лотереи с числом участников и билетов.
func (s *Service) ListOpenLotteries(ctx context.Context, p auth.Principal) ([]lottery.LotteryStats, error) {
	if err := s.Authorize(p); err != nil {
		return nil, err
	}
	return s.lottery.LotteryStats(ctx)
}

// Overview — общие счётчики для шапки /админ.
func (s *Service) Overview(ctx context.Context, p auth.Principal) (lottery.Overview, error) {
	if err := s.Authorize(p); err != nil {
		return lottery.Overview{}, err
	}
	return s.lottery.Overview(ctx)
}

// SelectWinners разыгрывает лотерею.
func (s *Service) SelectWinners(ctx context.Context, p auth.Principal, lotteryID string) (lottery.DrawResult, error) {
	if err := s.Authorize(p); err != nil {
		return lottery.DrawResult{}, err
	}
	res, err := s.lottery.CloseLottery(ctx, lotteryID)
	if err != nil {
		return lottery.DrawResult{}, err
	}
	log.WithFields(log.Fields{
		"admin":      p.DisplayName,
		"lottery_id": lotteryID,
		"winners":    res.WinnerNames,
	}).Info("Администратор провёл розыгрыш")
	return res, nil
}

// Participants — все пользователи с числом билетов и кодами.
func (s *Service) Participants(ctx context.Context, p auth.Principal) ([]lottery.ParticipantSummary, error) {
	if err := s.Authorize(p); err != nil {
		return nil, err
	}
	return s.lottery.Participants(ctx)
}

// GetState возвращает текущее состояние диалога.
func (s *Service) GetState(externalID string) *AdminState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[externalID]
	if !ok {
		return nil
	}
	if s.now().After(state.ExpiresAt) {
		delete(s.states, externalID)
		return nil
	}
	return state
}

// SetState устанавливает состояние диалога с 5-минутным таймаутом.
func (s *Service) SetState(externalID, stateName string, data interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[externalID] = &AdminState{
		State:     stateName,
		Data:      data,
		ExpiresAt: s.now().Add(stateTTL),
	}
}

// ClearState сбрасывает состояние диалога.
func (s *Service) ClearState(externalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, externalID)
}

// --- Криптографические утилиты ---

// verifyArgon2id проверяет пароль по хешу Argon2id.
// Формат хеша: $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>
func verifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}
	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))

	// сравнение в постоянном времени
	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1
}
