// Package admin реализует админку лотереи: доступ по имени пользователя,
// необязательный пароль Argon2id и розыгрыш победителей.
// models.go описывает сессии, попытки входа и состояния диалога.
package admin

import "time"

// AdminSession — активная сессия администратора после ввода пароля.
type AdminSession struct {
	ExternalID      string
	SessionToken    string
	AuthenticatedAt time.Time
	ExpiresAt       time.Time
}

// LoginAttempt — попытка входа (для защиты от brute-force).
type LoginAttempt struct {
	AttemptTime time.Time
	Success     bool
}

// AdminState — состояние пошагового диалога.
type AdminState struct {
	State     string
	Data      interface{} // например, список лотерей, из которого выбирают номер
	ExpiresAt time.Time
}

// Возможные состояния админ-диалога
const (
	StateNone             = ""
	StateAwaitingPassword = "awaiting_password" // ждём пароль после /login
	StateDrawSelect       = "draw_select"       // ждём номер лотереи для розыгрыша
)

const (
	sessionTTL     = 24 * time.Hour
	stateTTL       = 5 * time.Minute
	attemptsWindow = 1 * time.Hour
	maxAttempts    = 3
)
