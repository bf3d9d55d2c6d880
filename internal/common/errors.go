// Package common — errors.go определяет пользовательские ошибки,
// которые используются во всех модулях бота.
// Эти ошибки позволяют обработчикам различать типы проблем
// и отправлять пользователю понятные сообщения.
package common

import "errors"

// Ошибки лотереи
var (
	// ErrNotFound — пользователь или лотерея не найдены
	ErrNotFound = errors.New("не найдено")
	// ErrLotteryClosed — лотерея уже закрыта, билеты не принимаются
	ErrLotteryClosed = errors.New("лотерея уже завершена")
	// ErrNoParticipants — в лотерее нет ни одного участника
	ErrNoParticipants = errors.New("в лотерее нет участников")
	// ErrUnknownKind — неизвестный тип лотереи
	ErrUnknownKind = errors.New("неизвестный тип лотереи")
)

// Ошибки рекламных кредитов
var (
	// ErrInsufficientCredits — меньше 1 кредита на счёте
	ErrInsufficientCredits = errors.New("недостаточно кредитов (нужен 1.00)")
	// ErrCooldownActive — реклама ещё недоступна (кулдаун 30 минут)
	ErrCooldownActive = errors.New("реклама пока недоступна")
)

// Ошибки реферальной системы
var (
	// ErrInvalidCode — реферальный код не существует
	ErrInvalidCode = errors.New("неверный реферальный код")
	// ErrSelfReferral — попытка использовать собственный код
	ErrSelfReferral = errors.New("нельзя использовать свой реферальный код")
)

// Ошибки авторизации
var (
	// ErrAuthenticationDenied — провайдер отказал во входе
	ErrAuthenticationDenied = errors.New("вход отклонён")
	// ErrProviderUnavailable — провайдер идентификации недоступен
	ErrProviderUnavailable = errors.New("сервис авторизации недоступен")
	// ErrNotSignedIn — нет локальной сессии
	ErrNotSignedIn = errors.New("сначала войдите: /start")
)

// Ошибки админки
var (
	// ErrNotAdmin — пользователь не является администратором
	ErrNotAdmin = errors.New("у вас нет прав администратора")
	// ErrWrongPassword — неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
	// ErrSessionExpired — сессия истекла
	ErrSessionExpired = errors.New("сессия истекла, авторизуйтесь заново: /login <пароль>")
)

// ErrServiceStopped — владелец состояния лотереи уже остановлен
var ErrServiceStopped = errors.New("сервис лотереи остановлен")
