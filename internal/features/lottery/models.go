// Package lottery реализует лотерею: учёт билетов, рекламные кредиты,
// реферальные бонусы и розыгрыш победителей.
// models.go описывает структуры пользователей, лотерей, билетов и баланса кредитов.
package lottery

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"serotonyl.ru/lottery-bot/internal/common"
)

// Kind — тип лотереи. Определяет длительность и число призовых мест.
type Kind string

const (
	KindDaily   Kind = "daily"
	KindWeekly  Kind = "weekly"
	KindMonthly Kind = "monthly"
)

// Kinds — все типы в порядке показа.
var Kinds = []Kind{KindDaily, KindWeekly, KindMonthly}

// Window возвращает длительность лотереи.
func (k Kind) Window() time.Duration {
	switch k {
	case KindWeekly:
		return 7 * 24 * time.Hour
	case KindMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// WinnerSlots возвращает число призовых мест.
func (k Kind) WinnerSlots() int {
	switch k {
	case KindWeekly:
		return 4
	case KindMonthly:
		return 12
	default:
		return 1
	}
}

// Title — название для сообщений.
func (k Kind) Title() string {
	switch k {
	case KindDaily:
		return "Ежедневная"
	case KindWeekly:
		return "Еженедельная"
	case KindMonthly:
		return "Ежемесячная"
	}
	return string(k)
}

// ParseKind понимает английские имена и русские сокращения из команд.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "день", "дневная", "ежедневная":
		return KindDaily, nil
	case "weekly", "неделя", "недельная", "еженедельная":
		return KindWeekly, nil
	case "monthly", "месяц", "месячная", "ежемесячная":
		return KindMonthly, nil
	}
	return "", fmt.Errorf("%w: %q", common.ErrUnknownKind, s)
}

// Status — состояние лотереи. Closed конечное.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Source — откуда взялся билет.
type Source string

const (
	SourcePayment  Source = "payment"
	SourceAd       Source = "ad"
	SourceReferral Source = "referral"
)

// User — участник. Создаётся при первом входе, один на внешний идентификатор.
type User struct {
	ID           string    `json:"id"`
	ExternalID   string    `json:"externalId"`
	DisplayName  string    `json:"displayName"`
	ReferralCode string    `json:"referralCode"`
	ReferredBy   *string   `json:"referredBy,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Lottery — один розыгрыш.
type Lottery struct {
	ID               string    `json:"id"`
	Kind             Kind      `json:"kind"`
	StartTime        time.Time `json:"startTime"`
	EndTime          time.Time `json:"endTime"`
	Status           Status    `json:"status"`
	WinnerSlots      int       `json:"winnerSlots"`
	Winners          []string  `json:"winners,omitempty"`
	ParticipantCount *int      `json:"participantCount,omitempty"`
}

// IsOpen сообщает, принимает ли лотерея билеты.
func (l *Lottery) IsOpen() bool {
	return l.Status == StatusOpen
}

// TimeLeft — сколько осталось до EndTime (не меньше нуля).
func (l *Lottery) TimeLeft(now time.Time) time.Duration {
	d := l.EndTime.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func (l *Lottery) clone() Lottery {
	c := *l
	if l.Winners != nil {
		c.Winners = append([]string(nil), l.Winners...)
	}
	if l.ParticipantCount != nil {
		n := *l.ParticipantCount
		c.ParticipantCount = &n
	}
	return c
}

// Entry — билет. Неизменяем после создания.
type Entry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	LotteryID string    `json:"lotteryId"`
	Source    Source    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
}

// AdCreditBalance — рекламные кредиты пользователя.
type AdCreditBalance struct {
	UserID          string          `json:"userId"`
	Credits         decimal.Decimal `json:"credits"`
	LastAdWatchTime *time.Time      `json:"lastAdWatchTime,omitempty"`
}

// --- Представления для обработчиков и админки ---

// LotteryView — открытая лотерея глазами конкретного пользователя.
type LotteryView struct {
	Lottery   Lottery
	MyEntries int
}

// Dashboard — всё, что показывает /start.
type Dashboard struct {
	User         User
	Lotteries    []LotteryView
	Balance      AdCreditBalance
	CanWatchAd   bool
	CooldownLeft time.Duration
}

// LotteryStats — лотерея со счётчиками для админки.
type LotteryStats struct {
	Lottery      Lottery
	Participants int
	Entries      int
}

// ParticipantSummary — строка списка участников в админке.
type ParticipantSummary struct {
	User    User
	Entries int
}

// Overview — общие счётчики для админки.
type Overview struct {
	Users         int
	Entries       int
	OpenLotteries int
}

// DrawResult — закрытая лотерея с именами победителей по порядку мест.
type DrawResult struct {
	Lottery     Lottery
	WinnerNames []string
}

// ReferralResult — итог применения реферального кода.
type ReferralResult struct {
	Referrer       User
	EntriesGranted int
}
