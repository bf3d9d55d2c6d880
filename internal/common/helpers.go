// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: русская плюрализация, форматирование времени, часовой пояс.
package common

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// LoadLocation загружает часовой пояс по имени.
// Если зона недоступна (нет tzdata в контейнере), используем UTC+3.
func LoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.WithError(err).WithField("timezone", name).Warn("Не удалось загрузить часовой пояс, используем UTC+3")
		return time.FixedZone("MSK", 3*60*60)
	}
	return loc
}

// FormatTimeLeft форматирует оставшееся до конца лотереи время.
//
//	FormatTimeLeft(0)               → "завершена"
//	FormatTimeLeft(50*time.Hour)    → "2д 2ч"
//	FormatTimeLeft(90*time.Minute)  → "1ч 30м"
//	FormatTimeLeft(5*time.Minute)   → "5м"
func FormatTimeLeft(d time.Duration) string {
	if d <= 0 {
		return "завершена"
	}
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)

	switch {
	case days > 0:
		return fmt.Sprintf("%dд %dч", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dч %dм", hours, minutes)
	default:
		return fmt.Sprintf("%dм", minutes)
	}
}

// FormatCooldown форматирует остаток кулдауна рекламы как "мм:сс".
func FormatCooldown(d time.Duration) string {
	if d <= 0 {
		return "00:00"
	}
	d = d.Round(time.Second)
	return fmt.Sprintf("%02d:%02d", int(d/time.Minute), int(d%time.Minute/time.Second))
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04" в заданном поясе.
func FormatDateTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("02.01.2006 15:04")
}
