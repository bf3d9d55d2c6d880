// Package common — pluralize.go содержит склонение русских
// существительных после числительных.
package common

import "fmt"

// Pluralize выбирает форму слова для числа n.
//
// Правила русского языка:
//   - n%10==1 И n%100!=11 → one (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → few (2, 3, 4, 22, 23, ...)
//   - Остальные случаи → many (0, 5-20, 25-30, 100, ...)
func Pluralize(n int, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	lastDigit := n % 10
	lastTwoDigits := n % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// PluralizeEntries возвращает форму слова «билет».
//
//	PluralizeEntries(1)  → "билет"
//	PluralizeEntries(3)  → "билета"
//	PluralizeEntries(11) → "билетов"
func PluralizeEntries(n int) string {
	return Pluralize(n, "билет", "билета", "билетов")
}

// PluralizeWinners возвращает форму слова «победитель».
func PluralizeWinners(n int) string {
	return Pluralize(n, "победитель", "победителя", "победителей")
}

// FormatEntries создаёт строку вида "5 билетов".
func FormatEntries(n int) string {
	return fmt.Sprintf("%d %s", n, PluralizeEntries(n))
}
