// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: русская плюрализация для уведомлений, форматирование чисел,
// целочисленные проценты и пагинация.
package common

import (
	"fmt"
	"strings"
)

// pluralize выбирает форму слова по правилам русского языка.
//
// Правила:
//   - n%10==1 И n%100!=11 → one (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → few (2, 3, 4, 22, ...)
//   - Остальные случаи → many (0, 5-20, 25-30, 100, ...)
func pluralize(n int64, one, few, many string) string {
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

// PluralizePoints возвращает правильную форму слова «очко» для числа n.
//
// Примеры:
//
//	PluralizePoints(1)  → "очко"
//	PluralizePoints(3)  → "очка"
//	PluralizePoints(11) → "очков"
func PluralizePoints(n int64) string {
	return pluralize(n, "очко", "очка", "очков")
}

// PluralizeStars возвращает правильную форму слова «звезда».
func PluralizeStars(n int64) string {
	return pluralize(n, "звезда", "звезды", "звёзд")
}

// FormatPoints форматирует сумму очков: FormatPoints(2350) → "2 350 очков".
func FormatPoints(n int64) string {
	return fmt.Sprintf("%s %s", FormatNumber(n), PluralizePoints(n))
}

// FormatNumber форматирует число с разделителями тысяч (пробелами).
// Пример: FormatNumber(2350) → "2 350"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s %03d", FormatNumber(n/1000), n%1000)
}

// PercentOf возвращает floor(amount * percent / 100).
// Всё целочисленное — дробных очков в системе нет.
func PercentOf(amount, percent int64) int64 {
	if amount <= 0 || percent <= 0 {
		return 0
	}
	return amount * percent / 100
}

// Page — нормализованные параметры пагинации.
type Page struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// NewPage приводит page/limit к допустимым значениям (page с 1).
func NewPage(page, limit int) Page {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return Page{Page: page, Limit: limit}
}

// Offset — смещение для SQL OFFSET.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// IsBlank — строка пустая или из одних пробелов.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
