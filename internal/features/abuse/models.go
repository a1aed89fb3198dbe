// Package abuse — журнал нарушений, оценка риска и баны.
// Оценка (abuseScore) не хранится счётчиком: это сумма весов записей журнала.
package abuse

import "time"

// Severity — тяжесть нарушения.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Weights — вклад одной записи каждой тяжести в оценку.
// Вес фиксируется в записи при вставке, смена конфига не переписывает историю.
type Weights struct {
	Low      int64
	Medium   int64
	High     int64
	Critical int64
}

// DefaultWeights — low=1, medium=3, high=5, critical=10.
var DefaultWeights = Weights{Low: 1, Medium: 3, High: 5, Critical: 10}

func (w Weights) Of(s Severity) int64 {
	switch s {
	case SeverityLow:
		return w.Low
	case SeverityMedium:
		return w.Medium
	case SeverityHigh:
		return w.High
	case SeverityCritical:
		return w.Critical
	}
	return 0
}

// Log — запись журнала нарушений.
type Log struct {
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"userId"`
	Type        string    `db:"type" json:"type"`
	Severity    Severity  `db:"severity" json:"severity"`
	Weight      int64     `db:"weight" json:"weight"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// NewLog — запись к вставке.
type NewLog struct {
	UserID      int64
	Type        string
	Severity    Severity
	Weight      int64
	Description string
}

// Ban — состояние бана пользователя.
// BannedUntil == nil у активного бана означает перманентный бан.
type Ban struct {
	UserID       int64      `db:"user_id" json:"userId"`
	IsBanned     bool       `db:"is_banned" json:"isBanned"`
	BannedReason *string    `db:"banned_reason" json:"bannedReason"`
	BannedAt     *time.Time `db:"banned_at" json:"bannedAt"`
	BannedUntil  *time.Time `db:"banned_until" json:"bannedUntil"`
	IsPermanent  bool       `db:"is_permanent" json:"isPermanent"`
	BannedBy     *int64     `db:"banned_by" json:"bannedBy,omitempty"`
}

// ActiveAt — действует ли бан в момент now. Истёкший временный бан не действует.
func (b *Ban) ActiveAt(now time.Time) bool {
	if b == nil || !b.IsBanned {
		return false
	}
	if b.IsPermanent {
		return true
	}
	return b.BannedUntil != nil && b.BannedUntil.After(now)
}

// Status — сводка по пользователю для экрана проверки.
type Status struct {
	UserID     int64 `json:"userId"`
	AbuseScore int64 `json:"abuseScore"`
	Flagged    bool  `json:"flagged"` // abuseScore > 0
	Banned     bool  `json:"banned"`  // Бан действует прямо сейчас
	Ban        *Ban  `json:"ban"`
}

// FlaggedUser — строка списка пользователей на проверку.
type FlaggedUser struct {
	UserID     int64     `json:"userId"`
	AbuseScore int64     `json:"abuseScore"`
	LogCount   int64     `json:"logCount"`
	LastAt     time.Time `json:"lastAt"`
}
