// Package redemptions — вывод накопленных очков в звёзды.
// Очки списываются при подаче заявки, дальше оператор либо подтверждает
// вывод, либо помечает заявку как мошенническую.
package redemptions

import (
	"time"

	"serotonyl.ru/points-engine/internal/features/abuse"
	"serotonyl.ru/points-engine/internal/features/ledger"
)

// Status — состояние заявки.
type Status string

const (
	StatusPending   Status = "pending"   // Ждёт проверки
	StatusApproved  Status = "approved"  // Одобрена, выплата ещё не завершена
	StatusCompleted Status = "completed" // Звёзды выплачены
	StatusFlagged   Status = "flagged"   // Помечена как подозрительная
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusCompleted, StatusFlagged:
		return true
	}
	return false
}

// Redemption — строка таблицы redemptions.
// Evidence не хранится: собирается из журнала при каждом чтении.
type Redemption struct {
	ID             int64      `db:"id" json:"id"`
	UserID         int64      `db:"user_id" json:"userId"`
	Points         int64      `db:"points" json:"points"` // stars * conversionRate
	Stars          int64      `db:"stars" json:"stars"`
	ConversionRate int64      `db:"conversion_rate" json:"conversionRate"`
	Status         Status     `db:"status" json:"status"`
	FlaggedReason  *string    `db:"flagged_reason" json:"flaggedReason"`
	Notes          *string    `db:"notes" json:"notes"`
	ReviewedBy     *int64     `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt     *time.Time `db:"reviewed_at" json:"reviewedAt"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	Evidence       *Evidence  `db:"-" json:"evidence,omitempty"`
}

// Evidence — срез журнала пользователя на момент проверки.
type Evidence struct {
	TotalCredits  int64                      `json:"totalCredits"` // Сумма начислений в выборке
	TotalDebits   int64                      `json:"totalDebits"`  // Сумма списаний в выборке, по модулю
	SampleSize    int                        `json:"sampleSize"`
	TotalsByType  map[ledger.EntryType]int64 `json:"totalsByType"`
	RecentEntries []*ledger.Entry            `json:"recentEntries"`
}

// NewRedemption — заявка к вставке.
type NewRedemption struct {
	UserID         int64
	Stars          int64
	ConversionRate int64
	Points         int64
	Fee            int64 // Комиссия в выручку, 0 — не записывать
}

// Decision — итог проверки заявки оператором.
type Decision struct {
	Status        Status
	Note          *string
	FlaggedReason *string
	Abuse         *abuse.NewLog // Запись о нарушении владельца, только для Flag
	Event         string        // Тип события outbox
}
