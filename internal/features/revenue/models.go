// Package revenue ведёт журнал выручки: поступления (покупки, комиссии)
// и выводы. Доступная выручка не хранится счётчиком, а каждый раз
// считается суммой записей.
package revenue

import (
	"time"

	"serotonyl.ru/points-engine/internal/common"
)

// Type — вид записи выручки.
type Type string

const (
	TypePurchase      Type = "purchase"       // Покупка очков за звёзды
	TypeTonPurchase   Type = "ton_purchase"   // Покупка очков за TON
	TypeRedemptionFee Type = "redemption_fee" // Комиссия с вывода очков
	TypeBattleFee     Type = "battle_fee"     // Удержание из банка батла
	TypeWithdrawal    Type = "withdrawal"     // Вывод выручки (отрицательная сумма)
)

// Valid — тип из закрытого списка.
func (t Type) Valid() bool {
	switch t {
	case TypePurchase, TypeTonPurchase, TypeRedemptionFee, TypeBattleFee, TypeWithdrawal:
		return true
	}
	return false
}

// Entry — строка revenue_entries.
type Entry struct {
	ID             int64          `db:"id" json:"id"`
	Type           Type           `db:"type" json:"type"`
	Amount         int64          `db:"amount" json:"amount"` // Для withdrawal — отрицательная
	Metadata       map[string]any `db:"metadata" json:"metadata"`
	IdempotencyKey *string        `db:"idempotency_key" json:"idempotencyKey,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
}

// NewEntry — запись к вставке.
type NewEntry struct {
	Type     Type
	Amount   int64
	Metadata map[string]any
}

// Totals — агрегаты по всему журналу.
type Totals struct {
	TotalRevenue     int64          `json:"totalRevenue"`     // Сумма всех поступлений
	Withdrawn        int64          `json:"withdrawn"`        // Сколько выведено (положительное число)
	AvailableRevenue int64          `json:"availableRevenue"` // TotalRevenue - Withdrawn
	ByType           map[Type]int64 `json:"summary"`
}

// Filter — параметры выборки истории.
type Filter struct {
	Type *Type
	Page common.Page
}

// Summary — ответ Summarize.
type Summary struct {
	Totals
	History []*Entry    `json:"history"`
	Total   int64       `json:"total"` // Сколько записей подходит под фильтр
	Page    common.Page `json:"page"`
}

// Withdrawal — результат вывода.
type Withdrawal struct {
	Entry  *Entry `json:"entry"`
	Totals Totals `json:"totals"`
	Replay bool   `json:"replay"` // Повтор по тому же Idempotency-Key
}
