// Package ledger — журнал движений очков. Записи только добавляются,
// баланс пользователя — сумма его записей со знаком.
// models.go описывает записи журнала и их типы.
package ledger

import "time"

// EntryType — тип движения очков.
type EntryType string

const (
	TypePurchase         EntryType = "purchase"          // Покупка очков
	TypeBattleEntry      EntryType = "battle_entry"      // Ставка в батле (списание)
	TypeBattlePayout     EntryType = "battle_payout"     // Выигрыш в батле
	TypeBattleRefund     EntryType = "battle_refund"     // Возврат ставки при отмене батла
	TypeRedemptionDebit  EntryType = "redemption_debit"  // Списание под вывод в звёзды
	TypeReferral         EntryType = "referral"          // Реферальный бонус
	TypeManualAdjustment EntryType = "manual_adjustment" // Ручная корректировка оператором
)

// Valid — тип из закрытого списка.
func (t EntryType) Valid() bool {
	switch t {
	case TypePurchase, TypeBattleEntry, TypeBattlePayout, TypeBattleRefund,
		TypeRedemptionDebit, TypeReferral, TypeManualAdjustment:
		return true
	}
	return false
}

// Entry — неизменяемая запись журнала.
type Entry struct {
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"userId"`
	Type        EntryType `db:"type" json:"type"`
	Amount      int64     `db:"amount" json:"amount"` // Со знаком: + начисление, - списание
	Description string    `db:"description" json:"description"`
	Reference   *string   `db:"reference" json:"reference,omitempty"` // Внешний ID платежа (уникален)
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// NewEntry — запись к вставке.
type NewEntry struct {
	UserID      int64
	Type        EntryType
	Amount      int64
	Description string
	Reference   string
}

// Purchase — зачисление купленных очков от платёжного шлюза.
type Purchase struct {
	UserID    int64
	Points    int64  // Сколько очков начислить
	Revenue   int64  // Сколько записать в выручку
	Kind      string // purchase | ton_purchase
	Reference string // ID платежа во внешней системе
}

// Adjustment — результат ручной корректировки.
type Adjustment struct {
	Entry   *Entry `json:"entry"`
	Balance int64  `json:"balance"`
}
