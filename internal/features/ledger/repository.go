// Package ledger — repository.go работает с таблицей ledger_entries.
// Append/Balance/Recent принимают Querier, чтобы другие модули
// писали в журнал в своих транзакциях.
package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/points-engine/internal/common"
	"serotonyl.ru/points-engine/internal/db/postgres"
	"serotonyl.ru/points-engine/internal/features/revenue"
)

// Append добавляет записи в журнал. Нулевые суммы и неизвестные типы — ошибка.
func Append(ctx context.Context, q postgres.Querier, entries ...NewEntry) ([]*Entry, error) {
	out := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if e.Amount == 0 {
			return nil, fmt.Errorf("нулевая сумма в журнале (user %d, %s)", e.UserID, e.Type)
		}
		if !e.Type.Valid() {
			return nil, fmt.Errorf("неизвестный тип записи %q", e.Type)
		}

		var ref *string
		if e.Reference != "" {
			ref = &e.Reference
		}
		entry := &Entry{UserID: e.UserID, Type: e.Type, Amount: e.Amount, Description: e.Description, Reference: ref}
		err := q.QueryRow(ctx, `
			INSERT INTO ledger_entries (user_id, type, amount, description, reference)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at
		`, e.UserID, e.Type, e.Amount, e.Description, ref).Scan(&entry.ID, &entry.CreatedAt)
		if err != nil {
			if postgres.IsUniqueViolation(err) {
				return nil, common.ErrDuplicateReference
			}
			return nil, fmt.Errorf("ошибка записи в журнал: %w", err)
		}
		out = append(out, entry)
	}
	return out, nil
}

// Balance — текущий баланс: сумма всех записей пользователя.
func Balance(ctx context.Context, q postgres.Querier, userID int64) (int64, error) {
	var balance int64
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE user_id = $1
	`, userID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта баланса: %w", err)
	}
	return balance, nil
}

// Recent — последние limit записей пользователя, новые сверху.
func Recent(ctx context.Context, q postgres.Querier, userID int64, limit int) ([]*Entry, error) {
	rows, err := q.Query(ctx, `
		SELECT id, user_id, type, amount, description, reference, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// LockUser сериализует операции со счётом пользователя до конца транзакции.
// Строки баланса нет, поэтому вместо FOR UPDATE — advisory-лок.
func LockUser(ctx context.Context, tx pgx.Tx, userID int64) error {
	return postgres.AdvisoryLock(ctx, tx, postgres.LockSpaceUser, userID)
}

func scanEntries(rows pgx.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Amount, &e.Description, &e.Reference, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи журнала: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Repository — операции журнала со своими транзакциями.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Balance(ctx context.Context, userID int64) (int64, error) {
	return Balance(ctx, r.db, userID)
}

func (r *Repository) Recent(ctx context.Context, userID int64, limit int) ([]*Entry, error) {
	return Recent(ctx, r.db, userID, limit)
}

// History — страница журнала пользователя и общее число записей.
func (r *Repository) History(ctx context.Context, userID int64, page common.Page) ([]*Entry, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта журнала: %w", err)
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, type, amount, description, reference, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, userID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения журнала: %w", err)
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	return entries, total, err
}

// Adjust проводит ручную корректировку. Списание, уводящее баланс в минус, отклоняется.
func (r *Repository) Adjust(ctx context.Context, userID, amount int64, reason string) (*Adjustment, error) {
	var out *Adjustment
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := LockUser(ctx, tx, userID); err != nil {
			return err
		}
		balance, err := Balance(ctx, tx, userID)
		if err != nil {
			return err
		}
		if balance+amount < 0 {
			return common.ErrInsufficientBalance
		}
		entries, err := Append(ctx, tx, NewEntry{
			UserID: userID, Type: TypeManualAdjustment, Amount: amount, Description: reason,
		})
		if err != nil {
			return err
		}
		out = &Adjustment{Entry: entries[0], Balance: balance + amount}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreditPurchase зачисляет купленные очки и записывает выручку одной транзакцией.
// Повтор с тем же reference упирается в уникальный индекс и ничего не меняет.
func (r *Repository) CreditPurchase(ctx context.Context, p Purchase) (*Entry, error) {
	var out *Entry
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		entries, err := Append(ctx, tx, NewEntry{
			UserID:      p.UserID,
			Type:        TypePurchase,
			Amount:      p.Points,
			Description: fmt.Sprintf("Покупка %s", common.FormatPoints(p.Points)),
			Reference:   p.Reference,
		})
		if err != nil {
			return err
		}
		_, err = revenue.Insert(ctx, tx, revenue.NewEntry{
			Type:   revenue.Type(p.Kind),
			Amount: p.Revenue,
			Metadata: map[string]any{
				"userId":    p.UserID,
				"points":    p.Points,
				"reference": p.Reference,
			},
		})
		if err != nil {
			return err
		}
		out = entries[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
