// Package revenue — repository.go работает с таблицей revenue_entries.
package revenue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/points-engine/internal/common"
	"serotonyl.ru/points-engine/internal/db/postgres"
	"serotonyl.ru/points-engine/internal/outbox"
)

// Insert пишет запись выручки в транзакции вызывающего.
// Нулевая сумма ничего не пишет и возвращает nil: остаток 0 при расчёте батла — норма.
func Insert(ctx context.Context, q postgres.Querier, e NewEntry) (*Entry, error) {
	if e.Amount == 0 {
		return nil, nil
	}
	if !e.Type.Valid() {
		return nil, fmt.Errorf("неизвестный тип выручки %q", e.Type)
	}
	if (e.Type == TypeWithdrawal) != (e.Amount < 0) {
		return nil, fmt.Errorf("знак суммы %d не соответствует типу %s", e.Amount, e.Type)
	}
	return insert(ctx, q, e, nil)
}

func insert(ctx context.Context, q postgres.Querier, e NewEntry, key *string) (*Entry, error) {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	body, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации metadata: %w", err)
	}

	out := &Entry{Type: e.Type, Amount: e.Amount, Metadata: meta, IdempotencyKey: key}
	err = q.QueryRow(ctx, `
		INSERT INTO revenue_entries (type, amount, metadata, idempotency_key)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, e.Type, e.Amount, body, key).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("ошибка записи выручки: %w", err)
	}
	return out, nil
}

// LoadTotals считает агрегаты одним запросом.
func LoadTotals(ctx context.Context, q postgres.Querier) (Totals, error) {
	rows, err := q.Query(ctx, `SELECT type, COALESCE(SUM(amount), 0) FROM revenue_entries GROUP BY type`)
	if err != nil {
		return Totals{}, fmt.Errorf("ошибка подсчёта выручки: %w", err)
	}
	defer rows.Close()

	sums := make(map[Type]int64)
	for rows.Next() {
		var t Type
		var sum int64
		if err := rows.Scan(&t, &sum); err != nil {
			return Totals{}, fmt.Errorf("ошибка сканирования выручки: %w", err)
		}
		sums[t] = sum
	}
	if err := rows.Err(); err != nil {
		return Totals{}, err
	}
	return computeTotals(sums), nil
}

// computeTotals сводит суммы по типам в итоги.
func computeTotals(sums map[Type]int64) Totals {
	t := Totals{ByType: make(map[Type]int64, len(sums))}
	for typ, sum := range sums {
		t.ByType[typ] = sum
		if typ == TypeWithdrawal {
			t.Withdrawn += -sum
		} else {
			t.TotalRevenue += sum
		}
	}
	t.AvailableRevenue = t.TotalRevenue - t.Withdrawn
	return t
}

// Repository — операции над выручкой с собственными транзакциями.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Record пишет поступление отдельной транзакцией.
func (r *Repository) Record(ctx context.Context, e NewEntry) (*Entry, error) {
	return Insert(ctx, r.db, e)
}

// Totals — агрегаты на текущий момент.
func (r *Repository) Totals(ctx context.Context) (Totals, error) {
	return LoadTotals(ctx, r.db)
}

// History — страница записей, новые сверху.
func (r *Repository) History(ctx context.Context, f Filter) ([]*Entry, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM revenue_entries WHERE $1::text IS NULL OR type = $1
	`, f.Type).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта истории выручки: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, type, amount, metadata, idempotency_key, created_at
		FROM revenue_entries
		WHERE $1::text IS NULL OR type = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, f.Type, f.Page.Limit, f.Page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения истории выручки: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// Withdraw выводит amount, если хватает доступной выручки.
// Все выводы сериализуются advisory-локом, доступная сумма считается
// внутри той же транзакции. Повтор с тем же key возвращает прежнюю запись.
func (r *Repository) Withdraw(ctx context.Context, amount int64, note, key string, operatorID int64) (*Withdrawal, error) {
	var out *Withdrawal
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := postgres.AdvisoryLock(ctx, tx, postgres.LockSpaceRevenue, 0); err != nil {
			return err
		}

		var keyPtr *string
		if key != "" {
			keyPtr = &key
			prev, err := r.byKey(ctx, tx, key)
			if err != nil {
				return err
			}
			if prev != nil {
				totals, err := LoadTotals(ctx, tx)
				if err != nil {
					return err
				}
				out = &Withdrawal{Entry: prev, Totals: totals, Replay: true}
				return nil
			}
		}

		totals, err := LoadTotals(ctx, tx)
		if err != nil {
			return err
		}
		if amount > totals.AvailableRevenue {
			return common.ErrInsufficientRevenue
		}

		meta := map[string]any{"operatorId": operatorID}
		if note != "" {
			meta["note"] = note
		}
		entry, err := insert(ctx, tx, NewEntry{Type: TypeWithdrawal, Amount: -amount, Metadata: meta}, keyPtr)
		if err != nil {
			return err
		}

		err = outbox.Enqueue(ctx, tx, outbox.EventRevenueWithdrawn, strconv.FormatInt(entry.ID, 10), map[string]any{
			"entryId":    entry.ID,
			"amount":     amount,
			"operatorId": operatorID,
			"available":  totals.AvailableRevenue - amount,
		})
		if err != nil {
			return err
		}

		totals = computeTotals(addWithdrawal(totals.ByType, amount))
		out = &Withdrawal{Entry: entry, Totals: totals}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func addWithdrawal(byType map[Type]int64, amount int64) map[Type]int64 {
	sums := make(map[Type]int64, len(byType)+1)
	for k, v := range byType {
		sums[k] = v
	}
	sums[TypeWithdrawal] -= amount
	return sums
}

func (r *Repository) byKey(ctx context.Context, q postgres.Querier, key string) (*Entry, error) {
	row := q.QueryRow(ctx, `
		SELECT id, type, amount, metadata, idempotency_key, created_at
		FROM revenue_entries WHERE idempotency_key = $1
	`, key)
	e, err := scanEntry(row)
	if postgres.IsNoRows(err) {
		return nil, nil
	}
	return e, err
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var meta []byte
	if err := row.Scan(&e.ID, &e.Type, &e.Amount, &meta, &e.IdempotencyKey, &e.CreatedAt); err != nil {
		if postgres.IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("ошибка сканирования записи выручки: %w", err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return nil, fmt.Errorf("ошибка разбора metadata: %w", err)
		}
	}
	return &e, nil
}
