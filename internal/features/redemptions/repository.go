// Package redemptions — repository.go работает с таблицей redemptions.
// Заявка создаётся под advisory-локом счёта пользователя, проверка заявки
// идёт под SELECT ... FOR UPDATE её строки.
package redemptions

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/points-engine/internal/common"
	"serotonyl.ru/points-engine/internal/db/postgres"
	"serotonyl.ru/points-engine/internal/features/abuse"
	"serotonyl.ru/points-engine/internal/features/ledger"
	"serotonyl.ru/points-engine/internal/features/revenue"
	"serotonyl.ru/points-engine/internal/outbox"
)

// RequestCheck проверяет, может ли пользователь подать заявку.
type RequestCheck func(balance int64, ban *abuse.Ban) error

// ReviewPlan решает судьбу заблокированной заявки.
type ReviewPlan func(r *Redemption) (*Decision, error)

const redemptionColumns = `
	id, user_id, points, stars, conversion_rate, status, flagged_reason,
	notes, reviewed_by, reviewed_at, created_at`

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create списывает очки и создаёт заявку в статусе pending.
func (r *Repository) Create(ctx context.Context, n NewRedemption, check RequestCheck) (*Redemption, error) {
	var out *Redemption
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := ledger.LockUser(ctx, tx, n.UserID); err != nil {
			return err
		}
		balance, err := ledger.Balance(ctx, tx, n.UserID)
		if err != nil {
			return err
		}
		ban, err := abuse.LoadBan(ctx, tx, n.UserID)
		if err != nil {
			return err
		}
		if err := check(balance, ban); err != nil {
			return err
		}

		red, err := scanRedemption(tx.QueryRow(ctx, `
			INSERT INTO redemptions (user_id, points, stars, conversion_rate)
			VALUES ($1, $2, $3, $4)
			RETURNING `+redemptionColumns,
			n.UserID, n.Points, n.Stars, n.ConversionRate))
		if err != nil {
			return fmt.Errorf("ошибка создания заявки: %w", err)
		}

		if _, err := ledger.Append(ctx, tx, ledger.NewEntry{
			UserID:      n.UserID,
			Type:        ledger.TypeRedemptionDebit,
			Amount:      -n.Points,
			Description: fmt.Sprintf("Вывод %d зв. (заявка #%d)", n.Stars, red.ID),
		}); err != nil {
			return err
		}

		if _, err := revenue.Insert(ctx, tx, revenue.NewEntry{
			Type:   revenue.TypeRedemptionFee,
			Amount: n.Fee,
			Metadata: map[string]any{
				"redemptionId": red.ID,
				"userId":       n.UserID,
				"points":       n.Points,
			},
		}); err != nil {
			return err
		}
		out = red
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*Redemption, error) {
	red, err := scanRedemption(r.db.QueryRow(ctx, `SELECT `+redemptionColumns+` FROM redemptions WHERE id = $1`, id))
	if postgres.IsNoRows(err) {
		return nil, common.ErrRedemptionNotFound
	}
	return red, err
}

// List — страница заявок, новые сверху.
func (r *Repository) List(ctx context.Context, status *Status, page common.Page) ([]*Redemption, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM redemptions WHERE $1::text IS NULL OR status = $1
	`, status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта заявок: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+redemptionColumns+`
		FROM redemptions
		WHERE $1::text IS NULL OR status = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, status, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения заявок: %w", err)
	}
	defer rows.Close()

	var out []*Redemption
	for rows.Next() {
		red, err := scanRedemption(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, red)
	}
	return out, total, rows.Err()
}

// LedgerSample — выборка журнала владельца для доказательств.
func (r *Repository) LedgerSample(ctx context.Context, userID int64, limit int) ([]*ledger.Entry, error) {
	return ledger.Recent(ctx, r.db, userID, limit)
}

// Review применяет решение оператора одной транзакцией:
// статус заявки, запись о нарушении (если есть) и событие outbox.
func (r *Repository) Review(ctx context.Context, id, operatorID int64, plan ReviewPlan) (*Redemption, error) {
	var out *Redemption
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		red, err := scanRedemption(tx.QueryRow(ctx, `
			SELECT `+redemptionColumns+` FROM redemptions WHERE id = $1 FOR UPDATE
		`, id))
		if postgres.IsNoRows(err) {
			return common.ErrRedemptionNotFound
		}
		if err != nil {
			return err
		}

		d, err := plan(red)
		if err != nil {
			return err
		}

		updated, err := scanRedemption(tx.QueryRow(ctx, `
			UPDATE redemptions
			SET status = $2,
			    notes = COALESCE($3, notes),
			    flagged_reason = COALESCE($4, flagged_reason),
			    reviewed_by = $5,
			    reviewed_at = NOW()
			WHERE id = $1
			RETURNING `+redemptionColumns,
			id, d.Status, d.Note, d.FlaggedReason, operatorID))
		if err != nil {
			return fmt.Errorf("ошибка обновления заявки: %w", err)
		}

		if d.Abuse != nil {
			if _, err := abuse.InsertLog(ctx, tx, *d.Abuse); err != nil {
				return err
			}
		}

		if err := outbox.Enqueue(ctx, tx, d.Event, strconv.FormatInt(red.ID, 10), map[string]any{
			"redemptionId": updated.ID,
			"userId":       updated.UserID,
			"status":       updated.Status,
			"points":       updated.Points,
			"stars":        updated.Stars,
			"operatorId":   operatorID,
		}); err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scanRedemption(row pgx.Row) (*Redemption, error) {
	red := &Redemption{}
	err := row.Scan(
		&red.ID, &red.UserID, &red.Points, &red.Stars, &red.ConversionRate, &red.Status,
		&red.FlaggedReason, &red.Notes, &red.ReviewedBy, &red.ReviewedAt, &red.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return red, nil
}
