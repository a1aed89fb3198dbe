// Package abuse — repository.go работает с таблицами abuse_logs и user_bans.
package abuse

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/points-engine/internal/common"
	"serotonyl.ru/points-engine/internal/db/postgres"
	"serotonyl.ru/points-engine/internal/outbox"
)

// InsertLog добавляет запись в журнал нарушений в транзакции вызывающего.
func InsertLog(ctx context.Context, q postgres.Querier, l NewLog) (*Log, error) {
	if !l.Severity.Valid() {
		return nil, fmt.Errorf("неизвестная тяжесть %q", l.Severity)
	}
	if l.Weight <= 0 {
		return nil, fmt.Errorf("вес нарушения должен быть > 0, получено %d", l.Weight)
	}
	out := &Log{UserID: l.UserID, Type: l.Type, Severity: l.Severity, Weight: l.Weight, Description: l.Description}
	err := q.QueryRow(ctx, `
		INSERT INTO abuse_logs (user_id, type, severity, weight, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, l.UserID, l.Type, l.Severity, l.Weight, l.Description).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("ошибка записи нарушения: %w", err)
	}
	return out, nil
}

// LoadBan читает бан пользователя. Нет строки — пустой (неактивный) бан.
func LoadBan(ctx context.Context, q postgres.Querier, userID int64) (*Ban, error) {
	b := &Ban{UserID: userID}
	err := q.QueryRow(ctx, `
		SELECT is_banned, banned_reason, banned_at, banned_until, is_permanent, banned_by
		FROM user_bans WHERE user_id = $1
	`, userID).Scan(&b.IsBanned, &b.BannedReason, &b.BannedAt, &b.BannedUntil, &b.IsPermanent, &b.BannedBy)
	if err != nil && !postgres.IsNoRows(err) {
		return nil, fmt.Errorf("ошибка чтения бана: %w", err)
	}
	return b, nil
}

// Score — сумма весов всех нарушений пользователя.
func Score(ctx context.Context, q postgres.Querier, userID int64) (int64, error) {
	var score int64
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(weight), 0) FROM abuse_logs WHERE user_id = $1`, userID).Scan(&score)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта оценки: %w", err)
	}
	return score, nil
}

// Repository работает с журналом нарушений и банами.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Record(ctx context.Context, l NewLog) (*Log, error) {
	return InsertLog(ctx, r.db, l)
}

func (r *Repository) Score(ctx context.Context, userID int64) (int64, error) {
	return Score(ctx, r.db, userID)
}

func (r *Repository) GetBan(ctx context.Context, userID int64) (*Ban, error) {
	return LoadBan(ctx, r.db, userID)
}

// Logs — последние записи пользователя.
func (r *Repository) Logs(ctx context.Context, userID int64, limit int) ([]*Log, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, type, severity, weight, description, created_at
		FROM abuse_logs
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения нарушений: %w", err)
	}
	defer rows.Close()

	var logs []*Log
	for rows.Next() {
		var l Log
		if err := rows.Scan(&l.ID, &l.UserID, &l.Type, &l.Severity, &l.Weight, &l.Description, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования нарушения: %w", err)
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// Flagged — пользователи с ненулевой оценкой, самые подозрительные сверху.
func (r *Repository) Flagged(ctx context.Context, page common.Page) ([]*FlaggedUser, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(DISTINCT user_id) FROM abuse_logs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта помеченных: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT user_id, SUM(weight) AS score, COUNT(*), MAX(created_at)
		FROM abuse_logs
		GROUP BY user_id
		HAVING SUM(weight) > 0
		ORDER BY score DESC, user_id
		LIMIT $1 OFFSET $2
	`, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения помеченных: %w", err)
	}
	defer rows.Close()

	var users []*FlaggedUser
	for rows.Next() {
		var u FlaggedUser
		if err := rows.Scan(&u.UserID, &u.AbuseScore, &u.LogCount, &u.LastAt); err != nil {
			return nil, 0, fmt.Errorf("ошибка сканирования помеченного: %w", err)
		}
		users = append(users, &u)
	}
	return users, total, rows.Err()
}

// SaveBan записывает бан и событие о нём одной транзакцией.
func (r *Repository) SaveBan(ctx context.Context, b *Ban) (*Ban, error) {
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO user_bans (user_id, is_banned, banned_reason, banned_at, banned_until, is_permanent, banned_by, updated_at)
			VALUES ($1, TRUE, $2, $3, $4, $5, $6, NOW())
			ON CONFLICT (user_id) DO UPDATE SET
				is_banned = TRUE,
				banned_reason = EXCLUDED.banned_reason,
				banned_at = EXCLUDED.banned_at,
				banned_until = EXCLUDED.banned_until,
				is_permanent = EXCLUDED.is_permanent,
				banned_by = EXCLUDED.banned_by,
				updated_at = NOW()
		`, b.UserID, b.BannedReason, b.BannedAt, b.BannedUntil, b.IsPermanent, b.BannedBy)
		if err != nil {
			return fmt.Errorf("ошибка записи бана: %w", err)
		}
		return outbox.Enqueue(ctx, tx, outbox.EventUserBanned, strconv.FormatInt(b.UserID, 10), b)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ClearBan снимает бан. Если бана не было — ничего не пишет и возвращает false.
func (r *Repository) ClearBan(ctx context.Context, userID, operatorID int64) (bool, error) {
	var changed bool
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE user_bans
			SET is_banned = FALSE, banned_reason = NULL, banned_at = NULL,
			    banned_until = NULL, is_permanent = FALSE, banned_by = NULL, updated_at = NOW()
			WHERE user_id = $1 AND is_banned = TRUE
		`, userID)
		if err != nil {
			return fmt.Errorf("ошибка снятия бана: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		changed = true
		return outbox.Enqueue(ctx, tx, outbox.EventUserUnbanned, strconv.FormatInt(userID, 10), map[string]any{
			"userId":     userID,
			"operatorId": operatorID,
		})
	})
	return changed, err
}
