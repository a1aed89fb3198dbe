// Package operators — repository.go работает с таблицами admin_sessions и admin_login_attempts.
package operators

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/points-engine/internal/common"
	"serotonyl.ru/points-engine/internal/db/postgres"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateSession сохраняет новую сессию оператора.
func (r *Repository) CreateSession(ctx context.Context, s *Session) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO admin_sessions (user_id, session_token, expires_at, is_active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING id, authenticated_at, last_activity
	`, s.OperatorID, s.Token, s.ExpiresAt).Scan(&s.ID, &s.AuthenticatedAt, &s.LastActivity)
	if err != nil {
		return fmt.Errorf("ошибка создания сессии: %w", err)
	}
	s.IsActive = true
	return nil
}

// ActiveSession ищет живую сессию по токену и отмечает активность.
func (r *Repository) ActiveSession(ctx context.Context, token string, now time.Time) (*Session, error) {
	var s Session
	err := r.db.QueryRow(ctx, `
		UPDATE admin_sessions SET last_activity = NOW()
		WHERE session_token = $1 AND is_active = TRUE AND expires_at > $2
		RETURNING id, user_id, session_token, authenticated_at, expires_at, last_activity, is_active
	`, token, now).Scan(
		&s.ID, &s.OperatorID, &s.Token, &s.AuthenticatedAt,
		&s.ExpiresAt, &s.LastActivity, &s.IsActive,
	)
	if postgres.IsNoRows(err) {
		return nil, common.ErrSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения сессии: %w", err)
	}
	return &s, nil
}

// Deactivate закрывает сессию. Повторное закрытие — не ошибка.
func (r *Repository) Deactivate(ctx context.Context, token string) error {
	if _, err := r.db.Exec(ctx, `UPDATE admin_sessions SET is_active = FALSE WHERE session_token = $1`, token); err != nil {
		return fmt.Errorf("ошибка закрытия сессии: %w", err)
	}
	return nil
}

// LogAttempt записывает попытку входа.
func (r *Repository) LogAttempt(ctx context.Context, operatorID int64, success bool) error {
	_, err := r.db.Exec(ctx, `INSERT INTO admin_login_attempts (user_id, success) VALUES ($1, $2)`, operatorID, success)
	return err
}

// FailedAttempts — число неудачных попыток начиная с since.
func (r *Repository) FailedAttempts(ctx context.Context, operatorID int64, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM admin_login_attempts
		WHERE user_id = $1 AND success = FALSE AND attempt_time >= $2
	`, operatorID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта попыток входа: %w", err)
	}
	return count, nil
}
