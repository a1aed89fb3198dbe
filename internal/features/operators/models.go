// Package operators — вход операторов по паролю и сессии для API.
// models.go описывает сессии и попытки входа.
package operators

import "time"

// Session — сессия оператора, выданная после входа.
type Session struct {
	ID              int64     `db:"id" json:"-"`
	OperatorID      int64     `db:"user_id" json:"operatorId"`
	Token           string    `db:"session_token" json:"token"`
	AuthenticatedAt time.Time `db:"authenticated_at" json:"authenticatedAt"`
	ExpiresAt       time.Time `db:"expires_at" json:"expiresAt"`
	LastActivity    time.Time `db:"last_activity" json:"-"`
	IsActive        bool      `db:"is_active" json:"-"`
}

// LoginAttempt — попытка входа (для защиты от перебора).
type LoginAttempt struct {
	ID          int64     `db:"id"`
	OperatorID  int64     `db:"user_id"`
	AttemptTime time.Time `db:"attempt_time"`
	Success     bool      `db:"success"`
}

// Лимит неудачных попыток за окно.
const (
	MaxFailedAttempts = 3
	AttemptWindow     = time.Hour
)
