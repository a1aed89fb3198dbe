// Package postgres — вспомогательные функции для работы с БД.
// queries.go содержит общий интерфейс запросов и обёртку над транзакциями.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier — то, что умеют и пул, и транзакция.
// Функции записи в чужие таблицы (ledger, revenue, abuse, outbox) принимают
// Querier, чтобы выполняться внутри транзакции вызывающего.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ Querier = (*pgxpool.Pool)(nil)
	_ Querier = (pgx.Tx)(nil)
)

// WithTx выполняет fn в одной транзакции.
// Если fn вернёт ошибку — транзакция откатится, ничего не будет записано.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, pool, fn)
}

// Пространства advisory-локов, чтобы ключи разных сущностей не пересекались.
const (
	LockSpaceUser    int32 = 1 // Операции со счётом пользователя
	LockSpaceRevenue int32 = 2 // Выводы выручки
)

// AdvisoryLock берёт транзакционный advisory-лок (отпускается на COMMIT/ROLLBACK).
// Используется там, где нет строки для SELECT ... FOR UPDATE: баланс пользователя
// вычисляется из журнала, а доступная выручка — из суммы записей.
func AdvisoryLock(ctx context.Context, tx pgx.Tx, space int32, key int64) error {
	// Ключ сворачиваем в int4; коллизия лишь сериализует две операции, не ломая их
	folded := int32(key ^ (key >> 32))
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, space, folded); err != nil {
		return fmt.Errorf("ошибка блокировки (%d:%d): %w", space, key, err)
	}
	return nil
}

// IsUniqueViolation — нарушение уникального индекса (23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsNoRows — запрос не вернул строк.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
