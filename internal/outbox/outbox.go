// Package outbox — транзакционный outbox для событий расчётов.
// Событие пишется в settlement_outbox той же транзакцией, что и сам расчёт,
// а Relay позже публикует его в Kafka. Так событие не теряется при падении
// между COMMIT и отправкой и не уходит, если транзакция откатилась.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"serotonyl.ru/points-engine/internal/db/postgres"
)

// Типы событий. Префикс до точки определяет топик.
const (
	EventBattleResolved  = "battle.resolved"
	EventBattleCancelled = "battle.cancelled"

	EventRedemptionApproved = "redemption.approved"
	EventRedemptionFlagged  = "redemption.flagged"

	EventUserBanned   = "abuse.banned"
	EventUserUnbanned = "abuse.unbanned"

	EventRevenueWithdrawn = "revenue.withdrawn"
)

// Event — строка settlement_outbox.
type Event struct {
	ID           int64           `db:"id"`
	EventType    string          `db:"event_type"`
	PartitionKey string          `db:"partition_key"`
	Payload      json.RawMessage `db:"payload"`
	Status       string          `db:"status"`
	RetryCount   int             `db:"retry_count"`
	CreatedAt    time.Time       `db:"created_at"`
}

// Enqueue кладёт событие в outbox внутри транзакции вызывающего.
// partitionKey — ID сущности, чтобы события одной сущности шли по порядку.
func Enqueue(ctx context.Context, q postgres.Querier, eventType, partitionKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события %s: %w", eventType, err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO settlement_outbox (event_type, partition_key, payload)
		VALUES ($1, $2, $3)
	`, eventType, partitionKey, body)
	if err != nil {
		return fmt.Errorf("ошибка записи события %s: %w", eventType, err)
	}
	return nil
}

// TopicFor строит имя топика: "<prefix>.battles", "<prefix>.redemptions", ...
func TopicFor(prefix, eventType string) string {
	group, _, _ := strings.Cut(eventType, ".")
	switch group {
	case "battle":
		group = "battles"
	case "redemption":
		group = "redemptions"
	case "abuse", "revenue":
	default:
		group = "dlq"
	}
	return prefix + "." + group
}
