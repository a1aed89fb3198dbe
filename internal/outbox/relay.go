package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// Publisher — то, куда relay отправляет события (kafka.Producer).
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Сколько раз пытаемся отправить событие, прежде чем пометить его failed.
const maxRetries = 10

// Relay периодически вычитывает pending-события и публикует их.
type Relay struct {
	db          *pgxpool.Pool
	publisher   Publisher
	topicPrefix string
	batchSize   int
	interval    time.Duration
}

func NewRelay(db *pgxpool.Pool, publisher Publisher, topicPrefix string, batchSize int, interval time.Duration) *Relay {
	return &Relay{
		db:          db,
		publisher:   publisher,
		topicPrefix: topicPrefix,
		batchSize:   batchSize,
		interval:    interval,
	}
}

// Run крутится до отмены ctx.
func (r *Relay) Run(ctx context.Context) {
	log.WithField("interval", r.interval).Info("Outbox relay запущен")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Outbox relay остановлен")
			return
		case <-ticker.C:
			if n, err := r.processBatch(ctx); err != nil {
				log.WithError(err).Error("Ошибка обработки пачки outbox")
			} else if n > 0 {
				log.WithField("count", n).Debug("События outbox опубликованы")
			}
		}
	}
}

// processBatch публикует одну пачку. Строки держатся под FOR UPDATE SKIP LOCKED,
// так что несколько инстансов relay не отправят одно событие дважды.
func (r *Relay) processBatch(ctx context.Context) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, event_type, partition_key, payload, retry_count
		FROM settlement_outbox
		WHERE status = 'pending'
		ORDER BY id ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("ошибка выборки outbox: %w", err)
	}

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.EventType, &e.PartitionKey, &e.Payload, &e.RetryCount); err != nil {
			rows.Close()
			return 0, fmt.Errorf("ошибка сканирования события: %w", err)
		}
		events = append(events, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	var published []int64
	for _, e := range events {
		topic := TopicFor(r.topicPrefix, e.EventType)
		if pubErr := r.publisher.Publish(ctx, topic, []byte(e.PartitionKey), e.Payload); pubErr != nil {
			log.WithFields(log.Fields{
				"event_id":   e.ID,
				"event_type": e.EventType,
				"retry":      e.RetryCount + 1,
			}).WithError(pubErr).Warn("Не удалось опубликовать событие")

			status := "pending"
			if e.RetryCount+1 >= maxRetries {
				status = "failed"
			}
			if _, err := tx.Exec(ctx, `
				UPDATE settlement_outbox
				SET retry_count = retry_count + 1, last_error = $2, status = $3, updated_at = NOW()
				WHERE id = $1
			`, e.ID, pubErr.Error(), status); err != nil {
				return 0, fmt.Errorf("ошибка обновления события %d: %w", e.ID, err)
			}
			continue
		}
		published = append(published, e.ID)
	}

	if len(published) > 0 {
		if _, err := tx.Exec(ctx, `
			UPDATE settlement_outbox
			SET status = 'processed', updated_at = NOW()
			WHERE id = ANY($1)
		`, published); err != nil {
			return 0, fmt.Errorf("ошибка отметки событий: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("ошибка коммита outbox: %w", err)
	}
	return len(published), nil
}
