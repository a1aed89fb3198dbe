// Package kafka — продюсер событий расчётов на franz-go.
package kafka

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer отправляет записи синхронно и ждёт подтверждения всех ISR.
type Producer struct {
	client *kgo.Client
}

// NewProducer подключается к брокерам. Без брокеров продюсер не создаётся —
// outbox в этом случае просто копит события в таблице.
func NewProducer(brokers []string, timeout time.Duration) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("не заданы брокеры Kafka")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProduceRequestTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания продюсера Kafka: %w", err)
	}
	log.WithField("brokers", brokers).Info("Продюсер Kafka создан")
	return &Producer{client: client}, nil
}

// Publish отправляет одну запись; key определяет партицию.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) error {
	record := &kgo.Record{
		Topic: topic,
		Key:   key,
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("ошибка публикации в %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() {
	log.Info("Закрываем продюсер Kafka")
	p.client.Close()
}
