// Package redis — клиент Redis для межинстансных локов фоновых задач.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

type Client struct {
	rdb       *redis.Client
	keyPrefix string
}

// New подключается к Redis и проверяет соединение.
func New(ctx context.Context, addr, password string, db int, keyPrefix string) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("Redis недоступен: %w", err)
	}

	log.WithField("addr", addr).Info("Подключение к Redis установлено")
	return &Client{rdb: rdb, keyPrefix: keyPrefix}, nil
}

func (c *Client) prefixKey(key string) string {
	return c.keyPrefix + key
}

func (c *Client) Close() error {
	log.Info("Закрываем соединение с Redis")
	return c.rdb.Close()
}
