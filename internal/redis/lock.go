package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// ErrLockHeld — лок уже взят другим инстансом.
var ErrLockHeld = errors.New("лок уже захвачен")

// Снимаем ключ, только если он всё ещё наш.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Lock — распределённый лок на SETNX с TTL.
type Lock struct {
	client *Client
	key    string
	owner  string
}

// AcquireLock пытается взять лок без ожидания. TTL страхует от
// упавшего владельца: ключ истечёт сам.
func (c *Client) AcquireLock(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	key := c.prefixKey("lock:" + name)
	owner := uuid.NewString()

	ok, err := c.rdb.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("ошибка захвата лока %s: %w", name, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{client: c, key: key, owner: owner}, nil
}

// Release снимает лок, если он не истёк и не перехвачен.
func (l *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client.rdb, []string{l.key}, l.owner).Err(); err != nil {
		return fmt.Errorf("ошибка снятия лока: %w", err)
	}
	return nil
}

// WithLock выполняет fn под локом name. Занятый лок — ErrLockHeld, fn не вызывается.
func (c *Client) WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lock, err := c.AcquireLock(ctx, name, ttl)
	if err != nil {
		return err
	}
	defer func() {
		// Контекст задачи мог быть отменён, снимаем лок своим
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			log.WithField("lock", name).WithError(err).Warn("Не удалось снять лок")
		}
	}()
	return fn(ctx)
}
