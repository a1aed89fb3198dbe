package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/points-engine/internal/config"
	"serotonyl.ru/points-engine/internal/features/battles"
	"serotonyl.ru/points-engine/internal/redis"
)

type fakeBattles struct {
	mu        sync.Mutex
	generated int
	resolved  int
}

func (f *fakeBattles) Generate(context.Context) (*battles.GenerateReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generated++
	return &battles.GenerateReport{Created: 1}, nil
}

func (f *fakeBattles) AutoResolve(context.Context) (*battles.AutoResolveReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved++
	return &battles.AutoResolveReport{}, nil
}

// memLocker — лок в памяти с той же семантикой, что у Redis.
type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memLocker) WithLock(ctx context.Context, name string, _ time.Duration, fn func(context.Context) error) error {
	l.mu.Lock()
	if l.held[name] {
		l.mu.Unlock()
		return redis.ErrLockHeld
	}
	l.held[name] = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, name)
		l.mu.Unlock()
	}()
	return fn(ctx)
}

func testConfig() *config.Config {
	return &config.Config{
		AppTimezone:               "UTC",
		BattleGenerateCron:        "0 6 * * *",
		BattleAutoResolveCron:     "*/15 * * * *",
		RedisLockTTL:              time.Minute,
		FeatureGenerateEnabled:    true,
		FeatureAutoResolveEnabled: true,
	}
}

func Test_Scheduler_Run(t *testing.T) {
	ctx := context.Background()
	locker := &memLocker{held: make(map[string]bool)}
	s := NewScheduler(testConfig(), &fakeBattles{}, locker)

	calls := 0
	s.run(ctx, "job", func(context.Context) error { calls++; return nil })
	require.Equal(t, 1, calls)

	// Лок занят другим инстансом — задача пропускается
	locker.held["job"] = true
	s.run(ctx, "job", func(context.Context) error { calls++; return nil })
	require.Equal(t, 1, calls)

	// Ошибка задачи только логируется
	s.run(ctx, "other", func(context.Context) error { calls++; return errors.New("boom") })
	require.Equal(t, 2, calls)

	noLock := NewScheduler(testConfig(), &fakeBattles{}, nil)
	noLock.run(ctx, "job", func(context.Context) error { calls++; return nil })
	require.Equal(t, 3, calls)
}

func Test_Scheduler_FeatureFlags(t *testing.T) {
	cfg := testConfig()
	cfg.FeatureGenerateEnabled = false
	s := NewScheduler(cfg, &fakeBattles{}, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	require.Len(t, s.cron.Entries(), 1)

	bad := testConfig()
	bad.BattleAutoResolveCron = "not a cron"
	require.Error(t, NewScheduler(bad, &fakeBattles{}, nil).Start(context.Background()))
}
