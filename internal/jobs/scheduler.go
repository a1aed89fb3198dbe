// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: генерация батлов из фида
// и авторасчёт прошедших батлов.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/points-engine/internal/config"
	"serotonyl.ru/points-engine/internal/features/battles"
	"serotonyl.ru/points-engine/internal/redis"
)

// BattleJobs — пакетные операции батлов, которые запускает cron.
type BattleJobs interface {
	Generate(ctx context.Context) (*battles.GenerateReport, error)
	AutoResolve(ctx context.Context) (*battles.AutoResolveReport, error)
}

// Locker не даёт двум инстансам выполнять одну задачу одновременно.
type Locker interface {
	WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron    *cron.Cron
	cfg     *config.Config
	battles BattleJobs
	locker  Locker // nil — Redis не настроен, лок не берём
}

// NewScheduler создаёт планировщик в часовом поясе APP_TIMEZONE.
func NewScheduler(cfg *config.Config, battles BattleJobs, locker Locker) *Scheduler {
	loc, err := time.LoadLocation(cfg.AppTimezone)
	if err != nil {
		log.WithError(err).Warnf("Не удалось загрузить %s, используем UTC+3", cfg.AppTimezone)
		loc = time.FixedZone("MSK", 3*60*60)
	}

	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		cfg:     cfg,
		battles: battles,
		locker:  locker,
	}
}

// Start регистрирует включённые задачи и запускает cron.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.FeatureGenerateEnabled {
		if _, err := s.cron.AddFunc(s.cfg.BattleGenerateCron, func() {
			s.run(ctx, "battles-generate", func(ctx context.Context) error {
				report, err := s.battles.Generate(ctx)
				if err != nil {
					return err
				}
				log.WithFields(log.Fields{"created": report.Created, "skipped": report.Skipped}).Info("[CRON] Генерация батлов")
				return nil
			})
		}); err != nil {
			return err
		}
	}

	if s.cfg.FeatureAutoResolveEnabled {
		if _, err := s.cron.AddFunc(s.cfg.BattleAutoResolveCron, func() {
			s.run(ctx, "battles-autoresolve", func(ctx context.Context) error {
				report, err := s.battles.AutoResolve(ctx)
				if err != nil {
					return err
				}
				if len(report.ResolutionErrors) > 0 {
					log.WithField("errors", report.ResolutionErrors).Warn("[CRON] Часть батлов не рассчитана")
				}
				return nil
			})
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	log.WithField("jobs", len(s.cron.Entries())).Info("Планировщик задач запущен")
	return nil
}

// run выполняет задачу под распределённым локом, если он настроен.
func (s *Scheduler) run(ctx context.Context, name string, fn func(ctx context.Context) error) {
	var err error
	if s.locker != nil {
		err = s.locker.WithLock(ctx, name, s.cfg.RedisLockTTL, fn)
	} else {
		err = fn(ctx)
	}

	switch {
	case errors.Is(err, redis.ErrLockHeld):
		log.WithField("job", name).Debug("[CRON] Задача уже выполняется другим инстансом")
	case err != nil:
		log.WithField("job", name).WithError(err).Error("[CRON] Ошибка задачи")
	}
}

// Stop останавливает планировщик и ждёт текущие задачи.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
