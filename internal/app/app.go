// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, необязательные Redis/Kafka/Telegram,
// репозитории, сервисы, обработчики и HTTP-сервер.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/points-engine/internal/config"
	"serotonyl.ru/points-engine/internal/db/postgres"
	"serotonyl.ru/points-engine/internal/features/abuse"
	"serotonyl.ru/points-engine/internal/features/battles"
	"serotonyl.ru/points-engine/internal/features/ledger"
	"serotonyl.ru/points-engine/internal/features/operators"
	"serotonyl.ru/points-engine/internal/features/redemptions"
	"serotonyl.ru/points-engine/internal/features/revenue"
	"serotonyl.ru/points-engine/internal/jobs"
	"serotonyl.ru/points-engine/internal/kafka"
	"serotonyl.ru/points-engine/internal/notify"
	"serotonyl.ru/points-engine/internal/outbox"
	"serotonyl.ru/points-engine/internal/redis"
	"serotonyl.ru/points-engine/internal/server"
	"serotonyl.ru/points-engine/internal/server/middleware"
)

// App содержит все компоненты приложения.
type App struct {
	DB        *pgxpool.Pool
	Server    *http.Server
	Scheduler *jobs.Scheduler
	Relay     *outbox.Relay // nil — Kafka не настроена

	limiter  *middleware.RateLimiter
	redis    *redis.Client
	producer *kafka.Producer
	wg       sync.WaitGroup
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	if err := postgres.RunMigrations(cfg.MigrateDSN()); err != nil {
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	a := &App{DB: pool}

	// === 2. Необязательные зависимости ===
	var notifier notify.Notifier = notify.Nop{}
	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.AdminIDs, cfg.AppEnv == "development")
		if err != nil {
			// Без уведомлений движок работает, это не повод падать
			log.WithError(err).Warn("Уведомления в Telegram отключены")
		} else {
			notifier = tg
		}
	}

	var locker jobs.Locker
	if cfg.RedisAddr != "" {
		a.redis, err = redis.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKeyPrefix)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("ошибка подключения к Redis: %w", err)
		}
		locker = a.redis
	} else {
		log.Warn("REDIS_ADDR не задан: задачи cron выполняются без межинстансного лока")
	}

	if len(cfg.KafkaBrokers) > 0 {
		a.producer, err = kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaProduceTimeout)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Relay = outbox.NewRelay(pool, a.producer, cfg.KafkaTopicPrefix, cfg.OutboxBatchSize, cfg.OutboxPollInterval)
	} else {
		log.Warn("KAFKA_BROKERS не задан: события копятся в settlement_outbox")
	}

	var source battles.FixtureSource
	if cfg.BattleFixturesURL != "" {
		source = battles.NewFeedClient(cfg.BattleFixturesURL, cfg.BattleFixturesTimeout)
	}

	// === 3. Репозитории ===
	ledgerRepo := ledger.NewRepository(pool)
	revenueRepo := revenue.NewRepository(pool)
	abuseRepo := abuse.NewRepository(pool)
	battleRepo := battles.NewRepository(pool)
	redemptionRepo := redemptions.NewRepository(pool)
	operatorRepo := operators.NewRepository(pool)

	// === 4. Сервисы ===
	weights := abuse.Weights{
		Low:      cfg.AbuseWeightLow,
		Medium:   cfg.AbuseWeightMedium,
		High:     cfg.AbuseWeightHigh,
		Critical: cfg.AbuseWeightCritical,
	}
	ledgerService := ledger.NewService(ledgerRepo)
	revenueService := revenue.NewService(revenueRepo, notifier)
	abuseService := abuse.NewService(abuseRepo, weights, notifier)
	battleService := battles.NewService(battleRepo, source, notifier, battles.Options{
		FeePercent:      cfg.BattleFeePercent,
		DefaultEntryFee: cfg.BattleDefaultEntryFee,
	})
	redemptionService := redemptions.NewService(redemptionRepo, notifier, redemptions.Options{
		ConversionRate: cfg.RedemptionConversionRate,
		FeePercent:     cfg.RedemptionFeePercent,
		EvidenceSample: cfg.RedemptionEvidenceSample,
		EvidenceRecent: cfg.RedemptionEvidenceRecent,
		Weights:        weights,
	})
	operatorService := operators.NewService(operatorRepo, cfg)

	// === 5. HTTP ===
	a.limiter = middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	router := server.NewRouter(server.Handlers{
		Operators:   operators.NewHandler(operatorService),
		Battles:     battles.NewHandler(battleService),
		Redemptions: redemptions.NewHandler(redemptionService),
		Abuse:       abuse.NewHandler(abuseService),
		Ledger:      ledger.NewHandler(ledgerService),
		Revenue:     revenue.NewHandler(revenueService),
	}, a.limiter, pool.Ping)

	a.Server = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	// === 6. Планировщик задач ===
	// Без фида батлов задачам нечего делать
	if source != nil {
		a.Scheduler = jobs.NewScheduler(cfg, battleService, locker)
	} else {
		log.Warn("BATTLE_FIXTURES_URL не задан: генерация и авторасчёт батлов отключены")
	}

	return a, nil
}

// Start запускает фоновые компоненты и HTTP-сервер. Не блокирует.
func (a *App) Start(ctx context.Context, errCh chan<- error) error {
	if a.Scheduler != nil {
		if err := a.Scheduler.Start(ctx); err != nil {
			return fmt.Errorf("ошибка запуска планировщика: %w", err)
		}
	}
	if a.Relay != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.Relay.Run(ctx)
		}()
	}

	go func() {
		log.WithField("addr", a.Server.Addr).Info("HTTP-сервер запущен")
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return nil
}

// Shutdown останавливает сервер, дожидается фоновых задач и закрывает соединения.
// ctx ограничивает время ожидания активных запросов.
func (a *App) Shutdown(ctx context.Context) {
	if err := a.Server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("HTTP-сервер остановлен не штатно")
	}
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	// Relay завершится по отмене контекста Start
	a.wg.Wait()
	a.Close()
}

// Close закрывает внешние соединения.
func (a *App) Close() {
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.producer != nil {
		a.producer.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.WithError(err).Warn("Ошибка закрытия Redis")
		}
	}
	a.DB.Close()
}
