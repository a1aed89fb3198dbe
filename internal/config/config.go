// Package config загружает конфигурацию движка из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры,
// перед этим подхватывается .env (если он есть) через godotenv.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Database ---
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт ставим "postgres" (имя сервиса в docker-compose), а для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"engine"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"points_engine"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Europe/Moscow"`

	// --- HTTP ---
	HTTPAddr         string        `envconfig:"HTTP_ADDR" default:":8080"`
	HTTPReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	HTTPWriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	HTTPIdleTimeout  time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s"`

	// --- Operators (админы) ---
	AdminIDsRaw       string        `envconfig:"ADMIN_IDS" required:"true"`
	AdminIDs          []int64       `envconfig:"-"` // заполним вручную
	AdminPasswordHash string        `envconfig:"ADMIN_PASSWORD_HASH" required:"true"`
	AdminSessionTTL   time.Duration `envconfig:"ADMIN_SESSION_TTL" default:"24h"`

	// --- Battles ---
	// Процент от банка, который удерживается при расчёте батла.
	BattleFeePercent      int64         `envconfig:"BATTLE_FEE_PERCENT" default:"10"`
	BattleDefaultEntryFee int64         `envconfig:"BATTLE_DEFAULT_ENTRY_FEE" default:"50"`
	BattleFixturesURL     string        `envconfig:"BATTLE_FIXTURES_URL"`
	BattleFixturesTimeout time.Duration `envconfig:"BATTLE_FIXTURES_TIMEOUT" default:"15s"`
	BattleAutoResolveCron string        `envconfig:"BATTLE_AUTORESOLVE_CRON" default:"*/15 * * * *"`
	BattleGenerateCron    string        `envconfig:"BATTLE_GENERATE_CRON" default:"0 6 * * *"`

	// --- Redemptions ---
	RedemptionConversionRate int64 `envconfig:"REDEMPTION_CONVERSION_RATE" default:"10"`
	RedemptionFeePercent     int64 `envconfig:"REDEMPTION_FEE_PERCENT" default:"0"`
	RedemptionEvidenceSample int   `envconfig:"REDEMPTION_EVIDENCE_SAMPLE" default:"100"`
	RedemptionEvidenceRecent int   `envconfig:"REDEMPTION_EVIDENCE_RECENT" default:"10"`

	// --- Abuse ---
	AbuseWeightLow      int64 `envconfig:"ABUSE_WEIGHT_LOW" default:"1"`
	AbuseWeightMedium   int64 `envconfig:"ABUSE_WEIGHT_MEDIUM" default:"3"`
	AbuseWeightHigh     int64 `envconfig:"ABUSE_WEIGHT_HIGH" default:"5"`
	AbuseWeightCritical int64 `envconfig:"ABUSE_WEIGHT_CRITICAL" default:"10"`

	// --- Redis (необязателен: без него задачи cron не берут межинстансный лок) ---
	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`
	RedisKeyPrefix string        `envconfig:"REDIS_KEY_PREFIX" default:"engine:"`
	RedisLockTTL   time.Duration `envconfig:"REDIS_LOCK_TTL" default:"10m"`

	// --- Kafka (необязательна: без брокеров outbox копится в таблице) ---
	KafkaBrokersRaw     string        `envconfig:"KAFKA_BROKERS"`
	KafkaBrokers        []string      `envconfig:"-"`
	KafkaTopicPrefix    string        `envconfig:"KAFKA_TOPIC_PREFIX" default:"engine"`
	KafkaProduceTimeout time.Duration `envconfig:"KAFKA_PRODUCE_TIMEOUT" default:"10s"`
	OutboxPollInterval  time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"5s"`
	OutboxBatchSize     int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`

	// --- Telegram (уведомления операторам, необязательны) ---
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"120"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Feature Flags ---
	FeatureAutoResolveEnabled bool `envconfig:"FEATURE_AUTORESOLVE_ENABLED" default:"true"`
	FeatureGenerateEnabled    bool `envconfig:"FEATURE_GENERATE_ENABLED" default:"true"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// MigrateDSN — та же строка, но со схемой драйвера pgx/v5 для golang-migrate.
func (c *Config) MigrateDSN() string {
	return "pgx5" + strings.TrimPrefix(c.DatabaseDSN(), "postgres")
}

func (c *Config) Validate() error {
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if len(c.AdminIDs) == 0 {
		return fmt.Errorf("ADMIN_IDS не задан")
	}
	if c.BattleFeePercent < 0 || c.BattleFeePercent > 100 {
		return fmt.Errorf("BATTLE_FEE_PERCENT должен быть в диапазоне 0..100")
	}
	if c.BattleDefaultEntryFee <= 0 {
		return fmt.Errorf("BATTLE_DEFAULT_ENTRY_FEE должен быть > 0")
	}
	if c.RedemptionConversionRate <= 0 {
		return fmt.Errorf("REDEMPTION_CONVERSION_RATE должен быть > 0")
	}
	if c.RedemptionFeePercent < 0 || c.RedemptionFeePercent > 100 {
		return fmt.Errorf("REDEMPTION_FEE_PERCENT должен быть в диапазоне 0..100")
	}
	if c.RedemptionEvidenceSample <= 0 || c.RedemptionEvidenceRecent <= 0 {
		return fmt.Errorf("REDEMPTION_EVIDENCE_SAMPLE/REDEMPTION_EVIDENCE_RECENT должны быть > 0")
	}
	if c.RedemptionEvidenceRecent > c.RedemptionEvidenceSample {
		return fmt.Errorf("REDEMPTION_EVIDENCE_RECENT не может превышать REDEMPTION_EVIDENCE_SAMPLE")
	}
	if c.AbuseWeightLow <= 0 || c.AbuseWeightMedium <= 0 || c.AbuseWeightHigh <= 0 || c.AbuseWeightCritical <= 0 {
		return fmt.Errorf("веса ABUSE_WEIGHT_* должны быть > 0")
	}
	if c.RateLimitRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS должен быть > 0")
	}
	if c.OutboxBatchSize <= 0 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE должен быть > 0")
	}
	return nil
}

// Load читает .env (если есть) и переменные окружения, заполняет структуру Config.
func Load() (*Config, error) {
	// .env нужен только для локальной разработки, его отсутствие — не ошибка
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finish разбирает поля, которые envconfig не умеет заполнять сам.
func (c *Config) finish() error {
	ids, err := parseInt64CSV(c.AdminIDsRaw)
	if err != nil {
		return fmt.Errorf("ADMIN_IDS parse: %w", err)
	}
	c.AdminIDs = ids
	c.KafkaBrokers = parseStringCSV(c.KafkaBrokersRaw)
	return nil
}

// IsAdmin проверяет, входит ли оператор в ADMIN_IDS.
func (c *Config) IsAdmin(id int64) bool {
	for _, a := range c.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}

func parseInt64CSV(s string) ([]int64, error) {
	parts := parseStringCSV(s)
	if len(parts) == 0 {
		return nil, nil
	}
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseStringCSV(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
