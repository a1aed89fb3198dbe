// Package operators — service.go: проверка пароля Argon2id и выдача сессий.
package operators

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"serotonyl.ru/points-engine/internal/common"
	"serotonyl.ru/points-engine/internal/config"
)

type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	ActiveSession(ctx context.Context, token string, now time.Time) (*Session, error)
	Deactivate(ctx context.Context, token string) error
	LogAttempt(ctx context.Context, operatorID int64, success bool) error
	FailedAttempts(ctx context.Context, operatorID int64, since time.Time) (int, error)
}

type Service struct {
	store Store
	cfg   *config.Config
	now   func() time.Time
}

func NewService(store Store, cfg *config.Config) *Service {
	return &Service{store: store, cfg: cfg, now: time.Now}
}

// Login проверяет пароль оператора и открывает сессию.
// Защита от перебора: 3 неудачные попытки за час блокируют вход на час.
func (s *Service) Login(ctx context.Context, operatorID int64, password string) (*Session, error) {
	if !s.cfg.IsAdmin(operatorID) {
		log.WithField("operator_id", operatorID).Warn("Попытка входа не оператором")
		return nil, common.ErrNotAdmin
	}

	now := s.now()
	attempts, err := s.store.FailedAttempts(ctx, operatorID, now.Add(-AttemptWindow))
	if err != nil {
		return nil, err
	}
	if attempts >= MaxFailedAttempts {
		return nil, common.ErrTooManyAttempts
	}

	match := verifyArgon2id(password, s.cfg.AdminPasswordHash)
	if err := s.store.LogAttempt(ctx, operatorID, match); err != nil {
		log.WithError(err).Warn("Не удалось записать попытку входа")
	}
	if !match {
		log.WithFields(log.Fields{"operator_id": operatorID, "failed": attempts + 1}).Warn("Неверный пароль оператора")
		return nil, common.ErrWrongPassword
	}

	token, err := generateSecureToken()
	if err != nil {
		return nil, err
	}
	session := &Session{
		OperatorID: operatorID,
		Token:      token,
		ExpiresAt:  now.Add(s.cfg.AdminSessionTTL),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	log.WithField("operator_id", operatorID).Info("Оператор вошёл")
	return session, nil
}

// Authenticate возвращает ID оператора по токену живой сессии.
func (s *Service) Authenticate(ctx context.Context, token string) (int64, error) {
	if common.IsBlank(token) {
		return 0, common.ErrSessionExpired
	}
	session, err := s.store.ActiveSession(ctx, token, s.now())
	if err != nil {
		return 0, err
	}
	// Оператора могли убрать из ADMIN_IDS после входа
	if !s.cfg.IsAdmin(session.OperatorID) {
		return 0, common.ErrNotAdmin
	}
	return session.OperatorID, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	if common.IsBlank(token) {
		return nil
	}
	return s.store.Deactivate(ctx, token)
}

// Параметры Argon2id для новых хешей.
const (
	argonMemory      uint32 = 64 * 1024
	argonIterations  uint32 = 3
	argonParallelism uint8  = 2
	argonKeyLength   uint32 = 32
	argonSaltLength         = 16
)

// HashPassword считает хеш для ADMIN_PASSWORD_HASH.
// Формат: $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("ошибка генерации соли: %w", err)
	}
	return encodeArgon2id(password, salt, argonMemory, argonIterations, argonParallelism), nil
}

func encodeArgon2id(password string, salt []byte, memory, iterations uint32, parallelism uint8) string {
	hash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, argonKeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, memory, iterations, parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))
}

// verifyArgon2id сверяет пароль с хешем в формате HashPassword.
func verifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expected)))
	// Сравнение в постоянном времени
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

// generateSecureToken — 32 случайных байта в base64url.
func generateSecureToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("ошибка генерации токена: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
