// Package abuse — service.go: запись нарушений, баны и сводки для проверки.
package abuse

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/points-engine/internal/common"
	"serotonyl.ru/points-engine/internal/notify"
)

// Store — хранилище нарушений и банов.
type Store interface {
	Record(ctx context.Context, l NewLog) (*Log, error)
	Score(ctx context.Context, userID int64) (int64, error)
	Logs(ctx context.Context, userID int64, limit int) ([]*Log, error)
	Flagged(ctx context.Context, page common.Page) ([]*FlaggedUser, int64, error)
	GetBan(ctx context.Context, userID int64) (*Ban, error)
	SaveBan(ctx context.Context, b *Ban) (*Ban, error)
	ClearBan(ctx context.Context, userID, operatorID int64) (bool, error)
}

// Максимальный срок временного бана — год. Дольше — это перманентный бан.
const maxBanHours = 24 * 365

type Service struct {
	store    Store
	weights  Weights
	notifier notify.Notifier
	now      func() time.Time
}

func NewService(store Store, weights Weights, notifier notify.Notifier) *Service {
	return &Service{store: store, weights: weights, notifier: notifier, now: time.Now}
}

// Weight — вес нарушения заданной тяжести по текущему конфигу.
func (s *Service) Weight(sev Severity) int64 {
	return s.weights.Of(sev)
}

// RecordAbuse добавляет нарушение и тем самым поднимает оценку пользователя.
func (s *Service) RecordAbuse(ctx context.Context, userID int64, typ string, sev Severity, description string) (*Log, error) {
	if userID <= 0 {
		return nil, common.Validation("userId", "ожидается положительный ID")
	}
	if common.IsBlank(typ) {
		return nil, common.Required("type")
	}
	if !sev.Valid() {
		return nil, common.Validation("severity", "ожидается low, medium, high или critical")
	}

	l, err := s.store.Record(ctx, NewLog{
		UserID: userID, Type: typ, Severity: sev, Weight: s.weights.Of(sev), Description: description,
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"user_id":  userID,
		"type":     typ,
		"severity": sev,
		"weight":   l.Weight,
	}).Info("Нарушение записано")
	return l, nil
}

// Ban банит пользователя. hours == nil — перманентно, иначе до now+hours.
// Повторный бан перезаписывает прежний.
func (s *Service) Ban(ctx context.Context, userID int64, reason string, hours *int, operatorID int64) (*Ban, error) {
	if userID <= 0 {
		return nil, common.Validation("userId", "ожидается положительный ID")
	}
	if common.IsBlank(reason) {
		return nil, common.Required("reason")
	}
	if hours != nil && (*hours <= 0 || *hours > maxBanHours) {
		return nil, common.Validation("hours", fmt.Sprintf("срок бана от 1 до %d часов", maxBanHours))
	}

	now := s.now().UTC()
	b := &Ban{
		UserID:       userID,
		IsBanned:     true,
		BannedReason: &reason,
		BannedAt:     &now,
		IsPermanent:  hours == nil,
		BannedBy:     &operatorID,
	}
	if hours != nil {
		until := now.Add(time.Duration(*hours) * time.Hour)
		b.BannedUntil = &until
	}

	saved, err := s.store.SaveBan(ctx, b)
	if err != nil {
		return nil, err
	}

	fields := log.Fields{"user_id": userID, "operator_id": operatorID, "permanent": saved.IsPermanent}
	text := fmt.Sprintf("⛔ Пользователь %d забанен навсегда: %s", userID, reason)
	if saved.BannedUntil != nil {
		fields["until"] = saved.BannedUntil.Format(time.RFC3339)
		text = fmt.Sprintf("⛔ Пользователь %d забанен до %s: %s", userID, saved.BannedUntil.Format("02.01.2006 15:04"), reason)
	}
	log.WithFields(fields).Info("Пользователь забанен")
	s.notifier.Notify(ctx, text)
	return saved, nil
}

// Unban снимает бан. Снятие несуществующего бана — не ошибка.
func (s *Service) Unban(ctx context.Context, userID, operatorID int64) (*Ban, error) {
	if userID <= 0 {
		return nil, common.Validation("userId", "ожидается положительный ID")
	}
	changed, err := s.store.ClearBan(ctx, userID, operatorID)
	if err != nil {
		return nil, err
	}
	if changed {
		log.WithFields(log.Fields{"user_id": userID, "operator_id": operatorID}).Info("Бан снят")
		s.notifier.Notify(ctx, fmt.Sprintf("✅ С пользователя %d снят бан", userID))
	}
	return &Ban{UserID: userID}, nil
}

// Status — оценка, пометка и бан пользователя.
func (s *Service) Status(ctx context.Context, userID int64) (*Status, error) {
	if userID <= 0 {
		return nil, common.Validation("userId", "ожидается положительный ID")
	}
	score, err := s.store.Score(ctx, userID)
	if err != nil {
		return nil, err
	}
	b, err := s.store.GetBan(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Status{
		UserID:     userID,
		AbuseScore: score,
		Flagged:    score > 0,
		Banned:     b.ActiveAt(s.now()),
		Ban:        b,
	}, nil
}

// IsBanned — действует ли бан прямо сейчас.
func (s *Service) IsBanned(ctx context.Context, userID int64) (bool, error) {
	b, err := s.store.GetBan(ctx, userID)
	if err != nil {
		return false, err
	}
	return b.ActiveAt(s.now()), nil
}

func (s *Service) Flagged(ctx context.Context, page common.Page) ([]*FlaggedUser, int64, error) {
	return s.store.Flagged(ctx, common.NewPage(page.Page, page.Limit))
}

func (s *Service) Logs(ctx context.Context, userID int64, limit int) ([]*Log, error) {
	if limit <= 0 || limit > common.MaxPageLimit {
		limit = common.DefaultPageLimit
	}
	return s.store.Logs(ctx, userID, limit)
}
