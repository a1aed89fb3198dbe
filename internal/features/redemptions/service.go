// Package redemptions — service.go: подача заявок и их проверка операторами.
package redemptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/points-engine/internal/common"
	"serotonyl.ru/points-engine/internal/features/abuse"
	"serotonyl.ru/points-engine/internal/features/ledger"
	"serotonyl.ru/points-engine/internal/notify"
	"serotonyl.ru/points-engine/internal/outbox"
)

// AbuseType — тип записи о нарушении при пометке заявки.
const AbuseType = "redemption_flagged"

type Store interface {
	Create(ctx context.Context, n NewRedemption, check RequestCheck) (*Redemption, error)
	Get(ctx context.Context, id int64) (*Redemption, error)
	List(ctx context.Context, status *Status, page common.Page) ([]*Redemption, int64, error)
	LedgerSample(ctx context.Context, userID int64, limit int) ([]*ledger.Entry, error)
	Review(ctx context.Context, id, operatorID int64, plan ReviewPlan) (*Redemption, error)
}

// Options — параметры из конфига.
type Options struct {
	ConversionRate int64 // Очков за одну звезду
	FeePercent     int64 // Доля списанных очков, учитываемая как выручка
	EvidenceSample int   // Сколько записей журнала смотреть
	EvidenceRecent int   // Сколько из них показать целиком
	Weights        abuse.Weights
}

type Service struct {
	store    Store
	notifier notify.Notifier
	opts     Options
	now      func() time.Time
}

func NewService(store Store, notifier notify.Notifier, opts Options) *Service {
	return &Service{store: store, notifier: notifier, opts: opts, now: time.Now}
}

// Request — заявка пользователя на вывод stars звёзд.
// Очки списываются сразу, заявка уходит на проверку.
func (s *Service) Request(ctx context.Context, userID, stars int64) (*Redemption, error) {
	if userID <= 0 {
		return nil, common.Validation("userId", "ожидается положительный ID")
	}
	if stars <= 0 {
		return nil, common.Validation("stars", "должно быть положительным целым")
	}

	points := stars * s.opts.ConversionRate
	n := NewRedemption{
		UserID:         userID,
		Stars:          stars,
		ConversionRate: s.opts.ConversionRate,
		Points:         points,
		Fee:            common.PercentOf(points, s.opts.FeePercent),
	}
	now := s.now()
	red, err := s.store.Create(ctx, n, func(balance int64, ban *abuse.Ban) error {
		if ban.ActiveAt(now) {
			return common.ErrUserBanned
		}
		if balance < points {
			return common.ErrInsufficientBalance
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"redemption_id": red.ID,
		"user_id":       userID,
		"stars":         stars,
		"points":        points,
		"fee":           n.Fee,
	}).Info("Заявка на вывод создана")
	return s.withEvidence(ctx, red)
}

// Get — заявка со свежими доказательствами.
func (s *Service) Get(ctx context.Context, id int64) (*Redemption, error) {
	red, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withEvidence(ctx, red)
}

func (s *Service) List(ctx context.Context, status *Status, page common.Page) ([]*Redemption, int64, error) {
	if status != nil && !status.Valid() {
		return nil, 0, common.Validation("status", "ожидается pending, approved, completed или flagged")
	}
	list, total, err := s.store.List(ctx, status, common.NewPage(page.Page, page.Limit))
	if err != nil {
		return nil, 0, err
	}
	for i, red := range list {
		if list[i], err = s.withEvidence(ctx, red); err != nil {
			return nil, 0, err
		}
	}
	return list, total, nil
}

// Evidence собирает доказательства по журналу владельца заявки.
func (s *Service) Evidence(ctx context.Context, red *Redemption) (*Evidence, error) {
	entries, err := s.store.LedgerSample(ctx, red.UserID, s.opts.EvidenceSample)
	if err != nil {
		return nil, err
	}
	return BuildEvidence(entries, s.opts.EvidenceRecent), nil
}

func (s *Service) withEvidence(ctx context.Context, red *Redemption) (*Redemption, error) {
	ev, err := s.Evidence(ctx, red)
	if err != nil {
		return nil, err
	}
	red.Evidence = ev
	return red, nil
}

// Approve подтверждает заявку: pending → completed. Очки уже списаны при подаче.
func (s *Service) Approve(ctx context.Context, id int64, note string, operatorID int64) (*Redemption, error) {
	var notePtr *string
	if n := strings.TrimSpace(note); n != "" {
		notePtr = &n
	}

	red, err := s.store.Review(ctx, id, operatorID, func(r *Redemption) (*Decision, error) {
		if r.Status != StatusPending {
			return nil, common.ErrRedemptionNotPending
		}
		return &Decision{Status: StatusCompleted, Note: notePtr, Event: outbox.EventRedemptionApproved}, nil
	})
	if err != nil {
		log.WithField("redemption_id", id).WithError(err).Warn("Одобрение заявки не выполнено")
		return nil, err
	}

	log.WithFields(log.Fields{
		"redemption_id": id,
		"user_id":       red.UserID,
		"stars":         red.Stars,
		"operator_id":   operatorID,
	}).Info("Заявка на вывод одобрена")
	s.notifier.Notify(ctx, fmt.Sprintf("✅ Вывод #%d одобрен: %d %s пользователю %d",
		red.ID, red.Stars, common.PluralizeStars(red.Stars), red.UserID))
	return s.withEvidence(ctx, red)
}

// Flag помечает заявку как подозрительную и записывает нарушение владельцу.
// Завершённую или уже помеченную заявку пометить нельзя.
func (s *Service) Flag(ctx context.Context, id int64, reason string, severity abuse.Severity, operatorID int64) (*Redemption, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, common.Required("reason")
	}
	if severity != abuse.SeverityHigh && severity != abuse.SeverityCritical {
		return nil, common.Validation("severity", "ожидается high или critical")
	}

	red, err := s.store.Review(ctx, id, operatorID, func(r *Redemption) (*Decision, error) {
		if r.Status == StatusCompleted || r.Status == StatusFlagged {
			return nil, common.ErrRedemptionCompleted
		}
		return &Decision{
			Status:        StatusFlagged,
			FlaggedReason: &reason,
			Abuse: &abuse.NewLog{
				UserID:      r.UserID,
				Type:        AbuseType,
				Severity:    severity,
				Weight:      s.opts.Weights.Of(severity),
				Description: fmt.Sprintf("Заявка #%d: %s", r.ID, reason),
			},
			Event: outbox.EventRedemptionFlagged,
		}, nil
	})
	if err != nil {
		log.WithField("redemption_id", id).WithError(err).Warn("Пометка заявки не выполнена")
		return nil, err
	}

	log.WithFields(log.Fields{
		"redemption_id": id,
		"user_id":       red.UserID,
		"severity":      severity,
		"operator_id":   operatorID,
	}).Warn("Заявка на вывод помечена")
	s.notifier.Notify(ctx, fmt.Sprintf("🚩 Вывод #%d пользователя %d помечен (%s): %s",
		red.ID, red.UserID, severity, reason))
	return s.withEvidence(ctx, red)
}
