// Package ledger — service.go: проверки входных данных и логирование операций журнала.
package ledger

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/points-engine/internal/common"
)

// Store — хранилище журнала.
type Store interface {
	Balance(ctx context.Context, userID int64) (int64, error)
	Recent(ctx context.Context, userID int64, limit int) ([]*Entry, error)
	History(ctx context.Context, userID int64, page common.Page) ([]*Entry, int64, error)
	Adjust(ctx context.Context, userID, amount int64, reason string) (*Adjustment, error)
	CreditPurchase(ctx context.Context, p Purchase) (*Entry, error)
}

// Service — операции журнала для операторов и платёжного шлюза.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Balance возвращает баланс пользователя.
func (s *Service) Balance(ctx context.Context, userID int64) (int64, error) {
	if userID <= 0 {
		return 0, common.Validation("userId", "ожидается положительный ID")
	}
	return s.store.Balance(ctx, userID)
}

// History — постраничная история пользователя.
func (s *Service) History(ctx context.Context, userID int64, page common.Page) ([]*Entry, int64, error) {
	if userID <= 0 {
		return nil, 0, common.Validation("userId", "ожидается положительный ID")
	}
	return s.store.History(ctx, userID, common.NewPage(page.Page, page.Limit))
}

// Adjust — ручное начисление (amount > 0) или списание (amount < 0).
func (s *Service) Adjust(ctx context.Context, userID, amount int64, reason string, operatorID int64) (*Adjustment, error) {
	if userID <= 0 {
		return nil, common.Validation("userId", "ожидается положительный ID")
	}
	if amount == 0 {
		return nil, common.Validation("amount", "сумма не может быть нулевой")
	}
	if common.IsBlank(reason) {
		return nil, common.Required("reason")
	}

	adj, err := s.store.Adjust(ctx, userID, amount, reason)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"user_id":     userID,
		"amount":      amount,
		"balance":     adj.Balance,
		"operator_id": operatorID,
	}).Info("Ручная корректировка баланса")
	return adj, nil
}

// CreditPurchase — точка входа для подтверждённого платежа.
// Повтор того же reference — конфликт, очки второй раз не начисляются.
func (s *Service) CreditPurchase(ctx context.Context, p Purchase) (*Entry, error) {
	switch {
	case p.UserID <= 0:
		return nil, common.Validation("userId", "ожидается положительный ID")
	case p.Points <= 0:
		return nil, common.Validation("points", "количество очков должно быть > 0")
	case p.Revenue <= 0:
		return nil, common.Validation("revenue", "сумма выручки должна быть > 0")
	case p.Kind != "purchase" && p.Kind != "ton_purchase":
		return nil, common.Validation("kind", "ожидается purchase или ton_purchase")
	case common.IsBlank(p.Reference):
		return nil, common.Required("reference")
	}

	entry, err := s.store.CreditPurchase(ctx, p)
	if err != nil {
		if errors.Is(err, common.ErrDuplicateReference) {
			log.WithField("reference", p.Reference).Info("Повторный платёж проигнорирован")
		}
		return nil, err
	}
	log.WithFields(log.Fields{
		"user_id":   p.UserID,
		"points":    p.Points,
		"revenue":   p.Revenue,
		"kind":      p.Kind,
		"reference": p.Reference,
	}).Info("Покупка зачислена")
	return entry, nil
}
