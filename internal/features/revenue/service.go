// Package revenue — service.go проверяет входные данные операций с выручкой.
package revenue

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/points-engine/internal/common"
	"serotonyl.ru/points-engine/internal/notify"
)

// Store — хранилище выручки (Repository или фейк в тестах).
type Store interface {
	Record(ctx context.Context, e NewEntry) (*Entry, error)
	Totals(ctx context.Context) (Totals, error)
	History(ctx context.Context, f Filter) ([]*Entry, int64, error)
	Withdraw(ctx context.Context, amount int64, note, key string, operatorID int64) (*Withdrawal, error)
}

type Service struct {
	store    Store
	notifier notify.Notifier
}

func NewService(store Store, notifier notify.Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// Record пишет поступление от внешних потоков (покупки).
// Выводы через Record не проходят — только через Withdraw.
func (s *Service) Record(ctx context.Context, t Type, amount int64, metadata map[string]any) (*Entry, error) {
	if !t.Valid() || t == TypeWithdrawal {
		return nil, common.Validation("type", "недопустимый тип поступления")
	}
	if amount <= 0 {
		return nil, common.Validation("amount", "сумма должна быть > 0")
	}
	return s.store.Record(ctx, NewEntry{Type: t, Amount: amount, Metadata: metadata})
}

// Withdraw выводит выручку. Частичных выводов нет: либо вся сумма, либо ошибка.
func (s *Service) Withdraw(ctx context.Context, amount int64, note, key string, operatorID int64) (*Withdrawal, error) {
	if amount <= 0 {
		return nil, common.Validation("amount", "сумма должна быть > 0")
	}

	w, err := s.store.Withdraw(ctx, amount, note, key, operatorID)
	if err != nil {
		log.WithFields(log.Fields{
			"amount":      amount,
			"operator_id": operatorID,
		}).WithError(err).Warn("Вывод выручки отклонён")
		return nil, err
	}
	if w.Replay {
		log.WithField("idempotency_key", key).Info("Повтор вывода выручки, возвращаем прежний результат")
		return w, nil
	}

	log.WithFields(log.Fields{
		"entry_id":    w.Entry.ID,
		"amount":      amount,
		"available":   w.Totals.AvailableRevenue,
		"operator_id": operatorID,
	}).Info("Выручка выведена")
	s.notifier.Notify(ctx, fmt.Sprintf("💸 Выведено %s выручки, доступно %s",
		common.FormatNumber(amount), common.FormatNumber(w.Totals.AvailableRevenue)))
	return w, nil
}

// Summarize — итоги и страница истории, опционально по одному типу.
func (s *Service) Summarize(ctx context.Context, f Filter) (*Summary, error) {
	if f.Type != nil && !f.Type.Valid() {
		return nil, common.Validation("type", "неизвестный тип выручки")
	}
	f.Page = common.NewPage(f.Page.Page, f.Page.Limit)

	totals, err := s.store.Totals(ctx)
	if err != nil {
		return nil, err
	}
	history, total, err := s.store.History(ctx, f)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []*Entry{}
	}
	return &Summary{Totals: totals, History: history, Total: total, Page: f.Page}, nil
}
