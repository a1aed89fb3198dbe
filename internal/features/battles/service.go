// Package battles — service.go: жизненный цикл батла от создания до расчёта.
package battles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/points-engine/internal/common"
	"serotonyl.ru/points-engine/internal/features/abuse"
	"serotonyl.ru/points-engine/internal/notify"
)

// Store — хранилище батлов (Repository или фейк в тестах).
type Store interface {
	Create(ctx context.Context, b *Battle) error
	Get(ctx context.Context, id int64) (*Battle, error)
	List(ctx context.Context, status *Status, page common.Page) ([]*Battle, int64, error)
	DueForResolution(ctx context.Context, now time.Time) ([]*Battle, error)
	Update(ctx context.Context, id int64, fn func(b *Battle) error) (*Battle, error)
	Delete(ctx context.Context, id int64) error
	Enter(ctx context.Context, battleID, userID int64, prediction Result, check EntryCheck) (*Participant, error)
	Settle(ctx context.Context, battleID int64, plan SettlePlan) (*Battle, *Settlement, error)
	Participants(ctx context.Context, battleID int64) ([]*Participant, error)
}

// Options — параметры расчёта из конфига.
type Options struct {
	FeePercent      int64 // Удержание с банка при расчёте
	DefaultEntryFee int64 // Ставка для матчей фида без entryFee
}

type Service struct {
	store    Store
	source   FixtureSource // nil — фид не настроен
	notifier notify.Notifier
	opts     Options
	now      func() time.Time
}

func NewService(store Store, source FixtureSource, notifier notify.Notifier, opts Options) *Service {
	return &Service{store: store, source: source, notifier: notifier, opts: opts, now: time.Now}
}

// Create создаёт открытый батл. PotAmount задаёт ставку участника.
func (s *Service) Create(ctx context.Context, in BattleInput) (*Battle, error) {
	b := &Battle{Status: StatusOpen}
	if err := applyInput(b, in, true); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, b); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"battle_id": b.ID,
		"name":      b.Name,
		"entry_fee": b.EntryFee,
	}).Info("Батл создан")
	return b, nil
}

// Update меняет описание открытого батла. Ставку нельзя менять после первого участника.
func (s *Service) Update(ctx context.Context, id int64, in BattleInput) (*Battle, error) {
	// Проверяем вход до блокировки строки
	if err := applyInput(&Battle{}, in, false); err != nil {
		return nil, err
	}
	return s.store.Update(ctx, id, func(b *Battle) error {
		if b.Status != StatusOpen {
			return common.ErrBattleNotOpen
		}
		if in.PotAmount != nil && *in.PotAmount != b.EntryFee && b.ParticipantCount > 0 {
			return common.ErrEntryFeeLocked
		}
		return applyInput(b, in, false)
	})
}

// applyInput переносит поля в батл. full — все поля обязательны (создание).
func applyInput(b *Battle, in BattleInput, full bool) error {
	text := []struct {
		field string
		src   *string
		dst   *string
	}{
		{"name", in.Name, &b.Name},
		{"team1", in.Team1, &b.Team1},
		{"team2", in.Team2, &b.Team2},
		{"sport", in.Sport, &b.Sport},
		{"league", in.League, &b.League},
	}
	for _, f := range text {
		if f.src == nil {
			if full {
				return common.Required(f.field)
			}
			continue
		}
		v := strings.TrimSpace(*f.src)
		if v == "" {
			return common.Required(f.field)
		}
		*f.dst = v
	}

	switch {
	case in.EventDate != nil && in.EventDate.IsZero():
		return common.Required("eventDate")
	case in.EventDate != nil:
		b.EventDate = in.EventDate.UTC()
	case full:
		return common.Required("eventDate")
	}

	switch {
	case in.PotAmount != nil && *in.PotAmount <= 0:
		return common.Validation("potAmount", "должно быть положительным целым")
	case in.PotAmount != nil:
		b.EntryFee = *in.PotAmount
	case full:
		return common.Required("potAmount")
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Battle, error) {
	return s.store.Get(ctx, id)
}

// Participants — ставки батла с их итогом после расчёта.
func (s *Service) Participants(ctx context.Context, id int64) ([]*Participant, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Participants(ctx, id)
}

func (s *Service) List(ctx context.Context, status *Status, page common.Page) ([]*Battle, int64, error) {
	if status != nil && !status.Valid() {
		return nil, 0, common.Validation("status", "ожидается open, completed или cancelled")
	}
	return s.store.List(ctx, status, common.NewPage(page.Page, page.Limit))
}

// Delete удаляет батл без участников. С участниками — только отмена.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	log.WithField("battle_id", id).Info("Батл удалён")
	return nil
}

// Join записывает пользователя в батл с прогнозом.
func (s *Service) Join(ctx context.Context, battleID, userID int64, prediction Result) (*Participant, error) {
	if userID <= 0 {
		return nil, common.Validation("userId", "ожидается положительный ID")
	}
	if !prediction.Valid() {
		return nil, common.Validation("prediction", "ожидается 1, n или 2")
	}

	now := s.now()
	p, err := s.store.Enter(ctx, battleID, userID, prediction, func(b *Battle, balance int64, ban *abuse.Ban) error {
		switch {
		case b.Status != StatusOpen:
			return common.ErrBattleNotOpen
		case !b.EventDate.After(now):
			return common.ErrBattleStarted
		case ban.ActiveAt(now):
			return common.ErrUserBanned
		case balance < b.EntryFee:
			return common.ErrInsufficientBalance
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"battle_id":  battleID,
		"user_id":    userID,
		"prediction": prediction,
		"entry_fee":  p.EntryFee,
	}).Info("Участник вошёл в батл")
	return p, nil
}

// Resolve рассчитывает батл по результату. Второй расчёт того же батла — конфликт.
func (s *Service) Resolve(ctx context.Context, id int64, result Result, operatorID int64) (*Settlement, error) {
	if !result.Valid() {
		return nil, common.Validation("result", "ожидается 1, n или 2")
	}

	b, settlement, err := s.store.Settle(ctx, id, func(b *Battle, ps []*Participant) (*Settlement, error) {
		return PlanResolution(b, ps, result, s.opts.FeePercent)
	})
	if err != nil {
		log.WithFields(log.Fields{"battle_id": id, "result": result}).WithError(err).Warn("Расчёт батла не выполнен")
		return nil, err
	}

	fields := log.Fields{
		"battle_id":         id,
		"result":            result,
		"outcome":           settlement.Outcome,
		"pot":               b.PotAmount,
		"winners":           settlement.WinnersCount,
		"points_per_winner": settlement.PointsPerWinner,
		"fee":               settlement.FeeAmount,
		"operator_id":       operatorID,
	}
	if settlement.Outcome == OutcomeNoWinners {
		log.WithFields(fields).Warn("Батл рассчитан без победителей, банк удержан")
		s.notifier.Notify(ctx, fmt.Sprintf("⚠️ Батл «%s»: никто не угадал исход %s, банк %s удержан",
			b.Name, result, common.FormatPoints(b.PotAmount)))
	} else {
		log.WithFields(fields).Info("Батл рассчитан")
		s.notifier.Notify(ctx, fmt.Sprintf("🏆 Батл «%s» рассчитан: %d победителей по %s",
			b.Name, settlement.WinnersCount, common.FormatPoints(settlement.PointsPerWinner)))
	}
	return settlement, nil
}

// Cancel отменяет батл и возвращает ставки. Выручку не трогает.
func (s *Service) Cancel(ctx context.Context, id int64, reason string, operatorID int64) (*Settlement, error) {
	if common.IsBlank(reason) {
		return nil, common.Required("reason")
	}

	b, settlement, err := s.store.Settle(ctx, id, func(b *Battle, ps []*Participant) (*Settlement, error) {
		return PlanCancellation(b, ps, reason)
	})
	if err != nil {
		log.WithField("battle_id", id).WithError(err).Warn("Отмена батла не выполнена")
		return nil, err
	}

	log.WithFields(log.Fields{
		"battle_id":      id,
		"refunded":       settlement.RefundedCount,
		"total_refunded": settlement.TotalRefunded,
		"operator_id":    operatorID,
	}).Info("Батл отменён")
	s.notifier.Notify(ctx, fmt.Sprintf("↩️ Батл «%s» отменён (%s): возвращено %s %d участникам",
		b.Name, reason, common.FormatPoints(settlement.TotalRefunded), settlement.RefundedCount))
	return settlement, nil
}

// Generate создаёт батлы по матчам фида. Уже существующие матчи пропускаются,
// сбой одного матча не прерывает остальные.
func (s *Service) Generate(ctx context.Context) (*GenerateReport, error) {
	if s.source == nil {
		return nil, common.Conflict("фид матчей не настроен (BATTLE_FIXTURES_URL)")
	}
	fixtures, err := s.source.Fixtures(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки фида: %w", err)
	}

	report := &GenerateReport{Errors: []ItemError{}}
	now := s.now()
	for _, f := range fixtures {
		if f.Result != nil || !f.EventDate.After(now) {
			continue
		}
		if common.IsBlank(f.ExternalID) {
			report.Errors = append(report.Errors, ItemError{Error: "у матча нет externalId"})
			continue
		}

		fee := f.EntryFee
		if fee <= 0 {
			fee = s.opts.DefaultEntryFee
		}
		name := f.Name
		if common.IsBlank(name) {
			name = f.Team1 + " — " + f.Team2
		}
		externalID := f.ExternalID
		in := BattleInput{
			Name: &name, Team1: &f.Team1, Team2: &f.Team2, EventDate: &f.EventDate,
			Sport: &f.Sport, League: &f.League, PotAmount: &fee,
		}

		b := &Battle{Status: StatusOpen, ExternalID: &externalID}
		if err := applyInput(b, in, true); err != nil {
			report.Errors = append(report.Errors, ItemError{ExternalID: f.ExternalID, Error: err.Error()})
			continue
		}
		if err := s.store.Create(ctx, b); err != nil {
			if errors.Is(err, ErrDuplicateFixture) {
				report.Skipped++
				continue
			}
			log.WithField("external_id", f.ExternalID).WithError(err).Error("Не удалось создать батл из фида")
			report.Errors = append(report.Errors, ItemError{ExternalID: f.ExternalID, Error: err.Error()})
			continue
		}
		report.Created++
	}

	log.WithFields(log.Fields{
		"created": report.Created,
		"skipped": report.Skipped,
		"errors":  len(report.Errors),
	}).Info("Генерация батлов завершена")
	return report, nil
}

// AutoResolve рассчитывает прошедшие батлы, для которых фид знает итог.
// Каждый батл рассчитывается своей транзакцией; ошибка одного не мешает другим.
func (s *Service) AutoResolve(ctx context.Context) (*AutoResolveReport, error) {
	if s.source == nil {
		return nil, common.Conflict("фид матчей не настроен (BATTLE_FIXTURES_URL)")
	}
	due, err := s.store.DueForResolution(ctx, s.now())
	if err != nil {
		return nil, err
	}
	report := &AutoResolveReport{ResolutionErrors: []ItemError{}}
	if len(due) == 0 {
		return report, nil
	}

	fixtures, err := s.source.Fixtures(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки фида: %w", err)
	}
	results := resultsByExternalID(fixtures)

	for _, b := range due {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if b.ExternalID == nil {
			report.Skipped++
			continue
		}
		result, ok := results[*b.ExternalID]
		if !ok {
			report.Skipped++
			continue
		}

		if _, err := s.Resolve(ctx, b.ID, result, 0); err != nil {
			// Батл успели рассчитать или отменить вручную — это не сбой
			if errors.Is(err, common.ErrBattleNotOpen) || errors.Is(err, common.ErrBattleNotFound) {
				report.Skipped++
				continue
			}
			report.ResolutionErrors = append(report.ResolutionErrors, ItemError{
				BattleID: b.ID, ExternalID: *b.ExternalID, Error: err.Error(),
			})
			continue
		}
		report.Resolved++
	}

	log.WithFields(log.Fields{
		"resolved": report.Resolved,
		"skipped":  report.Skipped,
		"errors":   len(report.ResolutionErrors),
	}).Info("Авторасчёт батлов завершён")
	return report, nil
}
