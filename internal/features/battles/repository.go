// Package battles — repository.go работает с таблицами battles и battle_participants.
// Все изменения батла идут под SELECT ... FOR UPDATE его строки: два
// одновременных расчёта выстраиваются в очередь, и второй видит уже
// не open-статус.
package battles

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/points-engine/internal/common"
	"serotonyl.ru/points-engine/internal/db/postgres"
	"serotonyl.ru/points-engine/internal/features/abuse"
	"serotonyl.ru/points-engine/internal/features/ledger"
	"serotonyl.ru/points-engine/internal/features/revenue"
	"serotonyl.ru/points-engine/internal/outbox"
)

// ErrDuplicateFixture — батл для этого матча фида уже создан.
var ErrDuplicateFixture = errors.New("батл для матча уже существует")

// EntryCheck проверяет, можно ли пользователю войти в батл.
type EntryCheck func(b *Battle, balance int64, ban *abuse.Ban) error

// SettlePlan строит расчёт по заблокированному батлу.
type SettlePlan func(b *Battle, participants []*Participant) (*Settlement, error)

const battleColumns = `
	id, external_id, name, team1, team2, event_date, sport, league,
	entry_fee, pot_amount, status, result, outcome, winners_count,
	points_per_winner, fee_amount, cancel_reason, participant_count,
	settled_at, created_at, updated_at`

// Repository работает с батлами.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create вставляет батл и заполняет ID и временные метки.
func (r *Repository) Create(ctx context.Context, b *Battle) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO battles (external_id, name, team1, team2, event_date, sport, league, entry_fee, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'open')
		RETURNING id, pot_amount, status, created_at, updated_at
	`, b.ExternalID, b.Name, b.Team1, b.Team2, b.EventDate, b.Sport, b.League, b.EntryFee,
	).Scan(&b.ID, &b.PotAmount, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return ErrDuplicateFixture
		}
		return fmt.Errorf("ошибка создания батла: %w", err)
	}
	return nil
}

// Get возвращает батл по ID.
func (r *Repository) Get(ctx context.Context, id int64) (*Battle, error) {
	b, err := scanBattle(r.db.QueryRow(ctx, `SELECT `+battleColumns+` FROM battles WHERE id = $1`, id))
	if postgres.IsNoRows(err) {
		return nil, common.ErrBattleNotFound
	}
	return b, err
}

// List — страница батлов, ближайшие события сверху.
func (r *Repository) List(ctx context.Context, status *Status, page common.Page) ([]*Battle, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM battles WHERE $1::text IS NULL OR status = $1
	`, status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта батлов: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+battleColumns+`
		FROM battles
		WHERE $1::text IS NULL OR status = $1
		ORDER BY event_date DESC, id DESC
		LIMIT $2 OFFSET $3
	`, status, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения батлов: %w", err)
	}
	defer rows.Close()

	var out []*Battle
	for rows.Next() {
		b, err := scanBattle(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

// DueForResolution — открытые батлы, чьё событие уже прошло.
func (r *Repository) DueForResolution(ctx context.Context, now time.Time) ([]*Battle, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+battleColumns+`
		FROM battles
		WHERE status = 'open' AND event_date <= $1
		ORDER BY event_date, id
	`, now)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки батлов к расчёту: %w", err)
	}
	defer rows.Close()

	var out []*Battle
	for rows.Next() {
		b, err := scanBattle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Update блокирует батл, даёт fn изменить поля и сохраняет результат.
func (r *Repository) Update(ctx context.Context, id int64, fn func(b *Battle) error) (*Battle, error) {
	var out *Battle
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		b, err := lockBattle(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
		err = tx.QueryRow(ctx, `
			UPDATE battles
			SET name = $2, team1 = $3, team2 = $4, event_date = $5, sport = $6,
			    league = $7, entry_fee = $8, updated_at = NOW()
			WHERE id = $1
			RETURNING updated_at
		`, b.ID, b.Name, b.Team1, b.Team2, b.EventDate, b.Sport, b.League, b.EntryFee).Scan(&b.UpdatedAt)
		if err != nil {
			return fmt.Errorf("ошибка обновления батла: %w", err)
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete удаляет батл без участников.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	return postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		b, err := lockBattle(ctx, tx, id)
		if err != nil {
			return err
		}
		if b.ParticipantCount > 0 {
			return common.ErrBattleHasParticipants
		}
		if _, err := tx.Exec(ctx, `DELETE FROM battles WHERE id = $1`, id); err != nil {
			return fmt.Errorf("ошибка удаления батла: %w", err)
		}
		return nil
	})
}

// Enter записывает участника: списывает ставку, увеличивает банк и счётчик.
// Порядок локов: строка батла, потом счёт пользователя.
func (r *Repository) Enter(ctx context.Context, battleID, userID int64, prediction Result, check EntryCheck) (*Participant, error) {
	var out *Participant
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		b, err := lockBattle(ctx, tx, battleID)
		if err != nil {
			return err
		}
		if err := ledger.LockUser(ctx, tx, userID); err != nil {
			return err
		}
		balance, err := ledger.Balance(ctx, tx, userID)
		if err != nil {
			return err
		}
		ban, err := abuse.LoadBan(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := check(b, balance, ban); err != nil {
			return err
		}

		p := &Participant{BattleID: b.ID, UserID: userID, Prediction: prediction, EntryFee: b.EntryFee, Status: ParticipantAccepted}
		err = tx.QueryRow(ctx, `
			INSERT INTO battle_participants (battle_id, user_id, prediction, entry_fee)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at
		`, b.ID, userID, prediction, b.EntryFee).Scan(&p.ID, &p.CreatedAt)
		if err != nil {
			if postgres.IsUniqueViolation(err) {
				return common.ErrAlreadyJoined
			}
			return fmt.Errorf("ошибка записи участника: %w", err)
		}

		_, err = ledger.Append(ctx, tx, ledger.NewEntry{
			UserID:      userID,
			Type:        ledger.TypeBattleEntry,
			Amount:      -b.EntryFee,
			Description: fmt.Sprintf("Ставка в батле «%s»", b.Name),
		})
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE battles
			SET participant_count = participant_count + 1, pot_amount = pot_amount + entry_fee, updated_at = NOW()
			WHERE id = $1
		`, b.ID); err != nil {
			return fmt.Errorf("ошибка обновления банка: %w", err)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Settle рассчитывает или отменяет батл одной транзакцией:
// блокировка строки → план → записи журнала и выручки → смена статуса → событие.
func (r *Repository) Settle(ctx context.Context, battleID int64, plan SettlePlan) (*Battle, *Settlement, error) {
	var outBattle *Battle
	var outSettlement *Settlement
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		b, err := lockBattle(ctx, tx, battleID)
		if err != nil {
			return err
		}
		participants, err := loadParticipants(ctx, tx, battleID)
		if err != nil {
			return err
		}
		s, err := plan(b, participants)
		if err != nil {
			return err
		}

		if s.Outcome == OutcomeRefunded {
			err = applyCancellation(ctx, tx, b, s)
		} else {
			err = applyResolution(ctx, tx, b, s)
		}
		if err != nil {
			return err
		}

		event := outbox.EventBattleResolved
		if s.Outcome == OutcomeRefunded {
			event = outbox.EventBattleCancelled
		}
		if err := outbox.Enqueue(ctx, tx, event, strconv.FormatInt(b.ID, 10), map[string]any{
			"battleId":   b.ID,
			"settlement": s,
			"potAmount":  b.PotAmount,
		}); err != nil {
			return err
		}

		outBattle, err = lockBattle(ctx, tx, battleID)
		if err != nil {
			return err
		}
		outSettlement = s
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return outBattle, outSettlement, nil
}

func applyResolution(ctx context.Context, tx pgx.Tx, b *Battle, s *Settlement) error {
	for _, p := range s.Payouts {
		if p.Amount > 0 {
			if _, err := ledger.Append(ctx, tx, ledger.NewEntry{
				UserID:      p.UserID,
				Type:        ledger.TypeBattlePayout,
				Amount:      p.Amount,
				Description: fmt.Sprintf("Выигрыш в батле «%s»", b.Name),
			}); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `
			UPDATE battle_participants SET status = 'won', payout = $2 WHERE id = $1
		`, p.ParticipantID, p.Amount); err != nil {
			return fmt.Errorf("ошибка обновления победителя: %w", err)
		}
	}
	if len(s.Losers) > 0 {
		if _, err := tx.Exec(ctx, `
			UPDATE battle_participants SET status = 'lost' WHERE id = ANY($1)
		`, s.Losers); err != nil {
			return fmt.Errorf("ошибка обновления проигравших: %w", err)
		}
	}

	if _, err := revenue.Insert(ctx, tx, revenue.NewEntry{
		Type:   revenue.TypeBattleFee,
		Amount: s.FeeAmount,
		Metadata: map[string]any{
			"battleId":     b.ID,
			"outcome":      s.Outcome,
			"potAmount":    b.PotAmount,
			"residual":     s.Residual,
			"winnersCount": s.WinnersCount,
		},
	}); err != nil {
		return err
	}

	_, err := tx.Exec(ctx, `
		UPDATE battles
		SET status = 'completed', result = $2, outcome = $3, winners_count = $4,
		    points_per_winner = $5, fee_amount = $6, settled_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'open'
	`, b.ID, s.Result, s.Outcome, s.WinnersCount, s.PointsPerWinner, s.FeeAmount)
	if err != nil {
		return fmt.Errorf("ошибка фиксации результата: %w", err)
	}
	return nil
}

func applyCancellation(ctx context.Context, tx pgx.Tx, b *Battle, s *Settlement) error {
	for _, p := range s.Payouts {
		if _, err := ledger.Append(ctx, tx, ledger.NewEntry{
			UserID:      p.UserID,
			Type:        ledger.TypeBattleRefund,
			Amount:      p.Amount,
			Description: fmt.Sprintf("Возврат ставки: батл «%s» отменён", b.Name),
		}); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE battle_participants SET status = 'refunded', payout = $2 WHERE id = $1
		`, p.ParticipantID, p.Amount); err != nil {
			return fmt.Errorf("ошибка обновления участника: %w", err)
		}
	}

	_, err := tx.Exec(ctx, `
		UPDATE battles
		SET status = 'cancelled', outcome = 'refunded', cancel_reason = $2,
		    settled_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'open'
	`, b.ID, s.CancelReason)
	if err != nil {
		return fmt.Errorf("ошибка отмены батла: %w", err)
	}
	return nil
}

// Participants — участники батла.
func (r *Repository) Participants(ctx context.Context, battleID int64) ([]*Participant, error) {
	return loadParticipants(ctx, r.db, battleID)
}

func lockBattle(ctx context.Context, tx pgx.Tx, id int64) (*Battle, error) {
	b, err := scanBattle(tx.QueryRow(ctx, `SELECT `+battleColumns+` FROM battles WHERE id = $1 FOR UPDATE`, id))
	if postgres.IsNoRows(err) {
		return nil, common.ErrBattleNotFound
	}
	return b, err
}

func loadParticipants(ctx context.Context, q postgres.Querier, battleID int64) ([]*Participant, error) {
	rows, err := q.Query(ctx, `
		SELECT id, battle_id, user_id, prediction, entry_fee, status, payout, created_at
		FROM battle_participants
		WHERE battle_id = $1
		ORDER BY id
	`, battleID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения участников: %w", err)
	}
	defer rows.Close()

	var out []*Participant
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.ID, &p.BattleID, &p.UserID, &p.Prediction, &p.EntryFee, &p.Status, &p.Payout, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования участника: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func scanBattle(row pgx.Row) (*Battle, error) {
	var b Battle
	err := row.Scan(
		&b.ID, &b.ExternalID, &b.Name, &b.Team1, &b.Team2, &b.EventDate, &b.Sport, &b.League,
		&b.EntryFee, &b.PotAmount, &b.Status, &b.Result, &b.Outcome, &b.WinnersCount,
		&b.PointsPerWinner, &b.FeeAmount, &b.CancelReason, &b.ParticipantCount,
		&b.SettledAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("ошибка сканирования батла: %w", err)
	}
	return &b, nil
}
