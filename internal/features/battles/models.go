// Package battles реализует батлы: пари-мутюэль на исход матча.
// Участники платят одинаковую ставку, банк за вычетом комиссии
// поровну делится между угадавшими исход.
// models.go описывает батлы, участников и результаты расчёта.
package battles

import "time"

// Status — состояние батла.
type Status string

const (
	StatusOpen      Status = "open"      // Принимает участников
	StatusCompleted Status = "completed" // Рассчитан, результат известен
	StatusCancelled Status = "cancelled" // Отменён, ставки возвращены
)

func (s Status) Valid() bool {
	return s == StatusOpen || s == StatusCompleted || s == StatusCancelled
}

// Result — исход матча: победа первой команды, ничья, победа второй.
type Result string

const (
	ResultTeam1 Result = "1"
	ResultDraw  Result = "n"
	ResultTeam2 Result = "2"
)

func (r Result) Valid() bool {
	return r == ResultTeam1 || r == ResultDraw || r == ResultTeam2
}

// Outcome — чем закончился расчёт.
type Outcome string

const (
	OutcomeWinners   Outcome = "winners"    // Есть победители, банк поделён
	OutcomeNoWinners Outcome = "no_winners" // Никто не угадал, банк ушёл в комиссию
	OutcomeRefunded  Outcome = "refunded"   // Батл отменён, ставки возвращены
)

// ParticipantStatus — состояние ставки участника.
type ParticipantStatus string

const (
	ParticipantAccepted ParticipantStatus = "accepted"
	ParticipantWon      ParticipantStatus = "won"
	ParticipantLost     ParticipantStatus = "lost"
	ParticipantRefunded ParticipantStatus = "refunded"
)

// Battle — строка таблицы battles.
type Battle struct {
	ID               int64      `db:"id" json:"id"`
	ExternalID       *string    `db:"external_id" json:"externalId,omitempty"` // ID матча в фиде
	Name             string     `db:"name" json:"name"`
	Team1            string     `db:"team1" json:"team1"`
	Team2            string     `db:"team2" json:"team2"`
	EventDate        time.Time  `db:"event_date" json:"eventDate"`
	Sport            string     `db:"sport" json:"sport"`
	League           string     `db:"league" json:"league"`
	EntryFee         int64      `db:"entry_fee" json:"entryFee"`
	PotAmount        int64      `db:"pot_amount" json:"potAmount"` // Сумма всех ставок
	Status           Status     `db:"status" json:"status"`
	Result           *Result    `db:"result" json:"result"`
	Outcome          *Outcome   `db:"outcome" json:"outcome,omitempty"`
	WinnersCount     int        `db:"winners_count" json:"winnersCount"`
	PointsPerWinner  int64      `db:"points_per_winner" json:"pointsPerWinner"`
	FeeAmount        int64      `db:"fee_amount" json:"feeAmount"`
	CancelReason     *string    `db:"cancel_reason" json:"cancelReason,omitempty"`
	ParticipantCount int        `db:"participant_count" json:"participantCount"`
	SettledAt        *time.Time `db:"settled_at" json:"settledAt,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updatedAt"`
}

// Participant — ставка пользователя в батле.
type Participant struct {
	ID         int64             `db:"id" json:"id"`
	BattleID   int64             `db:"battle_id" json:"battleId"`
	UserID     int64             `db:"user_id" json:"userId"`
	Prediction Result            `db:"prediction" json:"prediction"`
	EntryFee   int64             `db:"entry_fee" json:"entryFee"`
	Status     ParticipantStatus `db:"status" json:"status"`
	Payout     int64             `db:"payout" json:"payout"`
	CreatedAt  time.Time         `db:"created_at" json:"createdAt"`
}

// Payout — начисление одному участнику при расчёте.
type Payout struct {
	ParticipantID int64
	UserID        int64
	Amount        int64
}

// Settlement — план расчёта: что начислить и что записать в выручку.
// Строится чистой функцией и применяется репозиторием в одной транзакции.
type Settlement struct {
	Outcome         Outcome  `json:"outcome"`
	Result          *Result  `json:"result,omitempty"`
	WinnersCount    int      `json:"winnersCount"`
	PointsPerWinner int64    `json:"pointsPerWinner"`
	FeeAmount       int64    `json:"feeAmount"` // Удержание вместе с остатком от деления
	Residual        int64    `json:"residual"`  // Остаток от деления, вошедший в FeeAmount
	Distributed     int64    `json:"distributed"`
	RefundedCount   int      `json:"refundedCount"`
	TotalRefunded   int64    `json:"totalRefunded"`
	CancelReason    string   `json:"cancelReason,omitempty"`
	Payouts         []Payout `json:"-"`
	Losers          []int64  `json:"-"` // ID участников, не угадавших исход
}

// BattleInput — поля для создания и обновления батла.
// При обновлении nil-поля не меняются.
type BattleInput struct {
	Name      *string
	Team1     *string
	Team2     *string
	EventDate *time.Time
	Sport     *string
	League    *string
	PotAmount *int64 // Размер ставки; при создании батла банк равен ставке одного участника
}

// Fixture — матч из внешнего фида.
type Fixture struct {
	ExternalID string    `json:"externalId"`
	Name       string    `json:"name"`
	Team1      string    `json:"team1"`
	Team2      string    `json:"team2"`
	EventDate  time.Time `json:"eventDate"`
	Sport      string    `json:"sport"`
	League     string    `json:"league"`
	EntryFee   int64     `json:"entryFee,omitempty"`
	Result     *Result   `json:"result,omitempty"` // Есть только у завершённых матчей
}

// ItemError — сбой одного элемента пакетной операции.
type ItemError struct {
	BattleID   int64  `json:"battleId,omitempty"`
	ExternalID string `json:"externalId,omitempty"`
	Error      string `json:"error"`
}

// GenerateReport — итог Generate.
type GenerateReport struct {
	Created int         `json:"created"`
	Skipped int         `json:"skipped"` // Матч уже есть
	Errors  []ItemError `json:"errors"`
}

// AutoResolveReport — итог AutoResolve.
type AutoResolveReport struct {
	Resolved         int         `json:"resolved"`
	Skipped          int         `json:"skipped"` // Результат неизвестен, нужен ручной расчёт
	ResolutionErrors []ItemError `json:"resolutionErrors"`
}
