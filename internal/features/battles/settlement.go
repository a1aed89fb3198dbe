// Package battles — settlement.go: расчёт батла без обращения к БД.
// Функции получают заблокированный батл и его участников и возвращают план,
// который репозиторий применяет одной транзакцией.
package battles

import (
	"serotonyl.ru/points-engine/internal/common"
)

// PlanResolution делит банк между угадавшими result.
//
// Правила:
//   - комиссия = floor(банк * feePercent / 100)
//   - выплата = floor((банк - комиссия) / победители), поровну каждому
//   - остаток от деления добавляется к комиссии, дробных очков нет
//   - если никто не угадал, весь банк уходит в комиссию, начислений нет
func PlanResolution(b *Battle, participants []*Participant, result Result, feePercent int64) (*Settlement, error) {
	if b.Status != StatusOpen {
		return nil, common.ErrBattleNotOpen
	}
	if !result.Valid() {
		return nil, common.Validation("result", "ожидается 1, n или 2")
	}

	var winners []*Participant
	var losers []int64
	for _, p := range participants {
		if p.Status != ParticipantAccepted {
			continue
		}
		if p.Prediction == result {
			winners = append(winners, p)
		} else {
			losers = append(losers, p.ID)
		}
	}

	pot := b.PotAmount
	s := &Settlement{Result: &result, Losers: losers}

	if len(winners) == 0 {
		s.Outcome = OutcomeNoWinners
		s.FeeAmount = pot
		return s, nil
	}

	fee := common.PercentOf(pot, feePercent)
	distributable := pot - fee
	per := distributable / int64(len(winners))
	residual := distributable - per*int64(len(winners))

	s.Outcome = OutcomeWinners
	s.WinnersCount = len(winners)
	s.PointsPerWinner = per
	s.Residual = residual
	s.FeeAmount = fee + residual
	s.Distributed = per * int64(len(winners))
	s.Payouts = make([]Payout, 0, len(winners))
	for _, w := range winners {
		s.Payouts = append(s.Payouts, Payout{ParticipantID: w.ID, UserID: w.UserID, Amount: per})
	}
	return s, nil
}

// PlanCancellation возвращает каждому участнику его ставку. Комиссии нет.
func PlanCancellation(b *Battle, participants []*Participant, reason string) (*Settlement, error) {
	if b.Status != StatusOpen {
		return nil, common.ErrBattleNotOpen
	}

	s := &Settlement{Outcome: OutcomeRefunded, CancelReason: reason}
	for _, p := range participants {
		if p.Status != ParticipantAccepted {
			continue
		}
		s.Payouts = append(s.Payouts, Payout{ParticipantID: p.ID, UserID: p.UserID, Amount: p.EntryFee})
		s.RefundedCount++
		s.TotalRefunded += p.EntryFee
	}
	return s, nil
}
