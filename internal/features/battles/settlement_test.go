package battles

import (
	"testing"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/points-engine/internal/common"
)

// makeBattle собирает открытый батл, где predictions[i] — прогноз i-го участника.
func makeBattle(entryFee int64, predictions ...Result) (*Battle, []*Participant) {
	b := &Battle{ID: 1, Status: StatusOpen, EntryFee: entryFee}
	var ps []*Participant
	for i, pred := range predictions {
		ps = append(ps, &Participant{
			ID: int64(i + 1), BattleID: 1, UserID: int64(100 + i),
			Prediction: pred, EntryFee: entryFee, Status: ParticipantAccepted,
		})
		b.PotAmount += entryFee
		b.ParticipantCount++
	}
	return b, ps
}

func Test_PlanResolution(t *testing.T) {
	t.Run("pot 500, fee 10%, four winners of ten", func(t *testing.T) {
		b, ps := makeBattle(50,
			ResultTeam1, ResultTeam1, ResultTeam1, ResultTeam1,
			ResultDraw, ResultDraw, ResultDraw,
			ResultTeam2, ResultTeam2, ResultTeam2,
		)
		require.Equal(t, int64(500), b.PotAmount)

		s, err := PlanResolution(b, ps, ResultTeam1, 10)
		require.NoError(t, err)
		require.Equal(t, OutcomeWinners, s.Outcome)
		require.Equal(t, 4, s.WinnersCount)
		require.Equal(t, int64(112), s.PointsPerWinner)
		require.Equal(t, int64(2), s.Residual)
		require.Equal(t, int64(52), s.FeeAmount)
		require.Equal(t, int64(448), s.Distributed)
		require.Len(t, s.Payouts, 4)
		require.Len(t, s.Losers, 6)
		for _, p := range s.Payouts {
			require.Equal(t, int64(112), p.Amount)
		}
	})

	t.Run("no winners keeps the pot and pays nothing", func(t *testing.T) {
		b, ps := makeBattle(50, ResultTeam1, ResultTeam2)
		s, err := PlanResolution(b, ps, ResultDraw, 10)
		require.NoError(t, err)
		require.Equal(t, OutcomeNoWinners, s.Outcome)
		require.Zero(t, s.WinnersCount)
		require.Empty(t, s.Payouts)
		require.Equal(t, int64(100), s.FeeAmount)
		require.Len(t, s.Losers, 2)
	})

	t.Run("empty battle resolves with zero fee", func(t *testing.T) {
		b, ps := makeBattle(50)
		s, err := PlanResolution(b, ps, ResultTeam1, 10)
		require.NoError(t, err)
		require.Equal(t, OutcomeNoWinners, s.Outcome)
		require.Zero(t, s.FeeAmount)
	})

	t.Run("never distributes more than the fee-adjusted pot", func(t *testing.T) {
		for fee := int64(0); fee <= 100; fee += 7 {
			for n := 1; n <= 13; n++ {
				preds := make([]Result, n)
				for i := range preds {
					preds[i] = ResultTeam1
					if i%3 == 0 {
						preds[i] = ResultTeam2
					}
				}
				b, ps := makeBattle(37, preds...)
				s, err := PlanResolution(b, ps, ResultTeam1, fee)
				require.NoError(t, err)

				adjusted := b.PotAmount - common.PercentOf(b.PotAmount, fee)
				if s.WinnersCount > 0 {
					require.Equal(t, adjusted/int64(s.WinnersCount), s.PointsPerWinner)
				}
				require.LessOrEqual(t, s.Distributed, adjusted)
				require.Equal(t, b.PotAmount, s.Distributed+s.FeeAmount)
			}
		}
	})

	t.Run("only accepted participants count", func(t *testing.T) {
		b, ps := makeBattle(50, ResultTeam1, ResultTeam1)
		ps[1].Status = ParticipantRefunded
		s, err := PlanResolution(b, ps, ResultTeam1, 0)
		require.NoError(t, err)
		require.Equal(t, 1, s.WinnersCount)
	})

	t.Run("not open is a conflict", func(t *testing.T) {
		b, ps := makeBattle(50, ResultTeam1)
		b.Status = StatusCompleted
		_, err := PlanResolution(b, ps, ResultTeam1, 10)
		require.ErrorIs(t, err, common.ErrBattleNotOpen)
	})

	t.Run("bad result is a validation error", func(t *testing.T) {
		b, ps := makeBattle(50, ResultTeam1)
		_, err := PlanResolution(b, ps, Result("x"), 10)
		require.Equal(t, common.KindValidation, common.KindOf(err))
	})
}

func Test_PlanCancellation(t *testing.T) {
	b, ps := makeBattle(50, ResultTeam1, ResultDraw, ResultTeam2)
	s, err := PlanCancellation(b, ps, "матч перенесён")
	require.NoError(t, err)
	require.Equal(t, OutcomeRefunded, s.Outcome)
	require.Equal(t, 3, s.RefundedCount)
	require.Equal(t, int64(150), s.TotalRefunded)
	require.Zero(t, s.FeeAmount)
	require.Len(t, s.Payouts, 3)

	b.Status = StatusCancelled
	_, err = PlanCancellation(b, ps, "ещё раз")
	require.ErrorIs(t, err, common.ErrBattleNotOpen)
}
