package redemptions

import (
	"testing"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/points-engine/internal/features/ledger"
)

func Test_BuildEvidence(t *testing.T) {
	entries := []*ledger.Entry{
		{ID: 5, Type: ledger.TypeRedemptionDebit, Amount: -1000},
		{ID: 4, Type: ledger.TypeBattlePayout, Amount: 300},
		{ID: 3, Type: ledger.TypeBattleEntry, Amount: -50},
		{ID: 2, Type: ledger.TypePurchase, Amount: 500},
		{ID: 1, Type: ledger.TypePurchase, Amount: 700},
	}

	ev := BuildEvidence(entries, 3)
	require.Equal(t, 5, ev.SampleSize)
	require.Equal(t, int64(1500), ev.TotalCredits)
	require.Equal(t, int64(1050), ev.TotalDebits)
	require.Equal(t, int64(1200), ev.TotalsByType[ledger.TypePurchase])
	require.Equal(t, int64(-1000), ev.TotalsByType[ledger.TypeRedemptionDebit])
	require.Len(t, ev.RecentEntries, 3)
	require.Equal(t, int64(5), ev.RecentEntries[0].ID)

	t.Run("empty history", func(t *testing.T) {
		ev := BuildEvidence(nil, 10)
		require.Zero(t, ev.SampleSize)
		require.Empty(t, ev.TotalsByType)
		require.NotNil(t, ev.RecentEntries)
	})

	t.Run("recent larger than sample", func(t *testing.T) {
		ev := BuildEvidence(entries[:2], 10)
		require.Len(t, ev.RecentEntries, 2)
	})
}
