package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/points-engine/internal/common"
)

// memStore — журнал в памяти с тем же контрактом, что у Repository.
type memStore struct {
	mu      sync.Mutex
	entries []*Entry
	refs    map[string]bool
	revenue int64
}

func newMemStore() *memStore {
	return &memStore{refs: make(map[string]bool)}
}

func (m *memStore) balance(userID int64) int64 {
	var sum int64
	for _, e := range m.entries {
		if e.UserID == userID {
			sum += e.Amount
		}
	}
	return sum
}

func (m *memStore) append(e NewEntry) *Entry {
	entry := &Entry{
		ID: int64(len(m.entries) + 1), UserID: e.UserID, Type: e.Type,
		Amount: e.Amount, Description: e.Description, CreatedAt: time.Now(),
	}
	if e.Reference != "" {
		ref := e.Reference
		entry.Reference = &ref
	}
	m.entries = append(m.entries, entry)
	return entry
}

func (m *memStore) Balance(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance(userID), nil
}

func (m *memStore) Recent(_ context.Context, userID int64, limit int) ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Entry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].UserID == userID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *memStore) History(ctx context.Context, userID int64, page common.Page) ([]*Entry, int64, error) {
	all, _ := m.Recent(ctx, userID, len(m.entries))
	from := page.Offset()
	if from > len(all) {
		from = len(all)
	}
	to := from + page.Limit
	if to > len(all) {
		to = len(all)
	}
	return all[from:to], int64(len(all)), nil
}

func (m *memStore) Adjust(_ context.Context, userID, amount int64, reason string) (*Adjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance := m.balance(userID)
	if balance+amount < 0 {
		return nil, common.ErrInsufficientBalance
	}
	e := m.append(NewEntry{UserID: userID, Type: TypeManualAdjustment, Amount: amount, Description: reason})
	return &Adjustment{Entry: e, Balance: balance + amount}, nil
}

func (m *memStore) CreditPurchase(_ context.Context, p Purchase) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refs[p.Reference] {
		return nil, common.ErrDuplicateReference
	}
	m.refs[p.Reference] = true
	m.revenue += p.Revenue
	return m.append(NewEntry{UserID: p.UserID, Type: TypePurchase, Amount: p.Points, Reference: p.Reference}), nil
}

func Test_EntryType_Valid(t *testing.T) {
	for _, typ := range []EntryType{
		TypePurchase, TypeBattleEntry, TypeBattlePayout, TypeBattleRefund,
		TypeRedemptionDebit, TypeReferral, TypeManualAdjustment,
	} {
		require.True(t, typ.Valid(), typ)
	}
	require.False(t, EntryType("casino_win").Valid())
	require.False(t, EntryType("").Valid())
}

func Test_Service_Adjust(t *testing.T) {
	ctx := context.Background()
	s := NewService(newMemStore())

	adj, err := s.Adjust(ctx, 7, 300, "компенсация", 1)
	require.NoError(t, err)
	require.Equal(t, int64(300), adj.Balance)
	require.Equal(t, TypeManualAdjustment, adj.Entry.Type)

	_, err = s.Adjust(ctx, 7, -301, "штраф", 1)
	require.ErrorIs(t, err, common.ErrInsufficientBalance)

	adj, err = s.Adjust(ctx, 7, -300, "штраф", 1)
	require.NoError(t, err)
	require.Equal(t, int64(0), adj.Balance)

	tests := []struct {
		name   string
		userID int64
		amount int64
		reason string
		field  string
	}{
		{"zero amount", 7, 0, "x", "amount"},
		{"blank reason", 7, 10, "   ", "reason"},
		{"bad user", 0, 10, "x", "userId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Adjust(ctx, tt.userID, tt.amount, tt.reason, 1)
			var e *common.Error
			require.ErrorAs(t, err, &e)
			require.Equal(t, common.KindValidation, e.Kind)
			require.Equal(t, tt.field, e.Field)
		})
	}
}

func Test_Service_CreditPurchase(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	s := NewService(store)

	p := Purchase{UserID: 3, Points: 1000, Revenue: 100, Kind: "purchase", Reference: "pay-1"}
	entry, err := s.CreditPurchase(ctx, p)
	require.NoError(t, err)
	require.Equal(t, int64(1000), entry.Amount)

	_, err = s.CreditPurchase(ctx, p)
	require.ErrorIs(t, err, common.ErrDuplicateReference)

	balance, err := s.Balance(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, int64(1000), balance)
	require.Equal(t, int64(100), store.revenue)

	bad := p
	bad.Kind = "withdrawal"
	_, err = s.CreditPurchase(ctx, bad)
	require.Equal(t, common.KindValidation, common.KindOf(err))
}

func Test_Service_History(t *testing.T) {
	ctx := context.Background()
	s := NewService(newMemStore())
	for i := 1; i <= 5; i++ {
		_, err := s.Adjust(ctx, 9, int64(i*10), "бонус", 1)
		require.NoError(t, err)
	}

	entries, total, err := s.History(ctx, 9, common.NewPage(2, 2))
	require.NoError(t, err)
	require.Equal(t, int64(5), total)
	require.Len(t, entries, 2)
	require.Equal(t, int64(30), entries[0].Amount)
}
