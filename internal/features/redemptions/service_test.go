package redemptions

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/points-engine/internal/common"
	"serotonyl.ru/points-engine/internal/features/abuse"
	"serotonyl.ru/points-engine/internal/features/ledger"
	"serotonyl.ru/points-engine/internal/notify"
)

// memStore держит заявки, журнал очков и нарушения в памяти.
type memStore struct {
	mu          sync.Mutex
	redemptions map[int64]*Redemption
	entries     []*ledger.Entry
	bans        map[int64]*abuse.Ban
	abuseLogs   []abuse.NewLog
	fees        int64
	events      []string
	nextID      int64
}

func newMemStore() *memStore {
	return &memStore{
		redemptions: make(map[int64]*Redemption),
		bans:        make(map[int64]*abuse.Ban),
	}
}

func (m *memStore) credit(userID, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.entries = append(m.entries, &ledger.Entry{
		ID: m.nextID, UserID: userID, Type: ledger.TypePurchase, Amount: amount, CreatedAt: time.Now(),
	})
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

func (m *memStore) Create(_ context.Context, n NewRedemption, check RequestCheck) (*Redemption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := check(m.balance(n.UserID), m.bans[n.UserID]); err != nil {
		return nil, err
	}
	m.nextID++
	red := &Redemption{
		ID: m.nextID, UserID: n.UserID, Points: n.Points, Stars: n.Stars,
		ConversionRate: n.ConversionRate, Status: StatusPending, CreatedAt: time.Now(),
	}
	m.redemptions[red.ID] = red
	m.nextID++
	m.entries = append(m.entries, &ledger.Entry{
		ID: m.nextID, UserID: n.UserID, Type: ledger.TypeRedemptionDebit, Amount: -n.Points, CreatedAt: time.Now(),
	})
	m.fees += n.Fee
	cp := *red
	return &cp, nil
}

func (m *memStore) Get(_ context.Context, id int64) (*Redemption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	red, ok := m.redemptions[id]
	if !ok {
		return nil, common.ErrRedemptionNotFound
	}
	cp := *red
	return &cp, nil
}

func (m *memStore) List(_ context.Context, status *Status, page common.Page) ([]*Redemption, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Redemption
	for id := m.nextID; id > 0; id-- {
		red, ok := m.redemptions[id]
		if !ok || (status != nil && red.Status != *status) {
			continue
		}
		cp := *red
		out = append(out, &cp)
	}
	total := int64(len(out))
	if len(out) > page.Limit {
		out = out[:page.Limit]
	}
	return out, total, nil
}

func (m *memStore) LedgerSample(_ context.Context, userID int64, limit int) ([]*ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ledger.Entry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].UserID == userID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *memStore) Review(_ context.Context, id, operatorID int64, plan ReviewPlan) (*Redemption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	red, ok := m.redemptions[id]
	if !ok {
		return nil, common.ErrRedemptionNotFound
	}
	d, err := plan(red)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	red.Status = d.Status
	if d.Note != nil {
		red.Notes = d.Note
	}
	if d.FlaggedReason != nil {
		red.FlaggedReason = d.FlaggedReason
	}
	red.ReviewedBy = &operatorID
	red.ReviewedAt = &now
	if d.Abuse != nil {
		m.abuseLogs = append(m.abuseLogs, *d.Abuse)
	}
	m.events = append(m.events, d.Event)
	cp := *red
	return &cp, nil
}

var _ Store = (*memStore)(nil)

func newTestService(store Store, feePercent int64) *Service {
	return NewService(store, notify.Nop{}, Options{
		ConversionRate: 10,
		FeePercent:     feePercent,
		EvidenceSample: 100,
		EvidenceRecent: 5,
		Weights:        abuse.DefaultWeights,
	})
}

func Test_Service_Request(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store, 5)
	store.credit(1, 1500)

	red, err := svc.Request(ctx, 1, 100)
	require.NoError(t, err)
	require.Equal(t, int64(1000), red.Points)
	require.Equal(t, int64(10), red.ConversionRate)
	require.Equal(t, red.Stars*red.ConversionRate, red.Points)
	require.Equal(t, StatusPending, red.Status)
	require.Equal(t, int64(500), store.balance(1))
	require.Equal(t, int64(50), store.fees)

	require.NotNil(t, red.Evidence)
	require.Equal(t, 2, red.Evidence.SampleSize)
	require.Equal(t, int64(1500), red.Evidence.TotalCredits)
	require.Equal(t, int64(1000), red.Evidence.TotalDebits)

	_, err = svc.Request(ctx, 1, 51)
	require.ErrorIs(t, err, common.ErrInsufficientBalance)

	_, err = svc.Request(ctx, 1, 0)
	require.Equal(t, common.KindValidation, common.KindOf(err))

	t.Run("banned user", func(t *testing.T) {
		store.credit(2, 5000)
		store.bans[2] = &abuse.Ban{UserID: 2, IsBanned: true, IsPermanent: true}
		_, err := svc.Request(ctx, 2, 10)
		require.ErrorIs(t, err, common.ErrUserBanned)
		require.Equal(t, int64(5000), store.balance(2))
	})

	t.Run("expired ban does not block", func(t *testing.T) {
		store.credit(3, 100)
		past := time.Now().Add(-time.Hour)
		store.bans[3] = &abuse.Ban{UserID: 3, IsBanned: true, BannedUntil: &past}
		_, err := svc.Request(ctx, 3, 10)
		require.NoError(t, err)
	})
}

func Test_Service_RequestConcurrent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store, 0)
	store.credit(1, 1000)

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Request(ctx, 1, 30); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	// 1000 очков хватает на три заявки по 300
	require.Equal(t, int32(3), ok.Load())
	require.Equal(t, int64(100), store.balance(1))
	require.Zero(t, store.fees)
}

func Test_Service_Approve(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store, 0)
	store.credit(1, 1000)

	red, err := svc.Request(ctx, 1, 50)
	require.NoError(t, err)
	balance := store.balance(1)

	approved, err := svc.Approve(ctx, red.ID, " выплачено ", 7)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, approved.Status)
	require.NotNil(t, approved.ReviewedAt)
	require.Equal(t, "выплачено", *approved.Notes)
	require.Equal(t, int64(7), *approved.ReviewedBy)
	require.Equal(t, balance, store.balance(1))

	_, err = svc.Approve(ctx, red.ID, "", 7)
	require.ErrorIs(t, err, common.ErrRedemptionNotPending)

	_, err = svc.Flag(ctx, red.ID, "поздно", abuse.SeverityHigh, 7)
	require.ErrorIs(t, err, common.ErrRedemptionCompleted)
	require.Empty(t, store.abuseLogs)

	_, err = svc.Approve(ctx, 999, "", 7)
	require.ErrorIs(t, err, common.ErrRedemptionNotFound)
}

func Test_Service_Flag(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store, 0)
	store.credit(1, 1000)

	red, err := svc.Request(ctx, 1, 100)
	require.NoError(t, err)
	require.Equal(t, int64(1000), red.Points)

	_, err = svc.Flag(ctx, red.ID, "   ", abuse.SeverityCritical, 7)
	require.Equal(t, common.KindValidation, common.KindOf(err))
	_, err = svc.Flag(ctx, red.ID, "мультиаккаунт", abuse.SeverityLow, 7)
	require.Equal(t, common.KindValidation, common.KindOf(err))

	flagged, err := svc.Flag(ctx, red.ID, "мультиаккаунт", abuse.SeverityCritical, 7)
	require.NoError(t, err)
	require.Equal(t, StatusFlagged, flagged.Status)
	require.Equal(t, "мультиаккаунт", *flagged.FlaggedReason)

	require.Len(t, store.abuseLogs, 1)
	l := store.abuseLogs[0]
	require.Equal(t, int64(1), l.UserID)
	require.Equal(t, abuse.SeverityCritical, l.Severity)
	require.Equal(t, int64(10), l.Weight)
	require.Equal(t, AbuseType, l.Type)

	// Помеченная заявка — финальное состояние
	_, err = svc.Flag(ctx, red.ID, "ещё раз", abuse.SeverityHigh, 7)
	require.ErrorIs(t, err, common.ErrRedemptionCompleted)
	_, err = svc.Approve(ctx, red.ID, "", 7)
	require.ErrorIs(t, err, common.ErrRedemptionNotPending)
	require.Len(t, store.abuseLogs, 1)

	// Очки при пометке не возвращаются
	require.Zero(t, store.balance(1))

	t.Run("approved but not completed can be flagged", func(t *testing.T) {
		store.credit(4, 100)
		red, err := svc.Request(ctx, 4, 5)
		require.NoError(t, err)
		store.redemptions[red.ID].Status = StatusApproved

		flagged, err := svc.Flag(ctx, red.ID, "чарджбэк", abuse.SeverityHigh, 7)
		require.NoError(t, err)
		require.Equal(t, StatusFlagged, flagged.Status)
		require.Equal(t, int64(5), store.abuseLogs[len(store.abuseLogs)-1].Weight)
	})
}

func Test_Service_ReviewConcurrent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store, 0)
	store.credit(1, 1000)
	red, err := svc.Request(ctx, 1, 10)
	require.NoError(t, err)

	var ok, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = svc.Approve(ctx, red.ID, "", 1)
			} else {
				_, err = svc.Flag(ctx, red.ID, "подозрение", abuse.SeverityHigh, 1)
			}
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, common.ErrRedemptionNotPending), errors.Is(err, common.ErrRedemptionCompleted):
				conflicts.Add(1)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), ok.Load())
	require.Equal(t, int32(5), conflicts.Load())
	require.Len(t, store.events, 1)
	require.LessOrEqual(t, len(store.abuseLogs), 1)
}

func Test_Service_List(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store, 0)
	store.credit(1, 1000)

	for i := 0; i < 3; i++ {
		_, err := svc.Request(ctx, 1, 10)
		require.NoError(t, err)
	}
	_, err := svc.Approve(ctx, 2, "", 1)
	require.NoError(t, err)

	pending := StatusPending
	list, total, err := svc.List(ctx, &pending, common.NewPage(1, 10))
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	for _, red := range list {
		require.NotNil(t, red.Evidence)
	}

	bad := Status("rejected")
	_, _, err = svc.List(ctx, &bad, common.NewPage(1, 10))
	require.Equal(t, common.KindValidation, common.KindOf(err))
}
