package operators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/points-engine/internal/common"
	"serotonyl.ru/points-engine/internal/config"
)

type memStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	attempts []LoginAttempt
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]*Session)}
}

func (m *memStore) CreateSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = int64(len(m.sessions) + 1)
	s.IsActive = true
	cp := *s
	m.sessions[s.Token] = &cp
	return nil
}

func (m *memStore) ActiveSession(_ context.Context, token string, now time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok || !s.IsActive || !s.ExpiresAt.After(now) {
		return nil, common.ErrSessionExpired
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) Deactivate(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[token]; ok {
		s.IsActive = false
	}
	return nil
}

func (m *memStore) LogAttempt(_ context.Context, operatorID int64, success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, LoginAttempt{OperatorID: operatorID, Success: success, AttemptTime: time.Now()})
	return nil
}

func (m *memStore) FailedAttempts(_ context.Context, operatorID int64, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.attempts {
		if a.OperatorID == operatorID && !a.Success && !a.AttemptTime.Before(since) {
			n++
		}
	}
	return n, nil
}

var _ Store = (*memStore)(nil)

// Лёгкие параметры, чтобы тесты не считали 64 МБ хеши
func testHash(password string) string {
	return encodeArgon2id(password, []byte("0123456789abcdef"), 1024, 1, 1)
}

func newTestService(store Store) *Service {
	return NewService(store, &config.Config{
		AdminIDs:          []int64{7},
		AdminPasswordHash: testHash("s3cret"),
		AdminSessionTTL:   time.Hour,
	})
}

func Test_verifyArgon2id(t *testing.T) {
	hash := testHash("s3cret")
	require.True(t, verifyArgon2id("s3cret", hash))
	require.False(t, verifyArgon2id("S3cret", hash))
	require.False(t, verifyArgon2id("s3cret", "plain-text"))
	require.False(t, verifyArgon2id("s3cret", "$argon2id$v=19$m=x$salt$hash"))

	generated, err := HashPassword("другой")
	require.NoError(t, err)
	require.True(t, verifyArgon2id("другой", generated))
}

func Test_Service_Login(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	_, err := svc.Login(ctx, 8, "s3cret")
	require.ErrorIs(t, err, common.ErrNotAdmin)

	session, err := svc.Login(ctx, 7, "s3cret")
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)
	require.True(t, session.ExpiresAt.After(time.Now()))

	operatorID, err := svc.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	require.Equal(t, int64(7), operatorID)

	require.NoError(t, svc.Logout(ctx, session.Token))
	_, err = svc.Authenticate(ctx, session.Token)
	require.ErrorIs(t, err, common.ErrSessionExpired)

	_, err = svc.Authenticate(ctx, "")
	require.ErrorIs(t, err, common.ErrSessionExpired)
}

func Test_Service_LoginLockout(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	for i := 0; i < MaxFailedAttempts; i++ {
		_, err := svc.Login(ctx, 7, "wrong")
		require.ErrorIs(t, err, common.ErrWrongPassword)
	}

	// Даже верный пароль не принимается до конца окна
	_, err := svc.Login(ctx, 7, "s3cret")
	require.ErrorIs(t, err, common.ErrTooManyAttempts)

	svc.now = func() time.Time { return time.Now().Add(AttemptWindow + time.Minute) }
	_, err = svc.Login(ctx, 7, "s3cret")
	require.NoError(t, err)
}

func Test_Service_SessionExpiry(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemStore())

	session, err := svc.Login(ctx, 7, "s3cret")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Authenticate(ctx, session.Token)
	require.ErrorIs(t, err, common.ErrSessionExpired)
}

func Test_RequireOperator(t *testing.T) {
	svc := newTestService(newMemStore())
	h := NewHandler(svc)
	session, err := svc.Login(context.Background(), 7, "s3cret")
	require.NoError(t, err)

	var seen int64
	protected := h.RequireOperator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = common.OperatorID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/battles", nil)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/battles", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(7), seen)
}
