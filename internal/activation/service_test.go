package activation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-identity/internal/testutil"
	"github.com/StricklySoft/stricklysoft-identity/internal/testutil/fixtures"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// ===========================================================================
// Mock Store
// ===========================================================================

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Create(ctx context.Context, t *models.ActivationToken) error {
	return m.Called(ctx, t).Error(0)
}

func (m *mockStore) FindByToken(ctx context.Context, token string) (*models.ActivationToken, error) {
	args := m.Called(ctx, token)
	t, _ := args.Get(0).(*models.ActivationToken)
	return t, args.Error(1)
}

func (m *mockStore) MarkActivated(ctx context.Context, token string, at time.Time) (bool, error) {
	args := m.Called(ctx, token, at)
	return args.Bool(0), args.Error(1)
}

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(store Store) *Service {
	return NewService(store, ServiceConfig{}, WithClock(func() time.Time { return fixedNow }))
}

// ===========================================================================
// Create Tests
// ===========================================================================

func TestCreate_ReturnsUsableToken(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	svc := newTestService(store)

	token, err := svc.Create(context.Background(), fixtures.TestUserID)
	require.NoError(t, err)
	assert.Len(t, token, 36)

	stored, err := store.FindByToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, fixtures.TestUserID, stored.UserID)
	assert.NotEqual(t, token, stored.ID)
	assert.Nil(t, stored.ActivatedAt)
}

func TestCreate_DistinctTokens(t *testing.T) {
	t.Parallel()
	svc := newTestService(NewMemoryStore())

	a, err := svc.Create(context.Background(), fixtures.TestUserID)
	require.NoError(t, err)
	b, err := svc.Create(context.Background(), fixtures.TestUserID)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCreate_BlankUserID(t *testing.T) {
	t.Parallel()
	store := &mockStore{}
	_, err := newTestService(store).Create(context.Background(), "  ")
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreate_StoreFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want sserr.Code
	}{
		{"uncoded", errors.New("connection reset"), sserr.CodeInternalDatabase},
		{"deadline", context.DeadlineExceeded, sserr.CodeTimeoutDatabase},
		{"coded", sserr.New(sserr.CodeUnavailableDependency, "down"), sserr.CodeUnavailableDependency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := &mockStore{}
			store.On("Create", mock.Anything, mock.AnythingOfType("*models.ActivationToken")).Return(tt.err)

			_, err := newTestService(store).Create(context.Background(), fixtures.TestUserID)
			testutil.RequireErrorCode(t, err, tt.want)
		})
	}
}

// ===========================================================================
// Validate Tests
// ===========================================================================

func TestValidate(t *testing.T) {
	t.Parallel()
	svc := newTestService(NewMemoryStore())
	ctx := context.Background()

	token, err := svc.Create(ctx, fixtures.TestUserID)
	require.NoError(t, err)

	ok, err := svc.Validate(ctx, token)
	require.NoError(t, err)
	assert.True(t, ok, "fresh token is valid")

	activated, err := svc.Activate(ctx, token)
	require.NoError(t, err)
	require.True(t, activated)

	ok, err = svc.Validate(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok, "used token is no longer valid")
}

func TestValidate_UnknownAndBlank(t *testing.T) {
	t.Parallel()
	svc := newTestService(NewMemoryStore())

	for _, token := range []string{"", "no-such-token"} {
		ok, err := svc.Validate(context.Background(), token)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestValidate_StoreFailure(t *testing.T) {
	t.Parallel()
	store := &mockStore{}
	store.On("FindByToken", mock.Anything, "tok").Return(nil, errors.New("broken pipe"))

	ok, err := newTestService(store).Validate(context.Background(), "tok")
	testutil.RequireErrorCode(t, err, sserr.CodeInternalDatabase)
	assert.False(t, ok)
}

// ===========================================================================
// Activate Tests
// ===========================================================================

func TestActivate_OnlyOnce(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	token, err := svc.Create(ctx, fixtures.TestUserID)
	require.NoError(t, err)

	ok, err := svc.Activate(ctx, token)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := store.FindByToken(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, stored.ActivatedAt)
	assert.Equal(t, fixedNow, *stored.ActivatedAt)
	assert.Equal(t, fixedNow, stored.UpdatedAt)

	ok, err = svc.Activate(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestActivate_UnknownToken(t *testing.T) {
	t.Parallel()
	ok, err := newTestService(NewMemoryStore()).Activate(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestActivate_Concurrent verifies exactly one of many simultaneous
// activations of one token succeeds.
func TestActivate_Concurrent(t *testing.T) {
	t.Parallel()
	svc := newTestService(NewMemoryStore())
	token, err := svc.Create(context.Background(), fixtures.TestUserID)
	require.NoError(t, err)

	var (
		wins atomic.Int32
		wg   sync.WaitGroup
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := svc.Activate(context.Background(), token)
			if assert.NoError(t, err) && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestActivate_UsesClockAndTimeout(t *testing.T) {
	t.Parallel()
	store := &mockStore{}
	store.On("MarkActivated", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), "tok", fixedNow).Return(true, nil)

	ok, err := newTestService(store).Activate(context.Background(), "tok")
	require.NoError(t, err)
	assert.True(t, ok)
	store.AssertExpectations(t)
}

func TestActivate_StoreFailure(t *testing.T) {
	t.Parallel()
	store := &mockStore{}
	store.On("MarkActivated", mock.Anything, "tok", mock.Anything).Return(false, context.Canceled)

	_, err := newTestService(store).Activate(context.Background(), "tok")
	testutil.RequireErrorCode(t, err, sserr.CodeTimeoutDatabase)
}

func TestNewService_DefaultTimeout(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultTimeout, NewService(NewMemoryStore(), ServiceConfig{}).timeout)
	assert.Equal(t, time.Second, NewService(NewMemoryStore(), ServiceConfig{Timeout: time.Second}).timeout)
}

// ===========================================================================
// MemoryStore Tests
// ===========================================================================

func TestMemoryStore_DuplicateToken(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	tok, err := models.NewActivationToken(fixtures.TestUserID)
	require.NoError(t, err)

	require.NoError(t, store.Create(context.Background(), tok))
	err = store.Create(context.Background(), tok)
	testutil.RequireErrorCode(t, err, sserr.CodeConflictAlreadyExists)
}

func TestMemoryStore_NotFound(t *testing.T) {
	t.Parallel()
	_, err := NewMemoryStore().FindByToken(context.Background(), "missing")
	testutil.RequireErrorCode(t, err, sserr.CodeNotFoundActivationToken)
}
