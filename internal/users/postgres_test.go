package users

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-identity/internal/testutil"
	"github.com/StricklySoft/stricklysoft-identity/internal/testutil/fixtures"
	"github.com/StricklySoft/stricklysoft-identity/pkg/clients/postgres"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresStore(postgres.NewFromPool(mock, &postgres.Config{Database: "identity"})), mock
}

var userRowColumns = []string{"id", "email", "password", "wallet_address", "active", "login_type", "created_at", "updated_at"}

func TestPostgresStore_FindByEmail(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	wallet := fixtures.TestWallet
	mock.ExpectQuery(regexp.QuoteMeta(selectByEmail)).
		WithArgs(fixtures.TestEmail).
		WillReturnRows(pgxmock.NewRows(userRowColumns).
			AddRow(fixtures.TestUserID, fixtures.TestEmail, nil, &wallet, true, "WEB3AUTH", created, created))

	u, err := store.FindByEmail(context.Background(), fixtures.TestEmail)
	require.NoError(t, err)
	assert.Equal(t, fixtures.TestUserID, u.ID)
	assert.Equal(t, fixtures.TestWallet, u.Wallet())
	assert.Nil(t, u.Password)
	assert.True(t, u.Active)
	assert.Equal(t, models.LoginTypeWeb3Auth, u.LoginType)
	assert.Equal(t, created, u.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindByEmail_NotFound(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectByEmail)).
		WithArgs("nobody@example.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.FindByEmail(context.Background(), "nobody@example.com")
	testutil.RequireErrorCode(t, err, sserr.CodeNotFoundUser)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestPostgresStore_FindByID_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want sserr.Code
	}{
		{"not found", pgx.ErrNoRows, sserr.CodeNotFoundUser},
		{"timeout", context.DeadlineExceeded, sserr.CodeTimeoutDatabase},
		{"broken", errors.New("connection reset"), sserr.CodeInternalDatabase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store, mock := newMockStore(t)
			mock.ExpectQuery(regexp.QuoteMeta(selectByID)).
				WithArgs(fixtures.TestUserID).
				WillReturnError(tt.err)

			_, err := store.FindByID(context.Background(), fixtures.TestUserID)
			testutil.RequireErrorCode(t, err, tt.want)
		})
	}
}

func TestPostgresStore_Create(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	u, err := models.NewWeb3AuthUser(fixtures.TestEmail, fixtures.TestWallet)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(insertUser)).
		WithArgs(u.ID, u.Email, u.Password, u.WalletAddress, true, "WEB3AUTH", u.CreatedAt, u.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), u))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPostgresStore_Create_DuplicateEmail verifies the unique index
// violation surfaces as an email conflict the resolver can act on.
func TestPostgresStore_Create_DuplicateEmail(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	u, err := models.NewWeb3AuthUser(fixtures.TestEmail, "")
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(insertUser)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	err = store.Create(context.Background(), u)
	testutil.RequireErrorCode(t, err, sserr.CodeConflictAlreadyExists)

	ssErr, ok := sserr.AsError(err)
	require.True(t, ok)
	assert.Equal(t, fixtures.TestEmail, ssErr.Details["email"])
}

// TestResolve_OverPostgresStore walks a first login end to end over the
// SQL store: miss, insert, identity.
func TestResolve_OverPostgresStore(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectByEmail)).
		WithArgs(fixtures.TestEmail).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta(insertUser)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := NewResolver(store, ResolverConfig{}).Resolve(context.Background(), "Alice@Example.com", fixtures.TestWallet)
	require.NoError(t, err)
	assert.Equal(t, fixtures.TestEmail, id.Email)
	assert.Equal(t, fixtures.TestWallet, *id.WalletAddress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrations_Versions(t *testing.T) {
	t.Parallel()
	for _, m := range Migrations {
		assert.GreaterOrEqual(t, m.Version, 100)
		assert.Less(t, m.Version, 200)
		assert.NotEmpty(t, m.SQL)
	}
}
