package users

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/StricklySoft/stricklysoft-identity/pkg/clients/postgres"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// Migrations creates the users table. Versions 100-199 belong to this
// package.
var Migrations = []postgres.Migration{
	{
		Version: 100,
		Name:    "create_users",
		SQL: `CREATE TABLE IF NOT EXISTS users (
	id             UUID PRIMARY KEY,
	email          TEXT NOT NULL,
	password       TEXT,
	wallet_address TEXT,
	active         BOOLEAN NOT NULL DEFAULT FALSE,
	login_type     TEXT NOT NULL DEFAULT 'SYSTEM' CHECK (login_type IN ('WEB3AUTH', 'SYSTEM')),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (lower(email))`,
	},
	{
		Version: 101,
		Name:    "index_users_wallet_address",
		SQL:     `CREATE INDEX IF NOT EXISTS users_wallet_address_idx ON users (wallet_address)`,
	},
}

const userColumns = `id, email, password, wallet_address, active, login_type, created_at, updated_at`

const (
	selectByEmail = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = $1`
	selectByID    = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	insertUser    = `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
)

// PostgresStore is the production [Store].
type PostgresStore struct {
	db *postgres.Client
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store over db. Run [Migrations] first.
func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, selectByEmail, email))
	if sserr.IsNotFound(err) {
		return nil, userNotFound(err, "email", email)
	}
	return u, err
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, selectByID, id))
	if sserr.IsNotFound(err) {
		return nil, userNotFound(err, "user_id", id)
	}
	return u, err
}

func (s *PostgresStore) Create(ctx context.Context, u *models.User) error {
	_, err := s.db.Exec(ctx, insertUser,
		u.ID, u.Email, u.Password, u.WalletAddress, u.Active,
		string(u.LoginType), u.CreatedAt, u.UpdatedAt)
	if sserr.IsConflict(err) {
		return emailTaken(err, u.Email)
	}
	return err
}

func scanUser(row pgx.Row) (*models.User, error) {
	var (
		u         models.User
		loginType string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.WalletAddress,
		&u.Active, &loginType, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, postgres.WrapScanError(err, "users: query failed")
	}
	u.LoginType = models.LoginType(loginType)
	return &u, nil
}
