package activation

import (
	"context"
	"time"

	"github.com/StricklySoft/stricklysoft-identity/pkg/clients/postgres"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// Migrations creates the activate_tokens table. Versions 200-299 belong to
// this package.
var Migrations = []postgres.Migration{
	{
		Version: 200,
		Name:    "create_activate_tokens",
		SQL: `CREATE TABLE IF NOT EXISTS activate_tokens (
	id           UUID PRIMARY KEY,
	token        TEXT NOT NULL UNIQUE,
	user_id      TEXT NOT NULL,
	activated_at TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	},
	{
		Version: 201,
		Name:    "index_activate_tokens_user_id",
		SQL:     `CREATE INDEX IF NOT EXISTS activate_tokens_user_id_idx ON activate_tokens (user_id)`,
	},
}

const (
	insertToken = `INSERT INTO activate_tokens (id, token, user_id, activated_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	selectByToken = `SELECT id, token, user_id, activated_at, created_at, updated_at
FROM activate_tokens WHERE token = $1`
	markActivated = `UPDATE activate_tokens SET activated_at = $2, updated_at = $2
WHERE token = $1 AND activated_at IS NULL`
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

func (s *PostgresStore) Create(ctx context.Context, t *models.ActivationToken) error {
	_, err := s.db.Exec(ctx, insertToken,
		t.ID, t.Token, t.UserID, t.ActivatedAt, t.CreatedAt, t.UpdatedAt)
	return err
}

func (s *PostgresStore) FindByToken(ctx context.Context, token string) (*models.ActivationToken, error) {
	var t models.ActivationToken
	err := s.db.QueryRow(ctx, selectByToken, token).
		Scan(&t.ID, &t.Token, &t.UserID, &t.ActivatedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		err = postgres.WrapScanError(err, "activation: query failed")
		if sserr.IsNotFound(err) {
			return nil, tokenNotFound(err)
		}
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) MarkActivated(ctx context.Context, token string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, markActivated, token, at.UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
