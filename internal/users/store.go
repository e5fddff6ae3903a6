// Package users resolves verified external identities to user accounts.
//
// [Resolver.Resolve] is the find-or-create step of a login: it looks a user
// up by normalized email and creates an active WEB3AUTH account on first
// sight. Concurrent first logins for one email race on the store's unique
// email constraint; the loser re-reads and returns the winner's account.
//
// Two [Store] implementations exist: [PostgresStore] for production and
// [MemoryStore] for tests and single-process development.
package users

import (
	"context"

	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// Store persists users.
//
// FindByEmail and FindByID fail with [sserr.CodeNotFoundUser] when no user
// matches. Create fails with [sserr.CodeConflictAlreadyExists] when the
// email is taken. Emails passed in are already normalized.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

// userNotFound and emailTaken accept a nil cause; the memory store has
// no underlying error to wrap.
func userNotFound(cause error, key, value string) *sserr.Error {
	e := sserr.New(sserr.CodeNotFoundUser, "users: user not found")
	e.Cause = cause
	return e.WithDetail(key, value)
}

func emailTaken(cause error, email string) *sserr.Error {
	e := sserr.New(sserr.CodeConflictAlreadyExists, "users: email already registered")
	e.Cause = cause
	return e.WithDetail("email", email)
}
