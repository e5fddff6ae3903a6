// Package activation manages single-use activation tokens issued to users.
//
// A token is created for a user, can be checked any number of times while
// unused, and is consumed by exactly one successful [Service.Activate].
// Consumption is a conditional update in the store, so two concurrent
// activations of one token yield one true and one false.
package activation

import (
	"context"
	"time"

	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// Store persists activation tokens.
//
// FindByToken fails with [sserr.CodeNotFoundActivationToken] when no token
// matches. MarkActivated sets the activation time only on an unused token
// and reports whether it did.
type Store interface {
	Create(ctx context.Context, token *models.ActivationToken) error
	FindByToken(ctx context.Context, token string) (*models.ActivationToken, error)
	MarkActivated(ctx context.Context, token string, at time.Time) (bool, error)
}

func tokenNotFound(cause error) *sserr.Error {
	e := sserr.New(sserr.CodeNotFoundActivationToken, "activation: token not found")
	e.Cause = cause
	return e
}
