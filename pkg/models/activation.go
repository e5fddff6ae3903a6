package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ActivationToken is a single-use token issued for a user. It is usable
// until ActivatedAt is set.
type ActivationToken struct {
	ID          string     `json:"id" db:"id"`
	Token       string     `json:"token" db:"token"`
	UserID      string     `json:"user_id" db:"user_id"`
	ActivatedAt *time.Time `json:"activated_at,omitempty" db:"activated_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// NewActivationToken returns an unused token for userID. The token value
// is a random UUID distinct from the record ID.
func NewActivationToken(userID string) (*ActivationToken, error) {
	if userID == "" {
		return nil, errors.New("models: activation token user ID must not be empty")
	}
	now := time.Now().UTC()
	return &ActivationToken{
		ID:        uuid.NewString(),
		Token:     uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Usable reports whether the token has not been activated yet.
func (t *ActivationToken) Usable() bool {
	return t.ActivatedAt == nil
}

// Activate marks the token used at now. It returns false, leaving the
// token unchanged, when the token was already used.
func (t *ActivationToken) Activate(now time.Time) bool {
	if !t.Usable() {
		return false
	}
	now = now.UTC()
	t.ActivatedAt = &now
	t.UpdatedAt = now
	return true
}
