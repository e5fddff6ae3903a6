// Package models defines the records the identity service persists.
//
// A [User] is created the first time an email address logs in through the
// external identity provider and is looked up on every later login. An
// [ActivationToken] is a single-use token issued for a user and consumed
// once.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LoginType records how a user account came to exist.
type LoginType string

const (
	// LoginTypeWeb3Auth marks accounts created by an external provider login.
	LoginTypeWeb3Auth LoginType = "WEB3AUTH"

	// LoginTypeSystem marks accounts created by operators or internal
	// tooling. It is the zero-configuration default.
	LoginTypeSystem LoginType = "SYSTEM"
)

// String returns the string representation of the login type.
func (t LoginType) String() string {
	return string(t)
}

// Valid reports whether the login type is one of the recognized values.
func (t LoginType) Valid() bool {
	return t == LoginTypeWeb3Auth || t == LoginTypeSystem
}

// User is an account of the identity service. Email is unique without
// regard to case; stores keep it normalized with [NormalizeEmail].
type User struct {
	ID    string `json:"id" db:"id"`
	Email string `json:"email" db:"email"`

	// Password is unused by provider logins and never serialized.
	Password *string `json:"-" db:"password"`

	// WalletAddress is the address supplied on the login that created the
	// account. Nil when none was known.
	WalletAddress *string `json:"wallet_address,omitempty" db:"wallet_address"`

	Active    bool      `json:"active" db:"active"`
	LoginType LoginType `json:"login_type" db:"login_type"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewWeb3AuthUser returns an active provider-login user with a fresh UUID
// and UTC timestamps. An empty wallet leaves WalletAddress nil.
func NewWeb3AuthUser(email, wallet string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, errors.New("models: user email must not be empty")
	}

	now := time.Now().UTC()
	u := &User{
		ID:        uuid.NewString(),
		Email:     email,
		Active:    true,
		LoginType: LoginTypeWeb3Auth,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if wallet = strings.TrimSpace(wallet); wallet != "" {
		u.WalletAddress = &wallet
	}
	return u, nil
}

// Validate checks required fields and the login type.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("models: user ID is required")
	}
	if _, err := uuid.Parse(u.ID); err != nil {
		return fmt.Errorf("models: user ID %q is not a UUID", u.ID)
	}
	if u.Email == "" {
		return errors.New("models: user email is required")
	}
	if u.Email != NormalizeEmail(u.Email) {
		return fmt.Errorf("models: user email %q is not normalized", u.Email)
	}
	if !u.LoginType.Valid() {
		return fmt.Errorf("models: invalid login type %q", u.LoginType)
	}
	if u.CreatedAt.IsZero() || u.UpdatedAt.IsZero() {
		return errors.New("models: user timestamps are required")
	}
	return nil
}

// Wallet returns the stored wallet address, or "" when none is stored.
func (u *User) Wallet() string {
	if u.WalletAddress == nil {
		return ""
	}
	return *u.WalletAddress
}
