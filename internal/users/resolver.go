package users

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

const tracerName = "github.com/StricklySoft/stricklysoft-identity/internal/users"

// DefaultTimeout bounds the store calls of one Resolve or Lookup.
const DefaultTimeout = 5 * time.Second

// Identity is what a login or identity request returns to the client.
// WalletAddress is null when no wallet is known.
type Identity struct {
	UserID        string  `json:"userId"`
	Email         string  `json:"email"`
	WalletAddress *string `json:"walletAddress"`
}

// ResolverConfig configures a [Resolver].
type ResolverConfig struct {
	// Timeout bounds the store calls of one resolution. Zero means
	// [DefaultTimeout].
	Timeout time.Duration `json:"timeout" yaml:"timeout" env:"IDENTITY_RESOLVER_TIMEOUT"`
}

// Resolver maps verified emails to users. It is safe for concurrent use.
type Resolver struct {
	store   Store
	timeout time.Duration
	tracer  trace.Tracer
}

// NewResolver returns a resolver over store.
func NewResolver(store Store, cfg ResolverConfig) *Resolver {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{
		store:   store,
		timeout: timeout,
		tracer:  otel.Tracer(tracerName),
	}
}

// Resolve finds the user registered under email, creating an active
// WEB3AUTH user with the supplied wallet when none exists. The returned
// wallet is the stored one when present, otherwise wallet. A stored wallet
// is never overwritten.
//
// Error codes returned:
//   - [sserr.CodeValidationRequired]: blank email
//   - [sserr.CodeTimeoutDatabase]: the store did not answer in time
//   - other store errors keep their code; uncoded ones become
//     [sserr.CodeInternalDatabase]
func (r *Resolver) Resolve(ctx context.Context, email, wallet string) (*Identity, error) {
	ctx, span := r.tracer.Start(ctx, "users.Resolve")
	defer span.End()

	email = models.NormalizeEmail(email)
	if email == "" {
		err := sserr.New(sserr.CodeValidationRequired, "users: email is required")
		fail(span, err)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	u, err := r.findOrCreate(ctx, email, wallet)
	if err != nil {
		err = classify(err)
		fail(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", u.ID))

	id := identityOf(u)
	if id.WalletAddress == nil && wallet != "" {
		id.WalletAddress = &wallet
	}
	return id, nil
}

func (r *Resolver) findOrCreate(ctx context.Context, email, wallet string) (*models.User, error) {
	u, err := r.store.FindByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !sserr.IsNotFound(err) {
		return nil, err
	}

	u, err = models.NewWeb3AuthUser(email, wallet)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation, "users: invalid user")
	}

	err = r.store.Create(ctx, u)
	switch {
	case err == nil:
		slog.InfoContext(ctx, "users: created user", "user_id", u.ID)
		return u, nil
	case sserr.IsConflict(err):
		// A concurrent first login for the same email won.
		slog.DebugContext(ctx, "users: lost create race, reading winner", "email", email)
		winner, findErr := r.store.FindByEmail(ctx, email)
		if findErr != nil {
			return nil, findErr
		}
		return winner, nil
	default:
		return nil, err
	}
}

// Lookup returns the identity of a known user. A missing user fails with
// [sserr.CodeNotFoundUser].
func (r *Resolver) Lookup(ctx context.Context, userID string) (*Identity, error) {
	ctx, span := r.tracer.Start(ctx, "users.Lookup",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	u, err := r.store.FindByID(ctx, userID)
	if err != nil {
		err = classify(err)
		fail(span, err)
		return nil, err
	}
	return identityOf(u), nil
}

func identityOf(u *models.User) *Identity {
	id := &Identity{UserID: u.ID, Email: u.Email}
	if w := u.Wallet(); w != "" {
		id.WalletAddress = &w
	}
	return id
}

// classify gives uncoded store errors a code.
func classify(err error) error {
	if _, ok := sserr.AsError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return sserr.Wrap(err, sserr.CodeTimeoutDatabase, "users: store call timed out")
	}
	return sserr.Wrap(err, sserr.CodeInternalDatabase, "users: store call failed")
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
