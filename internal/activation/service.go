package activation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

const tracerName = "github.com/StricklySoft/stricklysoft-identity/internal/activation"

// DefaultTimeout bounds the store calls of one operation.
const DefaultTimeout = 5 * time.Second

// ServiceConfig configures a [Service].
type ServiceConfig struct {
	// Timeout bounds the store calls of one operation. Zero means
	// [DefaultTimeout].
	Timeout time.Duration `json:"timeout" yaml:"timeout" env:"IDENTITY_ACTIVATION_TIMEOUT"`
}

// Option configures a [Service].
type Option func(*Service)

// WithClock overrides the time source used to stamp activations.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service creates, checks and consumes activation tokens. It is safe for
// concurrent use.
type Service struct {
	store   Store
	timeout time.Duration
	now     func() time.Time
	tracer  trace.Tracer
}

// NewService returns a service over store.
func NewService(store Store, cfg ServiceConfig, opts ...Option) *Service {
	s := &Service{
		store:   store,
		timeout: cfg.Timeout,
		now:     time.Now,
		tracer:  otel.Tracer(tracerName),
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create issues a new unused token for userID and returns its value.
//
// Error codes returned:
//   - [sserr.CodeValidationRequired]: blank user ID
//   - [sserr.CodeTimeoutDatabase], [sserr.CodeInternalDatabase]: store failure
func (s *Service) Create(ctx context.Context, userID string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "activation.Create",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		err := sserr.New(sserr.CodeValidationRequired, "activation: user ID is required")
		fail(span, err)
		return "", err
	}
	t, err := models.NewActivationToken(userID)
	if err != nil {
		err = sserr.Wrap(err, sserr.CodeValidation, "activation: invalid token")
		fail(span, err)
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.store.Create(ctx, t); err != nil {
		err = classify(err)
		fail(span, err)
		return "", err
	}
	slog.InfoContext(ctx, "activation: created token", "user_id", userID, "token_id", t.ID)
	return t.Token, nil
}

// Validate reports whether token exists and has not been activated. An
// unknown token is not an error.
func (s *Service) Validate(ctx context.Context, token string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "activation.Validate")
	defer span.End()

	if token == "" {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	t, err := s.store.FindByToken(ctx, token)
	switch {
	case sserr.IsNotFound(err):
		return false, nil
	case err != nil:
		err = classify(err)
		fail(span, err)
		return false, err
	}
	return t.Usable(), nil
}

// Activate consumes token. It returns false when the token is unknown or
// already used; only one of several concurrent calls for one token
// returns true.
func (s *Service) Activate(ctx context.Context, token string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "activation.Activate")
	defer span.End()

	if token == "" {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ok, err := s.store.MarkActivated(ctx, token, s.now())
	if err != nil {
		err = classify(err)
		fail(span, err)
		return false, err
	}
	span.SetAttributes(attribute.Bool("activation.activated", ok))
	if ok {
		slog.InfoContext(ctx, "activation: token activated")
	}
	return ok, nil
}

// classify gives uncoded store errors a code.
func classify(err error) error {
	if _, ok := sserr.AsError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return sserr.Wrap(err, sserr.CodeTimeoutDatabase, "activation: store call timed out")
	}
	return sserr.Wrap(err, sserr.CodeInternalDatabase, "activation: store call failed")
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
