package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

const tracerName = "github.com/StricklySoft/stricklysoft-identity/pkg/lifecycle"

// Hook runs during a transition. A non-nil error aborts the transition and
// moves the service to [StateFailed].
type Hook func(ctx context.Context) error

// StateChangeHandler observes transitions. Handlers run synchronously under
// the state lock and must not call back into the service. A panicking
// handler is recovered and logged.
type StateChangeHandler func(old, new State)

// Info is a point-in-time snapshot of a service.
type Info struct {
	Name      string        `json:"name"`
	Version   string        `json:"version"`
	State     State         `json:"state"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
}

// Service drives a process through its lifecycle. It is safe for
// concurrent use. Build one with [NewBuilder].
type Service struct {
	name    string
	version string

	mu        sync.RWMutex
	state     State
	startedAt *time.Time

	tracer trace.Tracer
	logger *slog.Logger

	onStart  Hook
	onStop   Hook
	handlers []StateChangeHandler
}

// Name returns the service name.
func (s *Service) Name() string { return s.name }

// Version returns the service version.
func (s *Service) Version() string { return s.version }

// State returns the current state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Info returns a snapshot of the service. Uptime is only reported while
// running.
func (s *Service) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{Name: s.name, Version: s.version, State: s.state}
	if s.startedAt != nil && s.state == StateRunning {
		t := *s.startedAt
		info.StartedAt = &t
		info.Uptime = time.Since(t)
	}
	return info
}

// Health returns nil while running and [sserr.CodeUnavailable] otherwise.
func (s *Service) Health(context.Context) error {
	if state := s.State(); state != StateRunning {
		return sserr.Newf(sserr.CodeUnavailable,
			"lifecycle: %s is not running, current state is %q", s.name, state)
	}
	return nil
}

// SetState moves the service to next, failing with [sserr.CodeConflict]
// when the transition is not allowed.
func (s *Service) SetState(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.state
	if !ValidTransition(old, next) {
		return sserr.Newf(sserr.CodeConflict,
			"lifecycle: invalid state transition from %q to %q", old, next)
	}
	s.state = next

	for _, h := range s.handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("lifecycle: state change handler panicked",
						"panic", r,
						"service", s.name,
						"old_state", string(old),
						"new_state", string(next),
					)
				}
			}()
			h(old, next)
		}()
	}
	return nil
}

// Start moves the service through Starting to Running, running the start
// hook in between. A canceled ctx fails with [sserr.CodeTimeout] without
// changing state; a failing hook leaves the service Failed and returns
// [sserr.CodeInternal] unless the hook's error is already coded.
func (s *Service) Start(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "lifecycle.Start")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return s.fail(span, sserr.Wrap(err, sserr.CodeTimeout,
			"lifecycle: start canceled before execution"))
	}
	if err := s.SetState(StateStarting); err != nil {
		return s.fail(span, err)
	}
	s.logger.InfoContext(ctx, "lifecycle: starting", "service", s.name, "version", s.version)

	if err := s.runHook(ctx, s.onStart, "start"); err != nil {
		return s.fail(span, err)
	}
	if err := s.SetState(StateRunning); err != nil {
		return s.fail(span, err)
	}

	now := time.Now().UTC()
	s.mu.Lock()
	s.startedAt = &now
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: started", "service", s.name)
	span.SetStatus(codes.Ok, "")
	return nil
}

// Stop moves the service through Stopping to Stopped, running the stop
// hook in between. It is a no-op in a terminal state, so it is safe to
// defer.
func (s *Service) Stop(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "lifecycle.Stop")
	defer span.End()

	if s.State().IsTerminal() {
		span.SetStatus(codes.Ok, "")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return s.fail(span, sserr.Wrap(err, sserr.CodeTimeout,
			"lifecycle: stop canceled before execution"))
	}
	if err := s.SetState(StateStopping); err != nil {
		return s.fail(span, err)
	}
	s.logger.InfoContext(ctx, "lifecycle: stopping", "service", s.name)

	if err := s.runHook(ctx, s.onStop, "stop"); err != nil {
		return s.fail(span, err)
	}
	if err := s.SetState(StateStopped); err != nil {
		return s.fail(span, err)
	}

	s.mu.Lock()
	s.startedAt = nil
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: stopped", "service", s.name)
	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *Service) runHook(ctx context.Context, hook Hook, phase string) error {
	if hook == nil {
		return nil
	}
	err := hook(ctx)
	if err == nil {
		return nil
	}
	s.logger.ErrorContext(ctx, "lifecycle: "+phase+" hook failed",
		"service", s.name,
		"error", err,
	)
	_ = s.SetState(StateFailed)
	if _, coded := sserr.AsError(err); coded {
		return err
	}
	return sserr.Wrap(err, sserr.CodeInternal, "lifecycle: "+phase+" hook failed")
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.name", s.name),
			attribute.String("service.version", s.version),
		),
	)
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Builder assembles a [Service].
//
//	svc, err := lifecycle.NewBuilder("identityd", version).
//	    WithLogger(logger).
//	    WithOnStart(app.start).
//	    WithOnStop(app.stop).
//	    Build()
type Builder struct {
	name     string
	version  string
	logger   *slog.Logger
	onStart  Hook
	onStop   Hook
	handlers []StateChangeHandler
}

// NewBuilder starts a builder for a service called name.
func NewBuilder(name, version string) *Builder {
	return &Builder{name: name, version: version}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithOnStart sets the hook run between Starting and Running.
func (b *Builder) WithOnStart(hook Hook) *Builder {
	b.onStart = hook
	return b
}

// WithOnStop sets the hook run between Stopping and Stopped.
func (b *Builder) WithOnStop(hook Hook) *Builder {
	b.onStop = hook
	return b
}

// OnStateChange adds a transition observer. Nil handlers are ignored.
func (b *Builder) OnStateChange(h StateChangeHandler) *Builder {
	if h != nil {
		b.handlers = append(b.handlers, h)
	}
	return b
}

// Build validates the builder. An empty name or version fails with
// [sserr.CodeValidationRequired].
func (b *Builder) Build() (*Service, error) {
	if b.name == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "lifecycle: service name is required")
	}
	if b.version == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "lifecycle: service version is required")
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		name:     b.name,
		version:  b.version,
		state:    StateUnknown,
		tracer:   otel.Tracer(tracerName),
		logger:   logger,
		onStart:  b.onStart,
		onStop:   b.onStop,
		handlers: append([]StateChangeHandler(nil), b.handlers...),
	}, nil
}
