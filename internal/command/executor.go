package command

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/tart/internal/host"
	"github.com/GriffinCanCode/tart/internal/infrastructure/logging"
	"github.com/GriffinCanCode/tart/internal/infrastructure/monitoring"
)

// DefaultEntry is the host RPC entry point every command is sent through
const DefaultEntry = "execute_command"

var (
	ErrEmptyName      = errors.New("command name is empty")
	ErrTransport      = errors.New("command transport failed")
	ErrMalformedReply = errors.New("malformed command reply")
	ErrDecode         = errors.New("failed to decode command result")
)

// Runner executes logical commands. Executor is the production Runner.
type Runner interface {
	Execute(ctx context.Context, name string, payload any) (Raw, error)
}

// Executor sends commands to the host's single RPC entry point
type Executor struct {
	invoker host.Invoker
	entry   string
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// Option configures an Executor
type Option func(*Executor)

// WithEntry overrides the host entry point name
func WithEntry(entry string) Option {
	return func(x *Executor) {
		if entry != "" {
			x.entry = entry
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(x *Executor) {
		x.logger = logging.OrNop(logger)
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(x *Executor) {
		x.metrics = metrics
	}
}

// NewExecutor creates an executor over invoker
func NewExecutor(invoker host.Invoker, opts ...Option) *Executor {
	x := &Executor{
		invoker: invoker,
		entry:   DefaultEntry,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(x)
	}
	x.logger = x.logger.Named("command")
	return x
}

// Execute sends one command and maps the reply onto a Result. The mapping
// is total for any well-formed reply: Ok present is success, else Err
// present is failure, else failure without a value. Only transport
// failures and unparseable replies return an error. There are no retries.
func (x *Executor) Execute(ctx context.Context, name string, payload any) (Raw, error) {
	if name == "" {
		return Raw{}, ErrEmptyName
	}

	env, err := NewEnvelope(name, payload)
	if err != nil {
		return Raw{}, err
	}

	timer := monitoring.NewTimer(x.metrics, env.Type)

	reply, err := x.invoker.Invoke(ctx, x.entry, map[string]any{"command": env})
	if err != nil {
		timer.Stop(monitoring.OutcomeError)
		x.logger.Debug("Command transport failed",
			zap.String("command", env.Type),
			zap.Error(err))
		return Raw{}, fmt.Errorf("%w: %s: %w", ErrTransport, env.Type, err)
	}

	result, err := decodeBare(reply, env)
	if err != nil {
		timer.Stop(monitoring.OutcomeError)
		x.logger.Debug("Command reply malformed",
			zap.String("command", env.Type),
			zap.Error(err))
		return Raw{}, err
	}

	timer.Stop(result.Outcome())
	x.logger.Debug("Command executed",
		zap.String("command", env.Type),
		zap.String("id", result.ID),
		zap.String("outcome", result.Outcome()))

	return result, nil
}

// Execute runs a command through r and decodes the outcome into T or E
func Execute[T, E any](ctx context.Context, r Runner, name string, payload any) (Result[T, E], error) {
	raw, err := r.Execute(ctx, name, payload)
	if err != nil {
		return Result[T, E]{}, err
	}
	return Decode[T, E](raw)
}
