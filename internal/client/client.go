package client

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/tart/internal/command"
	"github.com/GriffinCanCode/tart/internal/directory"
	"github.com/GriffinCanCode/tart/internal/events"
	"github.com/GriffinCanCode/tart/internal/host"
	"github.com/GriffinCanCode/tart/internal/infrastructure/config"
	"github.com/GriffinCanCode/tart/internal/infrastructure/logging"
	"github.com/GriffinCanCode/tart/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tart/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/tart/internal/sessions"
	"github.com/GriffinCanCode/tart/internal/terminal"
	"github.com/GriffinCanCode/tart/internal/terminal/vt"
	"github.com/GriffinCanCode/tart/internal/types"
)

// Options configures a Client
type Options struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
	// Factory creates emulators for synchronizers. Defaults to the vt
	// emulator with the configured scrollback.
	Factory terminal.Factory
	// OnWriteError receives input writes the host did not accept
	OnWriteError func(sessionID string, err error)
}

// Client wires the host, the command codec, the event demultiplexer and
// the session directory together.
type Client struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *monitoring.Metrics
	factory terminal.Factory
	onWrite func(string, error)

	host    host.Host
	closer  func() error
	done    <-chan struct{}
	breaker *resilience.Breaker

	executor  *command.Executor
	api       *sessions.API
	demux     *events.Demux
	directory *directory.Directory
}

// Connect dials the host bridge at the configured URL and builds a Client
// on top of it. The bridge is closed with the Client.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := logging.OrNop(opts.Logger)

	var breaker *resilience.Breaker
	if cfg.Breaker.Enabled {
		breaker = resilience.New("host", resilience.Settings{
			Timeout:     cfg.Breaker.Timeout,
			ReadyToTrip: resilience.ConsecutiveFailures(cfg.Breaker.ConsecutiveFailures),
			OnStateChange: func(name string, from, to resilience.State) {
				logger.Warn("Circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}

	bridge, err := host.Dial(ctx, cfg.Host.URL, host.Options{
		Breaker: breaker,
		Logger:  logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to host at %s: %w", cfg.Host.URL, err)
	}
	logger.Info("Connected to host", zap.String("url", cfg.Host.URL))

	opts.Config = cfg
	c := New(bridge, opts)
	c.closer = bridge.Close
	c.done = bridge.Done()
	c.breaker = breaker
	return c, nil
}

// New builds a Client on an existing host. The host is not closed by
// Close.
func New(h host.Host, opts Options) *Client {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := logging.OrNop(opts.Logger)

	factory := opts.Factory
	if factory == nil {
		factory = vt.Factory(cfg.Terminal.Scrollback)
	}

	executor := command.NewExecutor(h,
		command.WithEntry(cfg.Host.CommandEntry),
		command.WithLogger(logger),
		command.WithMetrics(opts.Metrics))
	api := sessions.New(executor)
	demux := events.New(h, events.Options{
		Channel: cfg.Host.EventChannel,
		Logger:  logger,
		Metrics: opts.Metrics,
	})
	dir := directory.New(api, demux, directory.Options{
		Logger:  logger,
		Metrics: opts.Metrics,
	})

	return &Client{
		cfg:       cfg,
		logger:    logger,
		metrics:   opts.Metrics,
		factory:   factory,
		onWrite:   opts.OnWriteError,
		host:      h,
		executor:  executor,
		api:       api,
		demux:     demux,
		directory: dir,
	}
}

// Start starts the session directory
func (c *Client) Start(ctx context.Context) error {
	if err := c.directory.Start(ctx); err != nil {
		return fmt.Errorf("failed to start directory: %w", err)
	}
	return nil
}

// Sessions returns the typed session command API
func (c *Client) Sessions() *sessions.API {
	return c.api
}

// Events returns the event demultiplexer
func (c *Client) Events() *events.Demux {
	return c.demux
}

// Directory returns the session directory
func (c *Client) Directory() *directory.Directory {
	return c.directory
}

// Breaker returns the host circuit breaker, or nil when disabled or when
// the Client was built on an existing host.
func (c *Client) Breaker() *resilience.Breaker {
	return c.breaker
}

// Done is closed when the bridge owned by the Client shuts down. It is
// nil, and so never ready, for a Client built with New.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Config returns the effective configuration
func (c *Client) Config() *config.Config {
	return c.cfg
}

// Synchronizer creates an unmounted synchronizer bound to session. A zero
// session size falls back to the configured default grid.
func (c *Client) Synchronizer(session types.Session) *terminal.Synchronizer {
	if session.Size.Rows == 0 || session.Size.Cols == 0 {
		session.Size.Rows = uint16(c.cfg.Terminal.DefaultRows)
		session.Size.Cols = uint16(c.cfg.Terminal.DefaultCols)
	}

	onWrite := c.onWrite
	if onWrite == nil {
		onWrite = func(id string, err error) {
			c.logger.Warn("Input not delivered", zap.String("session", id), zap.Error(err))
		}
	}

	return terminal.New(terminal.Deps{
		Source:          c.demux,
		Writer:          c.api,
		Factory:         c.factory,
		Logger:          c.logger,
		Metrics:         c.metrics,
		PropagateResize: c.cfg.Terminal.PropagateResize,
		OnWriteError:    onWrite,
	}, session)
}

// Close stops the directory, releases the event listener and closes the
// bridge when the Client owns it.
func (c *Client) Close() error {
	var errs []error
	if err := c.directory.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close directory: %w", err))
	}
	if err := c.demux.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close events: %w", err))
	}
	if c.closer != nil {
		if err := c.closer(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close host: %w", err))
		}
	}
	return errors.Join(errs...)
}
