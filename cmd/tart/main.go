package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/GriffinCanCode/tart/internal/client"
	"github.com/GriffinCanCode/tart/internal/infrastructure/config"
	"github.com/GriffinCanCode/tart/internal/infrastructure/logging"
)

// usageError is a command line mistake; it exits with status 2
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func (e *usageError) ExitCode() int { return 2 }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// env is what every subcommand runs with
type env struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	cfg    *config.Config
	logger *logging.Logger
}

// connect dials the configured host
func (e *env) connect(ctx context.Context, opts client.Options) (*client.Client, error) {
	opts.Config = e.cfg
	opts.Logger = e.logger.Logger
	return client.Connect(ctx, opts)
}

type subcommand struct {
	summary string
	run     func(ctx context.Context, e *env, args []string) error
}

var subcommands = map[string]subcommand{
	"list":   {summary: "list host sessions", run: runList},
	"create": {summary: "create a session", run: runCreate},
	"write":  {summary: "write data to a session", run: runWrite},
	"resize": {summary: "resize a session", run: runResize},
	"remove": {summary: "remove a session", run: runRemove},
	"watch":  {summary: "follow the session directory and lifecycle events", run: runWatch},
	"attach": {summary: "attach a terminal to a session", run: runAttach},
	"demo":   {summary: "serve an in-memory host for trying the client", run: runDemo},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg := config.LoadOrDefault()

	var (
		hostURL  string
		logLevel string
		dev      bool
	)
	flagSet := pflag.NewFlagSet("tart", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&hostURL, "host", "", "host bridge websocket URL (default "+cfg.Host.URL+")")
	flagSet.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.BoolVar(&dev, "dev", cfg.Logging.Development, "human readable debug logging")
	flagSet.Usage = func() { printUsage(stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return usagef("%v", err)
	}

	if hostURL != "" {
		cfg.Host.URL = hostURL
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	cfg.Logging.Development = dev

	rest := flagSet.Args()
	if len(rest) == 0 {
		printUsage(stderr, flagSet)
		return usagef("missing command")
	}

	cmd, ok := subcommands[rest[0]]
	if !ok {
		return usagef("unknown command %q", rest[0])
	}

	logger := logging.FromLevel(cfg.Logging.Level, cfg.Logging.Development)
	defer func() { _ = logger.Sync() }()

	err := cmd.run(ctx, &env{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		cfg:    cfg,
		logger: logger,
	}, rest[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	return err
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, "tart drives terminal sessions on a process host.\n\nUsage:\n  tart [flags] <command> [args]\n\nCommands:\n")

	names := make([]string, 0, len(subcommands))
	for name := range subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-8s %s\n", name, subcommands[name].summary)
	}

	fmt.Fprintf(w, "\nFlags:\n")
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}

// newFlagSet creates the flag set of a subcommand
func newFlagSet(e *env, name, usage string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.SetOutput(e.stderr)
	flagSet.Usage = func() {
		fmt.Fprintf(e.stderr, "Usage:\n  tart %s %s\n\nFlags:\n", name, usage)
		flagSet.PrintDefaults()
	}
	return flagSet
}

// parse parses a subcommand's flags and checks its positional count
func parse(flagSet *pflag.FlagSet, args []string, positional int) ([]string, error) {
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, usagef("%s: %v", flagSet.Name(), err)
	}
	if flagSet.NArg() != positional {
		return nil, usagef("%s: expected %d arguments, got %d", flagSet.Name(), positional, flagSet.NArg())
	}
	return flagSet.Args(), nil
}
