package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/tart/internal/host/hosttest"
	"github.com/GriffinCanCode/tart/internal/types"
)

func runDemo(ctx context.Context, e *env, args []string) error {
	flagSet := newFlagSet(e, "demo", "[--listen <addr>] [--echo] [--session <command>]...")
	listen := flagSet.String("listen", "127.0.0.1:7878", "address to serve the bridge on")
	echo := flagSet.Bool("echo", true, "echo written data back as output")
	seed := flagSet.StringArray("session", nil, "pre-create a session running this command, repeatable")
	if _, err := parse(flagSet, args, 0); err != nil {
		return err
	}

	fake := hosttest.New()
	fake.Echo = *echo
	for i, program := range *seed {
		fake.AddSession(types.Session{
			ID:      fmt.Sprintf("demo-%d", i+1),
			Command: program,
			Size:    types.PtySize{Rows: uint16(e.cfg.Terminal.DefaultRows), Cols: uint16(e.cfg.Terminal.DefaultCols)},
		})
	}

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", *listen, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ipc", fake)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	e.logger.Info("Serving demo host",
		zap.String("url", "ws://"+ln.Addr().String()+"/ipc"),
		zap.Int("sessions", len(*seed)))
	fmt.Fprintf(e.stdout, "ws://%s/ipc\n", ln.Addr())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
