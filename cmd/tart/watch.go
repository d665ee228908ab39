package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/GriffinCanCode/tart/internal/api/middleware"
	"github.com/GriffinCanCode/tart/internal/client"
	"github.com/GriffinCanCode/tart/internal/events"
	"github.com/GriffinCanCode/tart/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tart/internal/infrastructure/server"
	"github.com/GriffinCanCode/tart/internal/types"
)

func runWatch(ctx context.Context, e *env, args []string) error {
	flagSet := newFlagSet(e, "watch", "[--diag-addr <addr>] [--output]")
	diagAddr := flagSet.String("diag-addr", e.cfg.Diagnostics.Addr, "serve diagnostics on this address")
	showOutput := flagSet.Bool("output", false, "also print session output events")
	if _, err := parse(flagSet, args, 0); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := monitoring.NewMetrics(reg)

	c, err := e.connect(ctx, client.Options{Metrics: metrics})
	if err != nil {
		return err
	}
	defer c.Close()

	var mu sync.Mutex
	printf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(e.stdout, format, args...)
	}

	stop := c.Directory().Watch(func(list []types.Session) {
		ids := make([]string, len(list))
		for i, s := range list {
			ids[i] = s.ID
		}
		printf("sessions (%d): %s\n", len(list), strings.Join(ids, " "))
	})
	defer stop()

	subs, err := watchEvents(ctx, c.Events(), newPalette(e.stdout), *showOutput, printf)
	if err != nil {
		return err
	}
	defer func() {
		for _, sub := range subs {
			sub.Close()
		}
	}()

	if err := c.Start(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	diagErr := make(chan error, 1)
	if *diagAddr != "" {
		srv := server.New(server.Options{
			Addr:     *diagAddr,
			Sessions: c.Directory(),
			Metrics:  metrics,
			Gatherer: reg,
			Breaker:  c.Breaker(),
			RateLimit: &middleware.RateLimitConfig{
				RequestsPerSecond: e.cfg.Diagnostics.RequestsPerSecond,
				Burst:             e.cfg.Diagnostics.Burst,
				IdleTimeout:       middleware.DefaultRateLimitConfig().IdleTimeout,
			},
			Logger:      e.logger.Logger,
			Development: e.cfg.Logging.Development,
		})
		go func() { diagErr <- srv.Run(ctx) }()
	}

	select {
	case <-ctx.Done():
		return nil
	case <-c.Done():
		return fmt.Errorf("host connection closed")
	case err := <-diagErr:
		return err
	}
}

// palette colors event labels; colors are off unless w is a terminal
type palette struct {
	created *color.Color
	resized *color.Color
	removed *color.Color
	output  *color.Color
}

func newPalette(w io.Writer) palette {
	p := palette{
		created: color.New(color.FgGreen),
		resized: color.New(color.FgYellow),
		removed: color.New(color.FgRed),
		output:  color.New(color.Faint),
	}
	if f, _ := w.(*os.File); !isTerminal(f) {
		for _, c := range []*color.Color{p.created, p.resized, p.removed, p.output} {
			c.DisableColor()
		}
	}
	return p
}

// watchEvents prints every lifecycle event, and output when asked to
func watchEvents(ctx context.Context, demux *events.Demux, p palette, output bool, printf func(string, ...any)) ([]*events.Subscription, error) {
	var subs []*events.Subscription
	add := func(sub *events.Subscription, err error) error {
		if err != nil {
			return err
		}
		subs = append(subs, sub)
		return nil
	}
	fail := func(err error) ([]*events.Subscription, error) {
		for _, sub := range subs {
			sub.Close()
		}
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	if err := add(events.OnCreated(ctx, demux, func(ev events.SessionCreated) {
		printf("%s %s\n", p.created.Sprint("created"), ev.ID)
	})); err != nil {
		return fail(err)
	}
	if err := add(events.OnResized(ctx, demux, func(ev events.SessionResized) {
		if ev.Size != nil {
			printf("%s %s %dx%d\n", p.resized.Sprint("resized"), ev.ID, ev.Size.Rows, ev.Size.Cols)
			return
		}
		printf("%s %s\n", p.resized.Sprint("resized"), ev.ID)
	})); err != nil {
		return fail(err)
	}
	if err := add(events.OnRemoved(ctx, demux, func(ev events.SessionRemoved) {
		printf("%s %s\n", p.removed.Sprint("removed"), ev.ID)
	})); err != nil {
		return fail(err)
	}
	if output {
		if err := add(events.OnOutput(ctx, demux, func(ev events.SessionOutput) {
			printf("%s %s %q\n", p.output.Sprint("output"), ev.ID, ev.Data)
		})); err != nil {
			return fail(err)
		}
	}

	return subs, nil
}
