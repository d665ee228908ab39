package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"

	"github.com/GriffinCanCode/tart/internal/client"
	"github.com/GriffinCanCode/tart/internal/events"
	"github.com/GriffinCanCode/tart/internal/sessions"
	"github.com/GriffinCanCode/tart/internal/terminal"
	"github.com/GriffinCanCode/tart/internal/types"
)

// detachKey ends an interactive attach (Ctrl-])
const detachKey = 0x1d

func runAttach(ctx context.Context, e *env, args []string) error {
	flagSet := newFlagSet(e, "attach", "<id> [--rows <n> --cols <n>]")
	rows := flagSet.Int("rows", 0, "fixed grid rows (default: terminal size)")
	cols := flagSet.Int("cols", 0, "fixed grid columns (default: terminal size)")
	pos, err := parse(flagSet, args, 1)
	if err != nil {
		return err
	}
	if (*rows > 0) != (*cols > 0) {
		return usagef("attach: --rows and --cols go together")
	}

	c, err := e.connect(ctx, client.Options{})
	if err != nil {
		return err
	}
	defer c.Close()

	session, err := lookup(ctx, c, pos[0])
	if err != nil {
		return err
	}

	stdinFile, _ := e.stdin.(*os.File)
	stdoutFile, _ := e.stdout.(*os.File)
	interactive := isTerminal(stdinFile)
	live := isTerminal(stdoutFile)

	ts := c.Synchronizer(session)
	if err := ts.Mount(ctx, viewport(stdoutFile, *rows, *cols)); err != nil {
		return err
	}
	defer ts.Close()

	if live && *rows == 0 {
		signals, stop := resizeSignals()
		defer stop()
		go ts.WatchResize(ctx, signals)
	}

	if live {
		sub, err := events.OnOutput(ctx, c.Events(), func(ev events.SessionOutput) {
			if ev.ID == session.ID {
				_, _ = io.WriteString(e.stdout, ev.Data)
			}
		})
		if err != nil {
			return err
		}
		defer sub.Close()
	}

	if interactive {
		fd := int(stdinFile.Fd())
		state, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("failed to enter raw mode: %w", err)
		}
		defer func() { _ = term.Restore(fd, state) }()
	}

	if err := pump(ctx, e, ts, interactive); err != nil {
		return err
	}

	// Output echoed for the last write is delivered before its reply
	if err := c.Events().Sync(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	// The snapshot's trailing cursor position means nothing to this terminal
	buffer := ansi.Strip(ts.Serialize())
	if !live {
		buffer = strings.ReplaceAll(buffer, "\r\n", "\n")
	}
	fmt.Fprintln(e.stdout, strings.TrimRight(buffer, "\r\n"))
	return nil
}

// lookup finds id in the host's list. An unknown id is attached as-is;
// the host rejects its writes.
func lookup(ctx context.Context, c *client.Client, id string) (types.Session, error) {
	result, err := c.Sessions().List(ctx)
	if err != nil {
		return types.Session{}, err
	}
	for _, s := range result.Value() {
		if s.ID == id {
			return s, nil
		}
	}
	return types.Session{ID: id}, nil
}

func viewport(stdout *os.File, rows, cols int) terminal.Viewport {
	if rows > 0 && cols > 0 {
		return terminal.FixedViewport{Rows: rows, Cols: cols}
	}
	if isTerminal(stdout) {
		fd := int(stdout.Fd())
		return terminal.ViewportFunc(func() (int, int, bool) {
			width, height, err := term.GetSize(fd)
			return height, width, err == nil
		})
	}
	// Keep the session's own size
	return terminal.ViewportFunc(func() (int, int, bool) { return 0, 0, false })
}

func isTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// pump forwards stdin to the session until EOF, the detach key or ctx
func pump(ctx context.Context, e *env, ts *terminal.Synchronizer, interactive bool) error {
	chunks := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := e.stdin.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		case chunk := <-chunks:
			detach := false
			if interactive {
				if i := bytes.IndexByte(chunk, detachKey); i >= 0 {
					chunk, detach = chunk[:i], true
				}
			}
			if len(chunk) > 0 {
				result, err := ts.Write(ctx, string(chunk))
				if err != nil {
					return err
				}
				if err := rejected(sessions.CmdWrite, result); err != nil {
					fmt.Fprintf(e.stderr, "%v\r\n", err)
				}
			}
			if detach {
				return nil
			}
		}
	}
}
