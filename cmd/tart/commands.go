package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/tart/internal/client"
	"github.com/GriffinCanCode/tart/internal/command"
	"github.com/GriffinCanCode/tart/internal/sessions"
	"github.com/GriffinCanCode/tart/internal/types"
)

// rejected turns a failed command result into an error
func rejected[T any](name string, r command.Result[T, sessions.Failure]) error {
	if r.Success() {
		return nil
	}
	if r.Malformed() {
		return fmt.Errorf("%s: host returned a malformed result", name)
	}
	detail := "null"
	if failure, _ := r.Failure(); failure != nil {
		detail = string(*failure)
	}
	return fmt.Errorf("%s rejected by host: %s", name, detail)
}

func runList(ctx context.Context, e *env, args []string) error {
	flagSet := newFlagSet(e, "list", "[--json]")
	asJSON := flagSet.Bool("json", false, "print sessions as JSON")
	if _, err := parse(flagSet, args, 0); err != nil {
		return err
	}

	c, err := e.connect(ctx, client.Options{})
	if err != nil {
		return err
	}
	defer c.Close()

	result, err := c.Sessions().List(ctx)
	if err != nil {
		return err
	}
	if err := rejected(sessions.CmdList, result); err != nil {
		return err
	}

	list := result.Value()
	if list == nil {
		list = []types.Session{}
	}
	if *asJSON {
		return printJSON(e.stdout, list)
	}
	return printSessions(e.stdout, list)
}

func runCreate(ctx context.Context, e *env, args []string) error {
	flagSet := newFlagSet(e, "create", "--command <program> [--arg <arg>]... [--title <title>]")
	program := flagSet.String("command", "", "program to run")
	argv := flagSet.StringArray("arg", nil, "program argument, repeatable")
	title := flagSet.String("title", "", "session title")
	if _, err := parse(flagSet, args, 0); err != nil {
		return err
	}
	if *program == "" {
		return usagef("create: --command is required")
	}

	req := types.CreateRequest{Command: *program, Args: *argv}
	if flagSet.Changed("title") {
		req.Title = title
	}

	c, err := e.connect(ctx, client.Options{})
	if err != nil {
		return err
	}
	defer c.Close()

	result, err := c.Sessions().Create(ctx, req)
	if err != nil {
		return err
	}
	if err := rejected(sessions.CmdCreate, result); err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, result.Value().ID)
	return nil
}

func runWrite(ctx context.Context, e *env, args []string) error {
	flagSet := newFlagSet(e, "write", "<id> <data>")
	newline := flagSet.BoolP("newline", "n", false, "append a carriage return")
	pos, err := parse(flagSet, args, 2)
	if err != nil {
		return err
	}

	data := pos[1]
	if *newline {
		data += "\r"
	}

	return ack(ctx, e, sessions.CmdWrite, func(api *sessions.API) (sessions.Ack, error) {
		return api.Write(ctx, pos[0], data)
	})
}

func runResize(ctx context.Context, e *env, args []string) error {
	flagSet := newFlagSet(e, "resize", "<id> <rows> <cols>")
	pos, err := parse(flagSet, args, 3)
	if err != nil {
		return err
	}

	rows, err := parseDimension("rows", pos[1])
	if err != nil {
		return err
	}
	cols, err := parseDimension("cols", pos[2])
	if err != nil {
		return err
	}

	return ack(ctx, e, sessions.CmdResize, func(api *sessions.API) (sessions.Ack, error) {
		return api.Resize(ctx, pos[0], rows, cols)
	})
}

func runRemove(ctx context.Context, e *env, args []string) error {
	flagSet := newFlagSet(e, "remove", "<id>")
	pos, err := parse(flagSet, args, 1)
	if err != nil {
		return err
	}

	return ack(ctx, e, sessions.CmdRemove, func(api *sessions.API) (sessions.Ack, error) {
		return api.Remove(ctx, pos[0])
	})
}

// ack connects, runs one command and reports its outcome
func ack(ctx context.Context, e *env, name string, fn func(*sessions.API) (sessions.Ack, error)) error {
	c, err := e.connect(ctx, client.Options{})
	if err != nil {
		return err
	}
	defer c.Close()

	result, err := fn(c.Sessions())
	if err != nil {
		return err
	}
	return rejected(name, result)
}

func parseDimension(name, value string) (uint16, error) {
	n, err := strconv.ParseUint(value, 10, 16)
	if err != nil || n == 0 {
		return 0, usagef("resize: %s must be a positive integer, got %q", name, value)
	}
	return uint16(n), nil
}

func printSessions(w io.Writer, list []types.Session) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCOMMAND\tSIZE")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%dx%d\n", s.ID, s.DisplayName(), s.Command, s.Size.Rows, s.Size.Cols)
	}
	return tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
