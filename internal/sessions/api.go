// Package sessions is the typed command surface for terminal sessions.
//
// Session ids are never validated locally; a stale id is sent as-is and
// the host's failure comes back as a normal failed Result.
package sessions

import (
	"context"
	"encoding/json"

	"github.com/GriffinCanCode/tart/internal/command"
	"github.com/GriffinCanCode/tart/internal/types"
)

// Logical command names
const (
	CmdList   = "get_terminals"
	CmdCreate = "create_terminal"
	CmdWrite  = "write_data"
	CmdResize = "resize_terminal"
	CmdRemove = "remove_terminal"
)

// Failure is the undecoded host error value
type Failure = json.RawMessage

// Ack is the result of commands whose success value carries nothing
type Ack = command.Result[json.RawMessage, Failure]

// Lister lists sessions
type Lister interface {
	List(ctx context.Context) (command.Result[[]types.Session, Failure], error)
}

// Writer sends input and size changes for a session
type Writer interface {
	Write(ctx context.Context, id, data string) (Ack, error)
	Resize(ctx context.Context, id string, rows, cols uint16) (Ack, error)
}

// API issues session commands through a command runner
type API struct {
	runner command.Runner
}

// New creates the session API
func New(runner command.Runner) *API {
	return &API{runner: runner}
}

// List returns the host's sessions in host order
func (a *API) List(ctx context.Context) (command.Result[[]types.Session, Failure], error) {
	return command.Execute[[]types.Session, Failure](ctx, a.runner, CmdList, nil)
}

// Create asks the host to start a session
func (a *API) Create(ctx context.Context, req types.CreateRequest) (command.Result[types.Session, Failure], error) {
	return command.Execute[types.Session, Failure](ctx, a.runner, CmdCreate, req)
}

// Write sends data to a session's input
func (a *API) Write(ctx context.Context, id, data string) (Ack, error) {
	return command.Execute[json.RawMessage, Failure](ctx, a.runner, CmdWrite, types.WriteRequest{ID: id, Data: data})
}

// Resize changes a session's grid size
func (a *API) Resize(ctx context.Context, id string, rows, cols uint16) (Ack, error) {
	return command.Execute[json.RawMessage, Failure](ctx, a.runner, CmdResize, types.ResizeRequest{ID: id, Rows: rows, Cols: cols})
}

// Remove ends a session
func (a *API) Remove(ctx context.Context, id string) (Ack, error) {
	return command.Execute[json.RawMessage, Failure](ctx, a.runner, CmdRemove, types.RemoveRequest{ID: id})
}
