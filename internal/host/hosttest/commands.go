package hosttest

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/tart/internal/types"
)

// Error values use the host's unit-variant error encoding.
const (
	ErrClosedPty = "ClosedPty"
	ErrSpawn     = "CommandSpawn"
)

func (h *Host) getTerminals(Envelope) (json.RawMessage, error) {
	return Ok(h.Sessions()), nil
}

func (h *Host) createTerminal(env Envelope) (json.RawMessage, error) {
	var req types.CreateRequest
	if err := env.Decode(&req); err != nil || req.Command == "" {
		return Err(ErrSpawn), nil
	}

	session := types.Session{
		ID:      uuid.NewString(),
		Command: req.Command,
		Args:    req.Args,
		Title:   req.Title,
		Size:    types.PtySize{Rows: 24, Cols: 80},
	}

	h.mu.Lock()
	h.sessions = append(h.sessions, session)
	h.mu.Unlock()

	h.Emit(map[string]any{"type": "TerminalCreated", "id": session.ID})
	return Ok(session), nil
}

func (h *Host) writeData(env Envelope) (json.RawMessage, error) {
	var req types.WriteRequest
	if err := env.Decode(&req); err != nil {
		return Err(ErrClosedPty), nil
	}

	h.mu.Lock()
	_, ok := h.find(req.ID)
	if ok {
		h.writes[req.ID] = append(h.writes[req.ID], req.Data)
	}
	echo := h.Echo
	h.mu.Unlock()

	if !ok {
		return Err(ErrClosedPty), nil
	}
	if echo {
		h.EmitOutput(req.ID, req.Data)
	}
	return Ok(nil), nil
}

func (h *Host) resizeTerminal(env Envelope) (json.RawMessage, error) {
	var req types.ResizeRequest
	if err := env.Decode(&req); err != nil {
		return Err(ErrClosedPty), nil
	}

	h.mu.Lock()
	i, ok := h.find(req.ID)
	var size types.PtySize
	if ok {
		h.sessions[i].Size.Rows = req.Rows
		h.sessions[i].Size.Cols = req.Cols
		size = h.sessions[i].Size
	}
	h.mu.Unlock()

	if !ok {
		return Err(ErrClosedPty), nil
	}
	h.Emit(map[string]any{"type": "TerminalResized", "id": req.ID, "size": size})
	return Ok(nil), nil
}

func (h *Host) removeTerminal(env Envelope) (json.RawMessage, error) {
	var req types.RemoveRequest
	if err := env.Decode(&req); err != nil {
		return Err(ErrClosedPty), nil
	}

	h.mu.Lock()
	i, ok := h.find(req.ID)
	if ok {
		h.sessions = append(h.sessions[:i], h.sessions[i+1:]...)
		delete(h.writes, req.ID)
	}
	h.mu.Unlock()

	if !ok {
		return Err(ErrClosedPty), nil
	}
	h.Emit(map[string]any{"type": "TerminalRemoved", "id": req.ID})
	return Ok(nil), nil
}

// find returns the index of session id. Callers hold h.mu.
func (h *Host) find(sessionID string) (int, bool) {
	for i, s := range h.sessions {
		if s.ID == sessionID {
			return i, true
		}
	}
	return -1, false
}
