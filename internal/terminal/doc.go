// Package terminal keeps a terminal emulator in step with the output of
// a host session.
//
// A Synchronizer owns exactly one Emulator at a time. Output events for
// the bound session id are written to it verbatim and in delivery order;
// events for other ids are ignored unless the id was announced with
// Expect. Rebinding to a different id replaces the emulator with a fresh
// one seeded from a snapshot of the old buffer, so the visible content
// survives the swap. Input typed into the emulator is forwarded to the
// host through a sessions.Writer after the grid has been fitted to its
// viewport.
package terminal
