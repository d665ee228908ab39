// Package types defines the session data model shared by every layer of
// the client bridge.
//
// Field names and JSON tags match the host's wire format exactly: sessions
// arrive as {id, command, args, title, size{rows, cols, pixel_width,
// pixel_height}}. A null args list decodes to a nil slice and a null title
// to a nil pointer.
package types
