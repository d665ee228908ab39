package types

// PtySize is the grid and pixel size of a host-side terminal
type PtySize struct {
	Rows        uint16 `json:"rows"`
	Cols        uint16 `json:"cols"`
	PixelWidth  uint16 `json:"pixel_width"`
	PixelHeight uint16 `json:"pixel_height"`
}

// Session describes one live terminal session as reported by the host.
// Sessions are read-only on the client; the host is the source of truth.
type Session struct {
	ID      string   `json:"id"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
	Title   *string  `json:"title"`
	Size    PtySize  `json:"size"`
}

// DisplayName returns the title when set, otherwise the command
func (s Session) DisplayName() string {
	if s.Title != nil && *s.Title != "" {
		return *s.Title
	}
	return s.Command
}

// CreateRequest is the payload of the create command
type CreateRequest struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
	Title   *string  `json:"title"`
}

// WriteRequest is the payload of the write command
type WriteRequest struct {
	ID   string `json:"id"`
	Data string `json:"data"`
}

// ResizeRequest is the payload of the resize command
type ResizeRequest struct {
	ID   string `json:"id"`
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
}

// RemoveRequest is the payload of the remove command
type RemoveRequest struct {
	ID string `json:"id"`
}
