package terminal

// Disposer releases a resource
type Disposer interface {
	Dispose()
}

// DisposerFunc adapts a function to Disposer
type DisposerFunc func()

// Dispose calls f
func (f DisposerFunc) Dispose() {
	if f != nil {
		f()
	}
}

// Viewport is the container an emulator is rendered into
type Viewport interface {
	// ProposeDimensions returns the grid that fits the container, or false
	// while the container has no measurable size.
	ProposeDimensions() (rows, cols int, ok bool)
}

// Emulator is the terminal widget capability. Implementations need not be
// safe for concurrent use; the Synchronizer serializes all access.
type Emulator interface {
	Write(data string)
	Rows() int
	Cols() int
	Resize(rows, cols int)
	Serialize() string
	Open(v Viewport)
	OnData(fn func(data string)) Disposer
	Dispose()
}

// Options describes a new emulator instance
type Options struct {
	Rows    int
	Cols    int
	Content string
}

// Factory creates an emulator sized to opts and seeded with opts.Content
type Factory func(opts Options) Emulator

// Size is a grid size
type Size struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// State is the snapshot carried from a discarded emulator to its replacement
type State struct {
	Size    Size   `json:"size"`
	Content string `json:"content"`
}

// Capture snapshots em
func Capture(em Emulator) State {
	return State{
		Size:    Size{Rows: em.Rows(), Cols: em.Cols()},
		Content: em.Serialize(),
	}
}

// Fit resizes em to the viewport's proposed grid. It reports whether the
// grid changed; fitting an already fitted emulator is a no-op.
func Fit(em Emulator, v Viewport) bool {
	if em == nil || v == nil {
		return false
	}
	rows, cols, ok := v.ProposeDimensions()
	if !ok || rows <= 0 || cols <= 0 {
		return false
	}
	if rows == em.Rows() && cols == em.Cols() {
		return false
	}
	em.Resize(rows, cols)
	return true
}

// FixedViewport is a Viewport with a constant size
type FixedViewport struct {
	Rows int
	Cols int
}

// ProposeDimensions returns the fixed size
func (v FixedViewport) ProposeDimensions() (int, int, bool) {
	return v.Rows, v.Cols, v.Rows > 0 && v.Cols > 0
}

// ViewportFunc adapts a function to Viewport
type ViewportFunc func() (rows, cols int, ok bool)

// ProposeDimensions calls f
func (f ViewportFunc) ProposeDimensions() (int, int, bool) {
	return f()
}
