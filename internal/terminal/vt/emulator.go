// Package vt is a small screen-buffer terminal emulator.
//
// It understands printable graphemes, carriage return, line feed,
// backspace, tabs, auto-wrap, cursor movement (CUU, CUD, CUF, CUB, CNL,
// CPL, CHA, VPA, CUP, HVP) and erasure (EL, ED). Every other escape
// sequence is consumed without effect. That is enough to serialize a
// buffer and rebuild it byte for byte, which is what session swaps need.
package vt

import (
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"

	"github.com/GriffinCanCode/tart/internal/terminal"
)

const (
	defaultRows       = 24
	defaultCols       = 80
	defaultScrollback = 1000
	tabWidth          = 8
	// maxCarry bounds an unterminated escape held across writes
	maxCarry = 4096
)

// Emulator is an in-memory terminal screen with scrollback
type Emulator struct {
	mu sync.Mutex

	rows, cols int
	scrollback int

	// lines holds scrollback followed by the screen; the screen is the
	// last rows lines and len(lines) >= rows.
	lines []line
	// cursor, relative to the top of the screen
	cx, cy      int
	wrapPending bool
	carry       string

	viewport  terminal.Viewport
	listeners map[int]func(string)
	nextID    int
	disposed  bool
}

// New creates an emulator with the given grid and scrollback limit,
// seeded with content.
func New(rows, cols, scrollback int, content string) *Emulator {
	if rows <= 0 {
		rows = defaultRows
	}
	if cols <= 0 {
		cols = defaultCols
	}
	if scrollback < 0 {
		scrollback = defaultScrollback
	}

	e := &Emulator{
		rows:       rows,
		cols:       cols,
		scrollback: scrollback,
		lines:      make([]line, rows),
		listeners:  make(map[int]func(string)),
	}
	if content != "" {
		e.Write(content)
	}
	return e
}

// Factory returns a terminal.Factory producing emulators with the given
// scrollback limit
func Factory(scrollback int) terminal.Factory {
	return func(opts terminal.Options) terminal.Emulator {
		return New(opts.Rows, opts.Cols, scrollback, opts.Content)
	}
}

// Rows returns the screen height
func (e *Emulator) Rows() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rows
}

// Cols returns the screen width
func (e *Emulator) Cols() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cols
}

// Cursor returns the cursor position relative to the top of the screen
func (e *Emulator) Cursor() (row, col int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	col = e.cx
	if col >= e.cols {
		col = e.cols - 1
	}
	return e.cy, col
}

// Line returns screen row i rendered without trailing blanks
func (e *Emulator) Line(i int) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= e.rows {
		return ""
	}
	return e.lines[e.top()+i].render()
}

// Open attaches the emulator to a viewport
func (e *Emulator) Open(v terminal.Viewport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.viewport = v
}

// Viewport returns the viewport passed to Open
func (e *Emulator) Viewport() terminal.Viewport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewport
}

// OnData registers fn for user input
func (e *Emulator) OnData(fn func(data string)) terminal.Disposer {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return terminal.DisposerFunc(nil)
	}
	key := e.nextID
	e.nextID++
	e.listeners[key] = fn

	return terminal.DisposerFunc(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners, key)
	})
}

// Input simulates user keystrokes: data is passed to every OnData listener
func (e *Emulator) Input(data string) {
	e.mu.Lock()
	fns := make([]func(string), 0, len(e.listeners))
	for i := 0; i < e.nextID; i++ {
		if fn, ok := e.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(data)
	}
}

// Disposed reports whether Dispose was called
func (e *Emulator) Disposed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disposed
}

// Dispose releases listeners; later writes are ignored
func (e *Emulator) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disposed = true
	e.listeners = make(map[int]func(string))
	e.viewport = nil
}

// Serialize returns the buffer, scrollback included, as lines joined by
// CRLF. Blank lines after both the last content and the cursor are
// dropped and the final line carries no terminator. When the cursor is
// anywhere but the end of the last line, a cursor position follows, so
// writing the result into a fresh emulator of the same size serializes
// identically and the next output lands in the same cell.
func (e *Emulator) Serialize() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	last := e.top() + e.cy
	for i := len(e.lines) - 1; i > last; i-- {
		if !e.lines[i].blank() {
			last = i
			break
		}
	}

	out := make([]string, 0, last+1)
	for i := 0; i <= last; i++ {
		out = append(out, e.lines[i].render())
	}
	return strings.Join(out, "\r\n") + e.restoreCursor(last)
}

// restoreCursor returns the sequence that moves the cursor of an emulator
// seeded with lines [0, last] from the end of line last to this cursor.
// A pending wrap is restored by printing the final cell again.
func (e *Emulator) restoreCursor(last int) string {
	top := max(last+1-e.rows, 0)
	row := e.top() + e.cy - top
	if row == last-top && e.cx == e.lines[last].width() {
		return ""
	}
	if !e.wrapPending {
		return cursorPosition(row, e.cx)
	}

	l := e.current()
	col := e.cols - 1
	if col > 0 && col < len(l) && l[col] == wideTail {
		col--
	}
	cell := " "
	if col < len(l) && l[col] != "" {
		cell = l[col]
	}
	return cursorPosition(row, col) + cell
}

// cursorPosition is CUP for a zero-based row and column
func cursorPosition(row, col int) string {
	return "\x1b[" + strconv.Itoa(row+1) + ";" + strconv.Itoa(col+1) + "H"
}

// Resize changes the grid. Lines are not reflowed; growing pulls lines
// back from scrollback, shrinking drops blank lines below the cursor
// before pushing lines into scrollback.
func (e *Emulator) Resize(rows, cols int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rows <= 0 || cols <= 0 || e.disposed {
		return
	}

	abs := e.top() + e.cy
	for len(e.lines) > rows && len(e.lines)-1 > abs && e.lines[len(e.lines)-1].blank() {
		e.lines = e.lines[:len(e.lines)-1]
	}
	for len(e.lines) < rows {
		e.lines = append(e.lines, nil)
	}

	e.rows = rows
	e.cols = cols
	for i := range e.lines {
		e.lines[i] = e.lines[i].truncate(cols)
	}

	e.cy = clamp(abs-e.top(), 0, rows-1)
	e.cx = clamp(e.cx, 0, cols-1)
	e.wrapPending = false
	e.trimScrollback()
}

// Write feeds output to the screen. An escape sequence split across
// writes is held until it completes.
func (e *Emulator) Write(data string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return
	}

	data = e.carry + data
	e.carry = ""
	data, e.carry = splitIncomplete(data)

	var state byte
	for len(data) > 0 {
		seq, width, n, next := ansi.DecodeSequence(data, state, nil)
		state = next
		if n <= 0 {
			n = 1
			seq = data[:1]
		}
		data = data[n:]

		if width > 0 {
			e.print(seq, width)
			continue
		}
		e.control(seq)
	}
}

func (e *Emulator) top() int {
	return len(e.lines) - e.rows
}

func (e *Emulator) current() line {
	return e.lines[e.top()+e.cy]
}

func (e *Emulator) setCurrent(l line) {
	e.lines[e.top()+e.cy] = l
}

func (e *Emulator) print(g string, width int) {
	if e.wrapPending || e.cx+width > e.cols {
		e.cx = 0
		e.lineFeed()
	}
	e.wrapPending = false

	l := e.current().set(e.cx, g)
	if width == 2 && e.cx+1 < e.cols {
		l = l.set(e.cx+1, wideTail)
	}
	e.setCurrent(l)

	e.cx += width
	if e.cx >= e.cols {
		e.cx = e.cols
		e.wrapPending = true
	}
}

func (e *Emulator) lineFeed() {
	e.wrapPending = false
	if e.cy < e.rows-1 {
		e.cy++
		return
	}
	e.lines = append(e.lines, nil)
	e.trimScrollback()
}

func (e *Emulator) trimScrollback() {
	if over := len(e.lines) - e.rows - e.scrollback; over > 0 {
		e.lines = append([]line{}, e.lines[over:]...)
	}
}

// control applies a zero-width sequence
func (e *Emulator) control(seq string) {
	if len(seq) == 1 {
		switch seq[0] {
		case '\r':
			e.cx = 0
			e.wrapPending = false
		case '\n', '\v', '\f':
			e.lineFeed()
		case '\b':
			e.clampCursor()
			if e.cx > 0 {
				e.cx--
			}
		case '\t':
			e.clampCursor()
			e.cx = min((e.cx/tabWidth+1)*tabWidth, e.cols-1)
		}
		return
	}

	if strings.HasPrefix(seq, "\x1b[") && len(seq) >= 3 {
		e.csi(seq[2:len(seq)-1], seq[len(seq)-1])
	}
}

// clampCursor leaves the pending-wrap column
func (e *Emulator) clampCursor() {
	e.wrapPending = false
	if e.cx >= e.cols {
		e.cx = e.cols - 1
	}
}

func (e *Emulator) csi(params string, final byte) {
	// Private and intermediate forms carry modes we do not model
	if params != "" && strings.ContainsAny(params[:1], "<=>?") {
		return
	}
	for i := 0; i < len(params); i++ {
		if params[i] >= 0x20 && params[i] <= 0x2f {
			return
		}
	}

	args := parseParams(params)
	n := func(i int) int {
		if i < len(args) && args[i] > 0 {
			return args[i]
		}
		return 1
	}

	e.clampCursor()
	switch final {
	case 'A':
		e.cy = max(e.cy-n(0), 0)
	case 'B':
		e.cy = min(e.cy+n(0), e.rows-1)
	case 'C':
		e.cx = min(e.cx+n(0), e.cols-1)
	case 'D':
		e.cx = max(e.cx-n(0), 0)
	case 'E':
		e.cy = min(e.cy+n(0), e.rows-1)
		e.cx = 0
	case 'F':
		e.cy = max(e.cy-n(0), 0)
		e.cx = 0
	case 'G':
		e.cx = clamp(n(0)-1, 0, e.cols-1)
	case 'd':
		e.cy = clamp(n(0)-1, 0, e.rows-1)
	case 'H', 'f':
		e.cy = clamp(n(0)-1, 0, e.rows-1)
		e.cx = clamp(n(1)-1, 0, e.cols-1)
	case 'K':
		e.eraseLine(arg(args, 0))
	case 'J':
		e.eraseDisplay(arg(args, 0))
	}
}

func (e *Emulator) eraseLine(mode int) {
	l := e.current()
	switch mode {
	case 0:
		l = l.clear(e.cx, len(l))
	case 1:
		l = l.clear(0, e.cx+1)
	case 2:
		l = nil
	}
	e.setCurrent(l)
}

func (e *Emulator) eraseDisplay(mode int) {
	top := e.top()
	switch mode {
	case 0:
		e.eraseLine(0)
		for i := top + e.cy + 1; i < len(e.lines); i++ {
			e.lines[i] = nil
		}
	case 1:
		for i := top; i < top+e.cy; i++ {
			e.lines[i] = nil
		}
		e.eraseLine(1)
	case 2:
		for i := top; i < len(e.lines); i++ {
			e.lines[i] = nil
		}
	case 3:
		// Scrollback only; the screen stays
		e.lines = append([]line{}, e.lines[top:]...)
	}
}
