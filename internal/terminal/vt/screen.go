package vt

import "strings"

// wideTail marks the second cell of a double-width grapheme
const wideTail = "\x00"

// line is one row of cells. Cells past the end of the slice are blank;
// a blank cell inside the slice is "".
type line []string

func (l line) render() string {
	var b strings.Builder
	for _, c := range l {
		switch c {
		case wideTail:
		case "":
			b.WriteByte(' ')
		default:
			b.WriteString(c)
		}
	}
	return strings.TrimRight(b.String(), " ")
}

func (l line) blank() bool {
	for _, c := range l {
		if c != "" && c != " " && c != wideTail {
			return false
		}
	}
	return true
}

// width is the number of cells up to and including the last non-blank one
func (l line) width() int {
	for i := len(l) - 1; i >= 0; i-- {
		if l[i] == "" || l[i] == " " || l[i] == wideTail {
			continue
		}
		if i+1 < len(l) && l[i+1] == wideTail {
			return i + 2
		}
		return i + 1
	}
	return 0
}

// set writes cell col, growing the line as needed
func (l line) set(col int, g string) line {
	for len(l) <= col {
		l = append(l, "")
	}
	l[col] = g
	return l
}

// clear blanks cells [from, to)
func (l line) clear(from, to int) line {
	if to > len(l) {
		to = len(l)
	}
	for i := from; i < to; i++ {
		l[i] = ""
	}
	return l
}

func (l line) truncate(cols int) line {
	if len(l) > cols {
		return l[:cols]
	}
	return l
}
