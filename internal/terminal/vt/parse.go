package vt

import (
	"strconv"
	"strings"
)

// parseParams parses CSI numeric parameters. Empty or invalid entries are 0.
// Sub-parameters after ':' are ignored.
func parseParams(params string) []int {
	if params == "" {
		return nil
	}
	parts := strings.Split(params, ";")
	out := make([]int, len(parts))
	for i, p := range parts {
		if j := strings.IndexByte(p, ':'); j >= 0 {
			p = p[:j]
		}
		v, err := strconv.Atoi(p)
		if err == nil && v > 0 {
			out[i] = v
		}
	}
	return out
}

func arg(args []int, i int) int {
	if i < len(args) {
		return args[i]
	}
	return 0
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// splitIncomplete splits data before an escape sequence that is not
// terminated yet. The held part is returned as rest.
func splitIncomplete(data string) (complete, rest string) {
	i := strings.LastIndexByte(data, 0x1b)
	if i < 0 {
		return data, ""
	}
	tail := data[i:]
	if len(tail) > maxCarry {
		return data, ""
	}
	if len(tail) == 1 {
		return data[:i], tail
	}

	switch b := tail[1]; {
	case b == '[':
		for j := 2; j < len(tail); j++ {
			if tail[j] >= 0x40 && tail[j] <= 0x7e {
				return data, ""
			}
		}
		return data[:i], tail
	case b == ']' || b == 'P' || b == '_' || b == '^' || b == 'X':
		// String sequences end with BEL or ST; ST starts with ESC, so an
		// ESC found here is never the terminator.
		if strings.IndexByte(tail, 0x07) >= 0 {
			return data, ""
		}
		return data[:i], tail
	case b >= 0x20 && b <= 0x2f:
		// ESC followed by an intermediate needs one more byte
		if len(tail) == 2 {
			return data[:i], tail
		}
	}
	return data, ""
}
