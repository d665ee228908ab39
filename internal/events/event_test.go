package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/tart/internal/types"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		expected Event
	}{
		{
			name:     "created",
			payload:  `{"type":"TerminalCreated","id":"s1"}`,
			expected: SessionCreated{ID: "s1"},
		},
		{
			name:     "resized with size",
			payload:  `{"type":"TerminalResized","id":"s1","size":{"rows":30,"cols":100,"pixel_width":0,"pixel_height":0}}`,
			expected: SessionResized{ID: "s1", Size: &types.PtySize{Rows: 30, Cols: 100}},
		},
		{
			name:     "resized without size",
			payload:  `{"type":"TerminalResized","id":"s1"}`,
			expected: SessionResized{ID: "s1"},
		},
		{
			name:     "removed",
			payload:  `{"type":"TerminalRemoved","id":"s1"}`,
			expected: SessionRemoved{ID: "s1"},
		},
		{
			name:     "output",
			payload:  `{"type":"TerminalRead","id":"s1","data":"hello\r\n"}`,
			expected: SessionOutput{ID: "s1", Data: "hello\r\n"},
		},
		{
			name:    "unknown keeps remaining fields",
			payload: `{"type":"A","x":1}`,
			expected: Unknown{Type: "A", Fields: map[string]json.RawMessage{
				"x": json.RawMessage(`1`),
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := Decode(json.RawMessage(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, event)
			assert.Equal(t, tt.expected.Tag(), event.Tag())
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		noType  bool
	}{
		{name: "not json", payload: `nope`},
		{name: "not an object", payload: `[1]`},
		{name: "missing type", payload: `{"id":"s1"}`, noType: true},
		{name: "non-string type", payload: `{"type":7}`, noType: true},
		{name: "bad known field", payload: `{"type":"TerminalRead","id":5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(json.RawMessage(tt.payload))
			require.Error(t, err)
			if tt.noType {
				assert.ErrorIs(t, err, ErrNoDiscriminant)
			}
		})
	}
}
