// Package id provides centralized ID generation for the client bridge.
//
// This package offers type-safe ULID generation with:
//   - Lexicographic sortability: request ids order by creation time in logs
//   - Prefixed types: type-specific prefixes for debugging (req_*, sub_*, lsn_*)
//   - Type safety: separate types prevent mixing request and subscription ids
//
// Session ids are never generated here. They are assigned by the host and
// treated as opaque strings.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// RequestID correlates one bridge request with its reply
type RequestID string

// SubscriptionID identifies one listener registered with the event demultiplexer
type SubscriptionID string

// ListenerID identifies one channel listener registered with the host
type ListenerID string

// ============================================================================
// ID Prefixes (for debugging and type identification)
// ============================================================================

const (
	RequestPrefix      = "req"
	SubscriptionPrefix = "sub"
	ListenerPrefix     = "lsn"
)

// ============================================================================
// ULID Generator
// ============================================================================

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// ============================================================================
// Typed ID Generators
// ============================================================================

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewSubscriptionID generates a new subscription ID
func NewSubscriptionID() SubscriptionID {
	return SubscriptionID(Default().GenerateWithPrefix(SubscriptionPrefix))
}

// NewListenerID generates a new listener ID
func NewListenerID() ListenerID {
	return ListenerID(Default().GenerateWithPrefix(ListenerPrefix))
}

func (id RequestID) String() string      { return string(id) }
func (id SubscriptionID) String() string { return string(id) }
func (id ListenerID) String() string     { return string(id) }

// Parse parses a ULID string, stripping a known prefix if present
func Parse(id string) (ulid.ULID, error) {
	if i := strings.IndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	return ulid.Parse(id)
}

// Timestamp extracts the timestamp from a ULID
func Timestamp(id string) (time.Time, error) {
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
