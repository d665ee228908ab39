package events

import (
	"encoding/json"
	"sync"
)

// item is one queued payload, or a barrier when done is set
type item struct {
	payload json.RawMessage
	done    chan struct{}
}

// mailbox is an unbounded FIFO. Producers never block so the transport's
// read goroutine is never held up by slow handlers.
type mailbox struct {
	mu     sync.Mutex
	items  []item
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) push(it item) {
	m.mu.Lock()
	m.items = append(m.items, it)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) drain() []item {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}
