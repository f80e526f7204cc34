package events

import (
	"sync"

	"vouchermarket/core/types"
)

// Memory retains the most recent events in a fixed-size ring so the RPC
// surface can serve them to indexers without an external bus.
type Memory struct {
	mu     sync.Mutex
	buf    []*types.Event
	next   int
	filled bool
}

// NewMemory creates a ring buffer holding up to capacity events.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Memory{buf: make([]*types.Event, capacity)}
}

// Emit implements the Emitter interface. Events that do not carry a typed
// payload are recorded with their type only.
func (m *Memory) Emit(evt Event) {
	if m == nil || evt == nil {
		return
	}
	payload, ok := evt.(interface{ Event() *types.Event })
	var record *types.Event
	if ok && payload.Event() != nil {
		record = payload.Event()
	} else {
		record = &types.Event{Type: evt.EventType()}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf[m.next] = record
	m.next++
	if m.next == len(m.buf) {
		m.next = 0
		m.filled = true
	}
}

// Recent returns up to limit events, oldest first. A non-positive limit
// returns everything retained.
func (m *Memory) Recent(limit int) []*types.Event {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var ordered []*types.Event
	if m.filled {
		ordered = append(ordered, m.buf[m.next:]...)
	}
	ordered = append(ordered, m.buf[:m.next]...)
	if limit > 0 && len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}
	return ordered
}
