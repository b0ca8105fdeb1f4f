package memory

import (
	"sync"

	"github.com/hupe1980/agentflow/core"
)

// Memory is a ring buffer of messages. A capacity <= 0 makes it unbounded.
//
// Concurrency: protected by RWMutex so flows may read a transcript while the
// owning loop appends.
type Memory struct {
	mu       sync.RWMutex
	capacity int
	buf      []core.Message
	start    int // index of the oldest message when bounded
	size     int
}

// New creates a memory holding at most capacity messages.
func New(capacity int) *Memory {
	m := &Memory{capacity: capacity}
	if capacity > 0 {
		m.buf = make([]core.Message, capacity)
	}
	return m
}

// Append stores a copy of msg, evicting the oldest message when full. Tool
// messages are evicted together with the assistant message that issued their
// call, so the log never starts with an orphaned tool message.
func (m *Memory) Append(msg core.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg = msg.Clone()
	if m.capacity <= 0 {
		m.buf = append(m.buf, msg)
		m.size++
		return
	}
	if m.size < m.capacity {
		m.buf[(m.start+m.size)%m.capacity] = msg
		m.size++
		return
	}
	m.buf[m.start] = msg
	m.start = (m.start + 1) % m.capacity
	m.dropOrphans()
}

// dropOrphans evicts tool messages left at the head after their assistant
// message was evicted. Callers hold the lock.
func (m *Memory) dropOrphans() {
	for m.size > 0 && m.buf[m.start].Role == core.RoleTool {
		m.buf[m.start] = core.Message{}
		m.start = (m.start + 1) % m.capacity
		m.size--
	}
}

// AppendAll appends messages in order.
func (m *Memory) AppendAll(msgs ...core.Message) {
	for _, msg := range msgs {
		m.Append(msg)
	}
}

// Len returns the number of retained messages.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Cap returns the configured capacity (<= 0 when unbounded).
func (m *Memory) Cap() int { return m.capacity }

// All returns every retained message, oldest first.
func (m *Memory) All() []core.Message {
	return m.Recent(-1)
}

// Recent returns up to n of the most recent messages, oldest first. A
// negative n returns everything. Tool messages whose assistant message falls
// outside the window are left out, so fewer than n may be returned.
func (m *Memory) Recent(n int) []core.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n < 0 || n > m.size {
		n = m.size
	}
	first := m.size - n
	for first < m.size && m.at(first).Role == core.RoleTool {
		first++
	}
	out := make([]core.Message, 0, m.size-first)
	for i := first; i < m.size; i++ {
		out = append(out, m.at(i).Clone())
	}
	return out
}

// Last returns the most recent message.
func (m *Memory) Last() (core.Message, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.size == 0 {
		return core.Message{}, false
	}
	return m.at(m.size - 1).Clone(), true
}

// at maps a logical position (0 = oldest) to the stored message. Callers hold the lock.
func (m *Memory) at(i int) core.Message {
	if m.capacity <= 0 {
		return m.buf[i]
	}
	return m.buf[(m.start+i)%m.capacity]
}
