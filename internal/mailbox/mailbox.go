package mailbox

import (
	"context"
	"sync"
)

// Mailbox is a coalescing FIFO of keys. A key is pending at most once:
// putting a key that is already waiting is a no-op, so a burst of triggers
// for the same job collapses into a single run. Keys are taken in the order
// they were first put.
type Mailbox[K comparable] struct {
	mu      sync.Mutex
	order   []K
	pending map[K]struct{}
	notify  chan struct{}
}

// New creates an empty mailbox.
func New[K comparable]() *Mailbox[K] {
	return &Mailbox[K]{
		pending: make(map[K]struct{}),
		notify:  make(chan struct{}, 1),
	}
}

// Put queues k unless it is already pending. It never blocks and reports
// whether k was added.
func (m *Mailbox[K]) Put(k K) bool {
	m.mu.Lock()
	if _, ok := m.pending[k]; ok {
		m.mu.Unlock()
		return false
	}
	m.pending[k] = struct{}{}
	m.order = append(m.order, k)
	m.mu.Unlock()

	m.signal()
	return true
}

func (m *Mailbox[K]) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Take blocks until a key is available or ctx is done.
func (m *Mailbox[K]) Take(ctx context.Context) (K, bool) {
	for {
		if k, ok := m.TryTake(); ok {
			return k, true
		}
		select {
		case <-ctx.Done():
			var zero K
			return zero, false
		case <-m.notify:
		}
	}
}

// TryTake returns the oldest pending key without blocking.
func (m *Mailbox[K]) TryTake() (K, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.order) == 0 {
		var zero K
		return zero, false
	}
	k := m.order[0]
	m.order = m.order[1:]
	delete(m.pending, k)

	// wake another taker if more work is left
	if len(m.order) > 0 {
		m.signal()
	}
	return k, true
}

// Pending reports whether k is waiting.
func (m *Mailbox[K]) Pending(k K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[k]
	return ok
}

// Len returns the number of pending keys.
func (m *Mailbox[K]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}
