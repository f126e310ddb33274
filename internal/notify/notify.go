// Package notify provides the in-process change-notification bus that
// reactive feeds and caches subscribe to. Changes capture row-level
// mutations on the logical tables of the payments database.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Topic identifies the logical table a change applies to.
type Topic string

const (
	// TopicPayments covers both the incoming and outgoing payment tables.
	TopicPayments Topic = "payments"

	// TopicOnChain covers the on-chain transactions table.
	TopicOnChain Topic = "onchain"

	// TopicMetadata covers the payments metadata side-table.
	TopicMetadata Topic = "metadata"

	// TopicContacts covers the contacts table.
	TopicContacts Topic = "contacts"
)

// Op classifies the kind of mutation.
type Op string

const (
	OpSaved   Op = "saved"
	OpDeleted Op = "deleted"
)

// Change is a single row-level change notification. Exactly one change is
// published per mutating store call, after its transaction commits.
type Change struct {
	Topic     Topic
	Op        Op
	PaymentID uuid.UUID
	ContactID uuid.UUID
	TxID      string
	At        time.Time
}

// Handler processes changes as they are published.
type Handler func(Change)

// Filter decides whether a change should be delivered to a handler.
type Filter func(Change) bool

// TopicFilter matches changes on any of the given topics.
func TopicFilter(topics ...Topic) Filter {
	return func(c Change) bool {
		for _, t := range topics {
			if c.Topic == t {
				return true
			}
		}
		return false
	}
}

// Bus is a thread-safe change bus with a bounded history ring. Handlers are
// invoked synchronously on the publishing goroutine, outside the bus lock;
// slow subscribers must hand work off themselves.
type Bus struct {
	mu       sync.RWMutex
	changes  []Change
	size     int
	head     int
	count    int
	handlers []handlerEntry
	nextID   int64
}

type handlerEntry struct {
	id      int64
	filter  Filter
	handler Handler
}

// NewBus creates a bus keeping the most recent size changes.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = 256
	}
	return &Bus{
		changes: make([]Change, size),
		size:    size,
	}
}

// Publish records a change and notifies subscribers.
func (b *Bus) Publish(change Change) {
	b.mu.Lock()
	if change.At.IsZero() {
		change.At = time.Now().UTC()
	}

	b.changes[b.head] = change
	b.head = (b.head + 1) % b.size
	if b.count < b.size {
		b.count++
	}

	handlers := make([]handlerEntry, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()

	// Notify handlers outside the lock
	for _, h := range handlers {
		if h.filter == nil || h.filter(change) {
			h.handler(change)
		}
	}
}

// Subscribe registers a handler for all changes and returns its
// unsubscribe function.
func (b *Bus) Subscribe(handler Handler) func() {
	return b.SubscribeFiltered(nil, handler)
}

// SubscribeFiltered registers a handler with a filter.
func (b *Bus) SubscribeFiltered(filter Filter, handler Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers = append(b.handlers, handlerEntry{
		id:      id,
		filter:  filter,
		handler: handler,
	})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, h := range b.handlers {
			if h.id == id {
				b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
				return
			}
		}
	}
}

// Recent returns the most recent n changes in reverse chronological order.
func (b *Bus) Recent(n int) []Change {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || b.count == 0 {
		return nil
	}
	if n > b.count {
		n = b.count
	}

	result := make([]Change, n)
	for i := 0; i < n; i++ {
		idx := (b.head - 1 - i + b.size) % b.size
		result[i] = b.changes[idx]
	}
	return result
}

// Count returns the number of changes retained in the ring.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}
