package storage

import (
	"sync"

	"github.com/google/uuid"

	"github.com/lnwallet/walletdb/internal/domain/fiat"
)

// MetadataQueue buffers metadata rows that arrive before their payment
// record does. The engine enqueues a row, and the store drains it inside the
// transaction that first inserts the matching payment.
//
// The queue is deliberately non-durable: entries that are never consumed are
// lost on restart, and the engine re-derives them from source data.
type MetadataQueue struct {
	mu      sync.Mutex
	pending map[uuid.UUID]PaymentMetadata
	rates   fiat.RateProvider
}

// NewMetadataQueue creates an empty queue stamping rates from the provider.
func NewMetadataQueue(rates fiat.RateProvider) *MetadataQueue {
	if rates == nil {
		rates = fiat.NopProvider{}
	}
	return &MetadataQueue{
		pending: make(map[uuid.UUID]PaymentMetadata),
		rates:   rates,
	}
}

// Enqueue buffers a metadata row for the payment id, replacing any earlier
// entry under the same id.
func (q *MetadataQueue) Enqueue(id uuid.UUID, row PaymentMetadata) {
	q.mu.Lock()
	defer q.mu.Unlock()
	row.PaymentID = id
	q.pending[id] = row
}

// DequeueAndAugment pops the entry for id, or constructs an empty one, and
// stamps the current fiat exchange rate unless the row already fixed one.
// The stamp happens exactly once, at persist time.
func (q *MetadataQueue) DequeueAndAugment(id uuid.UUID) PaymentMetadata {
	q.mu.Lock()
	row, ok := q.pending[id]
	if ok {
		delete(q.pending, id)
	}
	q.mu.Unlock()

	if !ok {
		row = PaymentMetadata{PaymentID: id}
	}
	if !row.HasOriginalFiat() {
		if rate, known := q.rates.OriginalFiat(); known {
			row.OriginalFiatCurrency = rate.Currency
			row.OriginalFiatRate = rate.Price
		}
	}
	return row
}

// Len returns the number of unconsumed entries.
func (q *MetadataQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
