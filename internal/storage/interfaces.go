// Package storage defines the persistence contracts of the payments
// database: payment records, on-chain transaction state, the metadata
// side-table, paginated queries and contacts.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lnwallet/walletdb/internal/domain/contact"
	"github.com/lnwallet/walletdb/internal/domain/payment"
)

// ErrNotFound reports that an operation referenced an id that does not
// exist. Recoverable; surfaced to the caller.
var ErrNotFound = errors.New("not found")

// ErrDuplicateID reports an insert collision. This is a logic error in the
// caller and is never silently ignored.
var ErrDuplicateID = errors.New("duplicate id")

// PaymentInfo is the join of a payment record with its metadata, plus the
// contact decoration attached at read time. Metadata is the zero value when
// no side-table row exists.
type PaymentInfo struct {
	Payment  payment.Payment
	Metadata PaymentMetadata
	Contact  *contact.Info
}

// PaymentStore persists incoming and outgoing payment records. A record
// lives in exactly one of the two tables, keyed by its id.
type PaymentStore interface {
	// InsertPayment persists a new record, merging any metadata enqueued
	// under the same id within the same transaction. Fails with
	// ErrDuplicateID when the id already exists in either table.
	InsertPayment(ctx context.Context, p payment.Payment) (payment.Payment, error)

	// UpdatePayment replaces the payload of an existing record. Completion
	// timestamps only move forward; fails with ErrNotFound when absent.
	UpdatePayment(ctx context.Context, p payment.Payment) (payment.Payment, error)

	// GetPayment looks up a record and its metadata across both tables.
	GetPayment(ctx context.Context, id uuid.UUID) (payment.Payment, PaymentMetadata, error)

	// ListPaymentsForTx returns every record referencing the transaction.
	ListPaymentsForTx(ctx context.Context, txID string) ([]payment.Payment, error)

	// DeletePayment removes a record. The deletion notification is
	// suppressed when notify is false (bulk passes).
	DeletePayment(ctx context.Context, id uuid.UUID, notify bool) error
}

// OnChainStore tracks the lock/confirm state of on-chain transactions and
// propagates it into every referencing payment record. Unknown transaction
// ids are a no-op, not an error.
type OnChainStore interface {
	MarkLocked(ctx context.Context, txID string) error
	MarkConfirmed(ctx context.Context, txID string) error

	// ListUnconfirmed returns the ids of transactions that are locked but
	// not yet confirmed, for the external chain-watcher to poll.
	ListUnconfirmed(ctx context.Context) ([]string, error)
}

// MetadataStore persists the metadata side-table. Rows are keyed by payment
// id but carry no foreign key: metadata may exist before its payment row.
type MetadataStore interface {
	GetMetadata(ctx context.Context, id uuid.UUID) (PaymentMetadata, error)

	// UpdateUserInfo writes the user-authored fields. System-authored
	// fields already present are never blanked by this path.
	UpdateUserInfo(ctx context.Context, id uuid.UUID, description, notes string) error
}

// QueryStore produces the paginated joined views the feed engine re-runs on
// change notifications. Completed sets order newest-first by completion
// time; in-flight sets by creation time.
type QueryStore interface {
	ListPayments(ctx context.Context, count, skip int64) ([]PaymentInfo, error)
	ListInFlight(ctx context.Context, count, skip int64) ([]PaymentInfo, error)
	ListRecent(ctx context.Context, count, skip int64, since time.Time) ([]PaymentInfo, error)
	ListCompletedInRange(ctx context.Context, count, skip int64, start, end time.Time) ([]PaymentInfo, error)

	CountPayments(ctx context.Context) (int64, error)
	CountCompletedInRange(ctx context.Context, start, end time.Time) (int64, error)
	OldestCompletedAt(ctx context.Context) (*time.Time, error)
}

// ContactStore persists contacts.
type ContactStore interface {
	SaveContact(ctx context.Context, c contact.Info) (contact.Info, error)
	UpdateContact(ctx context.Context, c contact.Info) (contact.Info, error)
	GetContact(ctx context.Context, id uuid.UUID) (contact.Info, error)
	ListContacts(ctx context.Context) ([]contact.Info, error)
	DeleteContact(ctx context.Context, id uuid.UUID) error

	// DetachOffer removes an offer link from whichever contact carries it.
	DetachOffer(ctx context.Context, offerID string) error
}
