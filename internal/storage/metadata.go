package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMetadata is the side-table row attached to a payment record.
//
// UserDescription and UserNotes are user-authored and mutable at any time.
// The remaining fields are system-authored and write-once: they are set when
// the row is first persisted and never overwritten afterwards.
type PaymentMetadata struct {
	PaymentID uuid.UUID

	UserDescription string
	UserNotes       string

	// Original fiat value at payment creation time.
	OriginalFiatCurrency string
	OriginalFiatRate     decimal.Decimal

	// Origin carries the serialized payment-request metadata of the
	// received invoice or offer, when the engine supplied one.
	Origin string

	ModifiedAt *time.Time
}

// IsEmpty reports whether the row carries no information worth persisting.
func (m PaymentMetadata) IsEmpty() bool {
	return m.UserDescription == "" &&
		m.UserNotes == "" &&
		m.OriginalFiatCurrency == "" &&
		m.Origin == ""
}

// HasOriginalFiat reports whether the original fiat rate was already fixed.
func (m PaymentMetadata) HasOriginalFiat() bool {
	return m.OriginalFiatCurrency != ""
}
