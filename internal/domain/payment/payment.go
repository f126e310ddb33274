// Package payment defines the wallet payment records persisted by the
// payments database. A payment is a tagged variant: every record shares the
// same lifecycle fields (creation, completion, on-chain lock/confirm) and
// carries kind-specific details serialized alongside.
package payment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Direction indicates whether funds moved into or out of the wallet.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Kind classifies the payment variant.
type Kind string

const (
	// KindBolt11 is a Lightning payment against a bolt11 invoice.
	KindBolt11 Kind = "bolt11"

	// KindBolt12 is a Lightning payment against a bolt12 offer.
	KindBolt12 Kind = "bolt12"

	// KindLegacySwapIn is an on-chain swap-in from the legacy wallet format.
	KindLegacySwapIn Kind = "legacy_swap_in"

	// KindLegacyPayToOpen is a pay-to-open payment from the legacy wallet format.
	KindLegacyPayToOpen Kind = "legacy_pay_to_open"

	// KindChannelOpen is an incoming payment funded by a channel-open transaction.
	KindChannelOpen Kind = "channel_open"

	// KindLiquidityManual is an outgoing manual inbound-liquidity purchase.
	KindLiquidityManual Kind = "liquidity_manual"

	// KindLiquidityAuto is an outgoing automatic inbound-liquidity purchase.
	KindLiquidityAuto Kind = "liquidity_auto"

	// KindOnChainSpend is an outgoing on-chain spend (close, splice-out).
	KindOnChainSpend Kind = "onchain_spend"

	// KindUnknown is the placeholder for records whose payload could not be
	// decoded. The record is kept and displayed as unrecognized.
	KindUnknown Kind = "unknown"
)

// OnChain reports whether the kind settles through an on-chain transaction
// whose lock/confirm state drives the payment's completion timestamps.
func (k Kind) OnChain() bool {
	switch k {
	case KindChannelOpen, KindLiquidityManual, KindLiquidityAuto, KindOnChainSpend:
		return true
	default:
		return false
	}
}

// Status represents the lifecycle status of a payment.
type Status int32

const (
	StatusPending Status = iota
	StatusCompleted
	StatusFailed
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", s)
	}
}

// Payment is a single incoming or outgoing payment record.
//
// CompletedAt doubles as the received timestamp for incoming payments. For
// on-chain-backed kinds it is derived from the funding transaction's lock
// time and stays pinned there even after confirmation.
type Payment struct {
	ID        uuid.UUID
	Direction Direction
	Kind      Kind

	AmountMsat int64
	FeesMsat   int64

	CreatedAt   time.Time
	CompletedAt *time.Time
	FailedAt    *time.Time

	// On-chain settlement state, populated for kinds where OnChain() is true.
	TxID        string
	LockedAt    *time.Time
	ConfirmedAt *time.Time

	Details Details
}

// Status derives the lifecycle status. Terminal states are not reversible
// within this layer.
func (p Payment) Status() Status {
	switch {
	case p.FailedAt != nil:
		return StatusFailed
	case p.CompletedAt != nil:
		return StatusCompleted
	default:
		return StatusPending
	}
}

// ReceivedAt is the externally visible settlement time of an incoming
// payment. It is nil while the payment is in flight.
func (p Payment) ReceivedAt() *time.Time {
	return p.CompletedAt
}

// SetLocked records the funding transaction's lock time. Re-locking is a
// no-op. The first lock pins the completion timestamp for on-chain kinds.
func (p Payment) SetLocked(lockedAt time.Time) Payment {
	if p.LockedAt != nil {
		return p
	}
	t := lockedAt
	p.LockedAt = &t
	if p.Kind.OnChain() && p.CompletedAt == nil {
		p.CompletedAt = &t
	}
	return p
}

// SetConfirmed records the funding transaction's confirmation time.
// Re-confirming is a no-op. CompletedAt stays pinned to lock time.
func (p Payment) SetConfirmed(confirmedAt time.Time) Payment {
	if p.ConfirmedAt != nil {
		return p
	}
	t := confirmedAt
	p.ConfirmedAt = &t
	return p
}

// Placeholder builds the record shown for a row whose payload failed to
// decode, so that no payment silently disappears from view.
func Placeholder(id uuid.UUID) Payment {
	return Payment{ID: id, Kind: KindUnknown}
}

// MergeMonotonic applies updated on top of existing, preserving identity and
// refusing to move lifecycle timestamps backwards or from a concrete value
// back to null.
func MergeMonotonic(existing, updated Payment) Payment {
	updated.ID = existing.ID
	updated.Direction = existing.Direction
	if existing.Kind != KindUnknown {
		updated.Kind = existing.Kind
	}
	if !existing.CreatedAt.IsZero() {
		updated.CreatedAt = existing.CreatedAt
	}
	updated.CompletedAt = keepForward(existing.CompletedAt, updated.CompletedAt)
	updated.FailedAt = keepForward(existing.FailedAt, updated.FailedAt)
	updated.LockedAt = keepForward(existing.LockedAt, updated.LockedAt)
	updated.ConfirmedAt = keepForward(existing.ConfirmedAt, updated.ConfirmedAt)
	return updated
}

func keepForward(existing, updated *time.Time) *time.Time {
	if existing == nil {
		return updated
	}
	if updated == nil || updated.Before(*existing) {
		return existing
	}
	return updated
}
