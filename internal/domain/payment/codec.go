package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrMalformedPayload reports that a persisted payment payload could not be
// decoded. Query paths degrade the affected row to a placeholder instead of
// dropping it.
var ErrMalformedPayload = errors.New("malformed payment payload")

const codecVersion = 1

// envelope is the serialized form of a payment. Timestamps are unix
// milliseconds.
type envelope struct {
	Version     int             `json:"v"`
	ID          string          `json:"id"`
	Direction   Direction       `json:"direction"`
	Kind        Kind            `json:"kind"`
	AmountMsat  int64           `json:"amount_msat"`
	FeesMsat    int64           `json:"fees_msat,omitempty"`
	CreatedAt   int64           `json:"created_at"`
	CompletedAt *int64          `json:"completed_at,omitempty"`
	FailedAt    *int64          `json:"failed_at,omitempty"`
	TxID        string          `json:"tx_id,omitempty"`
	LockedAt    *int64          `json:"locked_at,omitempty"`
	ConfirmedAt *int64          `json:"confirmed_at,omitempty"`
	Details     json.RawMessage `json:"details,omitempty"`
}

// Encode serializes a payment into its stored payload form.
func Encode(p Payment) ([]byte, error) {
	var details json.RawMessage
	if p.Details != nil {
		raw, err := json.Marshal(p.Details)
		if err != nil {
			return nil, fmt.Errorf("encode payment %s details: %w", p.ID, err)
		}
		details = raw
	}
	env := envelope{
		Version:     codecVersion,
		ID:          p.ID.String(),
		Direction:   p.Direction,
		Kind:        p.Kind,
		AmountMsat:  p.AmountMsat,
		FeesMsat:    p.FeesMsat,
		CreatedAt:   toMillis(p.CreatedAt),
		CompletedAt: toMillisPtr(p.CompletedAt),
		FailedAt:    toMillisPtr(p.FailedAt),
		TxID:        p.TxID,
		LockedAt:    toMillisPtr(p.LockedAt),
		ConfirmedAt: toMillisPtr(p.ConfirmedAt),
		Details:     details,
	}
	return json.Marshal(env)
}

// Decode deserializes a stored payload. Failures wrap ErrMalformedPayload.
func Decode(data []byte) (Payment, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Payment{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Version != codecVersion {
		return Payment{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedPayload, env.Version)
	}
	id, err := uuid.Parse(env.ID)
	if err != nil {
		return Payment{}, fmt.Errorf("%w: bad id %q", ErrMalformedPayload, env.ID)
	}

	p := Payment{
		ID:          id,
		Direction:   env.Direction,
		Kind:        env.Kind,
		AmountMsat:  env.AmountMsat,
		FeesMsat:    env.FeesMsat,
		CreatedAt:   fromMillis(env.CreatedAt),
		CompletedAt: fromMillisPtr(env.CompletedAt),
		FailedAt:    fromMillisPtr(env.FailedAt),
		TxID:        env.TxID,
		LockedAt:    fromMillisPtr(env.LockedAt),
		ConfirmedAt: fromMillisPtr(env.ConfirmedAt),
	}

	p.Details, err = decodeDetails(env.Kind, env.Details)
	if err != nil {
		return Payment{}, err
	}
	return p, nil
}

func decodeDetails(kind Kind, raw json.RawMessage) (Details, error) {
	var details Details
	switch kind {
	case KindBolt11:
		details = &Bolt11Details{}
	case KindBolt12:
		details = &Bolt12Details{}
	case KindLegacySwapIn:
		details = &SwapInDetails{}
	case KindLegacyPayToOpen:
		details = &PayToOpenDetails{}
	case KindChannelOpen:
		details = &ChannelOpenDetails{}
	case KindLiquidityManual, KindLiquidityAuto:
		details = &LiquidityDetails{}
	case KindOnChainSpend:
		details = &SpendDetails{}
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedPayload, kind)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(raw, details); err != nil {
		return nil, fmt.Errorf("%w: %s details: %v", ErrMalformedPayload, kind, err)
	}
	return deref(details), nil
}

// deref returns the value form so callers can type-switch on concrete
// structs rather than pointers.
func deref(d Details) Details {
	switch v := d.(type) {
	case *Bolt11Details:
		return *v
	case *Bolt12Details:
		return *v
	case *SwapInDetails:
		return *v
	case *PayToOpenDetails:
		return *v
	case *ChannelOpenDetails:
		return *v
	case *LiquidityDetails:
		return *v
	case *SpendDetails:
		return *v
	default:
		return d
	}
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func toMillisPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func fromMillisPtr(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}
