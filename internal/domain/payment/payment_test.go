package payment

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func ts(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func tsp(sec int64) *time.Time {
	t := ts(sec)
	return &t
}

func TestStatusDerivation(t *testing.T) {
	p := Payment{}
	if p.Status() != StatusPending {
		t.Fatalf("empty payment status %v, want pending", p.Status())
	}
	p.CompletedAt = tsp(100)
	if p.Status() != StatusCompleted {
		t.Fatalf("completed payment status %v", p.Status())
	}
	// A failure timestamp wins even if a completion was recorded.
	p.FailedAt = tsp(90)
	if p.Status() != StatusFailed {
		t.Fatalf("failed payment status %v", p.Status())
	}
}

func TestSetLockedPinsCompletion(t *testing.T) {
	p := Payment{Kind: KindChannelOpen, Direction: DirectionIncoming}

	p = p.SetLocked(ts(100))
	if p.LockedAt == nil || !p.LockedAt.Equal(ts(100)) {
		t.Fatalf("lock not recorded: %v", p.LockedAt)
	}
	if p.CompletedAt == nil || !p.CompletedAt.Equal(ts(100)) {
		t.Fatalf("completion not pinned to lock: %v", p.CompletedAt)
	}

	// Re-locking never moves anything.
	p = p.SetLocked(ts(200))
	if !p.LockedAt.Equal(ts(100)) || !p.CompletedAt.Equal(ts(100)) {
		t.Fatalf("re-lock moved timestamps: %v %v", p.LockedAt, p.CompletedAt)
	}
}

func TestSetLockedLeavesOffChainCompletionAlone(t *testing.T) {
	p := Payment{Kind: KindBolt11, Direction: DirectionIncoming}
	p = p.SetLocked(ts(100))
	if p.CompletedAt != nil {
		t.Fatalf("lock completed an off-chain payment: %v", p.CompletedAt)
	}
}

func TestSetConfirmedNeverMovesCompletion(t *testing.T) {
	p := Payment{Kind: KindChannelOpen, Direction: DirectionIncoming}
	p = p.SetLocked(ts(100))
	p = p.SetConfirmed(ts(500))

	if p.ConfirmedAt == nil || !p.ConfirmedAt.Equal(ts(500)) {
		t.Fatalf("confirm not recorded: %v", p.ConfirmedAt)
	}
	if !p.CompletedAt.Equal(ts(100)) {
		t.Fatalf("confirm moved completion: %v", p.CompletedAt)
	}

	p = p.SetConfirmed(ts(600))
	if !p.ConfirmedAt.Equal(ts(500)) {
		t.Fatalf("re-confirm moved timestamp: %v", p.ConfirmedAt)
	}
}

func TestMergeMonotonic(t *testing.T) {
	id := uuid.New()
	existing := Payment{
		ID:          id,
		Direction:   DirectionIncoming,
		Kind:        KindBolt11,
		AmountMsat:  100,
		CreatedAt:   ts(50),
		CompletedAt: tsp(100),
		LockedAt:    tsp(80),
	}

	// Identity and creation are immutable; an update that drops or rewinds
	// timestamps keeps the stored ones; amounts follow the update.
	updated := Payment{
		ID:          uuid.New(),
		Direction:   DirectionOutgoing,
		Kind:        KindBolt12,
		AmountMsat:  250,
		CompletedAt: tsp(60),
	}
	merged := MergeMonotonic(existing, updated)

	if merged.ID != id || merged.Direction != DirectionIncoming || merged.Kind != KindBolt11 {
		t.Fatalf("identity not preserved: %+v", merged)
	}
	if !merged.CreatedAt.Equal(ts(50)) {
		t.Fatalf("creation moved: %v", merged.CreatedAt)
	}
	if merged.AmountMsat != 250 {
		t.Fatalf("amount not taken from update: %d", merged.AmountMsat)
	}
	if !merged.CompletedAt.Equal(ts(100)) {
		t.Fatalf("completion rewound: %v", merged.CompletedAt)
	}
	if merged.LockedAt == nil || !merged.LockedAt.Equal(ts(80)) {
		t.Fatalf("lock dropped: %v", merged.LockedAt)
	}

	// Later timestamps do move forward.
	forward := existing
	forward.CompletedAt = tsp(150)
	merged = MergeMonotonic(existing, forward)
	if !merged.CompletedAt.Equal(ts(150)) {
		t.Fatalf("completion did not advance: %v", merged.CompletedAt)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Payment{
		{
			ID:          uuid.New(),
			Direction:   DirectionIncoming,
			Kind:        KindBolt11,
			AmountMsat:  1234,
			FeesMsat:    56,
			CreatedAt:   ts(1000),
			CompletedAt: tsp(1100),
			Details:     Bolt11Details{PaymentHash: "ph", Preimage: "pi", Invoice: "inv"},
		},
		{
			ID:        uuid.New(),
			Direction: DirectionOutgoing,
			Kind:      KindBolt12,
			CreatedAt: ts(1000),
			FailedAt:  tsp(1050),
			Details:   Bolt12Details{OfferID: "off", PayerNote: "hi"},
		},
		{
			ID:          uuid.New(),
			Direction:   DirectionIncoming,
			Kind:        KindChannelOpen,
			CreatedAt:   ts(1000),
			TxID:        "txa",
			LockedAt:    tsp(1010),
			ConfirmedAt: tsp(1200),
			CompletedAt: tsp(1010),
			Details:     ChannelOpenDetails{ChannelID: "ch", LiquidityAmountSat: 5, LiquidityFeesMsat: 6},
		},
		{
			ID:        uuid.New(),
			Direction: DirectionOutgoing,
			Kind:      KindLiquidityAuto,
			CreatedAt: ts(1000),
			TxID:      "txb",
			Details:   LiquidityDetails{PurchaseAmountSat: 7, ServiceFeesMsat: 8, MiningFeesSat: 9},
		},
	}

	for _, want := range cases {
		data, err := Encode(want)
		if err != nil {
			t.Fatalf("encode %s: %v", want.Kind, err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("decode %s: %v", want.Kind, err)
		}
		if got.ID != want.ID || got.Kind != want.Kind || got.Direction != want.Direction {
			t.Fatalf("identity mismatch for %s: %+v", want.Kind, got)
		}
		if got.Details != want.Details {
			t.Fatalf("details mismatch for %s: %#v != %#v", want.Kind, got.Details, want.Details)
		}
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	for name, data := range map[string][]byte{
		"not json":     []byte("{nope"),
		"empty":        nil,
		"unknown kind": []byte(`{"v":1,"id":"` + uuid.NewString() + `","direction":"incoming","kind":"teleport","created_at":1}`),
		"bad id":       []byte(`{"v":1,"id":"zzz","direction":"incoming","kind":"bolt11","created_at":1}`),
	} {
		if _, err := Decode(data); !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("%s: got %v, want ErrMalformedPayload", name, err)
		}
	}
}

func TestOnChainKinds(t *testing.T) {
	onChain := []Kind{KindChannelOpen, KindLiquidityManual, KindLiquidityAuto, KindOnChainSpend}
	for _, k := range onChain {
		if !k.OnChain() {
			t.Errorf("%s should be on-chain", k)
		}
	}
	for _, k := range []Kind{KindBolt11, KindBolt12, KindLegacySwapIn, KindLegacyPayToOpen, KindUnknown} {
		if k.OnChain() {
			t.Errorf("%s should not be on-chain", k)
		}
	}
}
