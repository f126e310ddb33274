package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lnwallet/walletdb/internal/domain/payment"
	"github.com/lnwallet/walletdb/internal/notify"
)

func channelOpen(txID string, created int64) payment.Payment {
	return payment.Payment{
		ID:        uuid.New(),
		Direction: payment.DirectionIncoming,
		Kind:      payment.KindChannelOpen,
		CreatedAt: at(created),
		TxID:      txID,
		Details:   payment.ChannelOpenDetails{ChannelID: "chan-" + txID},
	}
}

func liquidityPurchase(txID string, created int64) payment.Payment {
	return payment.Payment{
		ID:        uuid.New(),
		Direction: payment.DirectionOutgoing,
		Kind:      payment.KindLiquidityManual,
		CreatedAt: at(created),
		TxID:      txID,
		Details:   payment.LiquidityDetails{PurchaseAmountSat: 25_000},
	}
}

func TestMarkLockedFansOutToEveryPayment(t *testing.T) {
	s, bus, _ := newTestStore(t, nil)
	ctx := context.Background()

	open := mustInsert(t, s, channelOpen("t1", 1000))
	purchase := mustInsert(t, s, liquidityPurchase("t1", 1001))
	changes := recordChanges(bus)

	if err := s.MarkLocked(ctx, "t1"); err != nil {
		t.Fatalf("mark locked: %v", err)
	}

	for _, id := range []uuid.UUID{open.ID, purchase.ID} {
		got, _, err := s.GetPayment(ctx, id)
		if err != nil {
			t.Fatalf("get payment %s: %v", id, err)
		}
		if got.LockedAt == nil {
			t.Fatalf("payment %s not locked", id)
		}
		if got.CompletedAt == nil || !got.CompletedAt.Equal(*got.LockedAt) {
			t.Fatalf("payment %s completion not pinned to lock time: %v vs %v", id, got.CompletedAt, got.LockedAt)
		}
	}

	var saved, onchain int
	for _, c := range changes() {
		switch c.Topic {
		case notify.TopicPayments:
			saved++
		case notify.TopicOnChain:
			onchain++
			if c.TxID != "t1" {
				t.Fatalf("onchain change for tx %q, want t1", c.TxID)
			}
		}
	}
	if saved != 2 || onchain != 1 {
		t.Fatalf("got %d payment and %d onchain changes, want 2 and 1", saved, onchain)
	}
}

func TestMarkLockedIsIdempotent(t *testing.T) {
	s, bus, _ := newTestStore(t, nil)
	ctx := context.Background()

	open := mustInsert(t, s, channelOpen("t1", 1000))
	if err := s.MarkLocked(ctx, "t1"); err != nil {
		t.Fatalf("mark locked: %v", err)
	}
	first, _, err := s.GetPayment(ctx, open.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}

	changes := recordChanges(bus)
	time.Sleep(5 * time.Millisecond)
	if err := s.MarkLocked(ctx, "t1"); err != nil {
		t.Fatalf("second mark locked: %v", err)
	}
	if len(changes()) != 0 {
		t.Fatalf("re-lock published %d changes, want 0", len(changes()))
	}

	second, _, err := s.GetPayment(ctx, open.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if !second.LockedAt.Equal(*first.LockedAt) {
		t.Fatalf("lock time moved on re-lock: %v vs %v", second.LockedAt, first.LockedAt)
	}
}

func TestMarkLockedUnknownTx(t *testing.T) {
	s, bus, _ := newTestStore(t, nil)
	changes := recordChanges(bus)

	if err := s.MarkLocked(context.Background(), "never-seen"); err != nil {
		t.Fatalf("mark locked unknown tx: %v", err)
	}
	if err := s.MarkConfirmed(context.Background(), "never-seen"); err != nil {
		t.Fatalf("mark confirmed unknown tx: %v", err)
	}
	if len(changes()) != 0 {
		t.Fatalf("unknown tx published %d changes, want 0", len(changes()))
	}
}

func TestMarkConfirmedKeepsReceivedAtPinned(t *testing.T) {
	s, _, _ := newTestStore(t, nil)
	ctx := context.Background()

	open := mustInsert(t, s, channelOpen("t1", 1000))
	if err := s.MarkLocked(ctx, "t1"); err != nil {
		t.Fatalf("mark locked: %v", err)
	}
	locked, _, err := s.GetPayment(ctx, open.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}

	// Confirmation arrives later and must not move the visible received
	// time away from the lock time.
	time.Sleep(5 * time.Millisecond)
	if err := s.MarkConfirmed(ctx, "t1"); err != nil {
		t.Fatalf("mark confirmed: %v", err)
	}

	confirmed, _, err := s.GetPayment(ctx, open.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if confirmed.ConfirmedAt == nil {
		t.Fatal("payment not confirmed")
	}
	if !confirmed.CompletedAt.Equal(*locked.CompletedAt) {
		t.Fatalf("received time moved on confirm: %v vs %v", confirmed.CompletedAt, locked.CompletedAt)
	}
	if !confirmed.LockedAt.Equal(*locked.LockedAt) {
		t.Fatalf("lock time moved on confirm: %v vs %v", confirmed.LockedAt, locked.LockedAt)
	}
}

func TestMarkConfirmedWithoutPriorLock(t *testing.T) {
	s, _, _ := newTestStore(t, nil)
	ctx := context.Background()

	open := mustInsert(t, s, channelOpen("t1", 1000))
	if err := s.MarkConfirmed(ctx, "t1"); err != nil {
		t.Fatalf("mark confirmed: %v", err)
	}

	got, _, err := s.GetPayment(ctx, open.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if got.LockedAt == nil || got.ConfirmedAt == nil {
		t.Fatalf("expected both lock and confirm set, got %v / %v", got.LockedAt, got.ConfirmedAt)
	}
	if !got.LockedAt.Equal(*got.ConfirmedAt) {
		t.Fatalf("implicit lock not at confirm instant: %v vs %v", got.LockedAt, got.ConfirmedAt)
	}

	unconfirmed, err := s.ListUnconfirmed(ctx)
	if err != nil {
		t.Fatalf("list unconfirmed: %v", err)
	}
	if len(unconfirmed) != 0 {
		t.Fatalf("confirmed tx still listed: %v", unconfirmed)
	}
}

func TestListUnconfirmed(t *testing.T) {
	s, _, _ := newTestStore(t, nil)
	ctx := context.Background()

	mustInsert(t, s, channelOpen("t1", 1000))
	mustInsert(t, s, channelOpen("t2", 1001))
	mustInsert(t, s, channelOpen("t3", 1002))

	if err := s.MarkLocked(ctx, "t1"); err != nil {
		t.Fatalf("mark locked t1: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := s.MarkLocked(ctx, "t2"); err != nil {
		t.Fatalf("mark locked t2: %v", err)
	}
	if err := s.MarkConfirmed(ctx, "t1"); err != nil {
		t.Fatalf("mark confirmed t1: %v", err)
	}
	// t3 is declared but never locked, so it is not a candidate.

	got, err := s.ListUnconfirmed(ctx)
	if err != nil {
		t.Fatalf("list unconfirmed: %v", err)
	}
	if len(got) != 1 || got[0] != "t2" {
		t.Fatalf("got %v, want [t2]", got)
	}
}

func TestFundingTxLifecycleAcrossBothRecords(t *testing.T) {
	s, _, _ := newTestStore(t, nil)
	ctx := context.Background()

	// One funding tx backs an incoming channel-open and an outgoing
	// liquidity purchase. Lock then confirm must settle both, with the
	// incoming received time stuck at the lock instant.
	open := mustInsert(t, s, channelOpen("t1", 1000))
	purchase := mustInsert(t, s, liquidityPurchase("t1", 1001))

	if err := s.MarkLocked(ctx, "t1"); err != nil {
		t.Fatalf("mark locked: %v", err)
	}
	locked, _, err := s.GetPayment(ctx, open.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	lockTime := *locked.LockedAt

	time.Sleep(5 * time.Millisecond)
	if err := s.MarkConfirmed(ctx, "t1"); err != nil {
		t.Fatalf("mark confirmed: %v", err)
	}

	for _, id := range []uuid.UUID{open.ID, purchase.ID} {
		got, _, err := s.GetPayment(ctx, id)
		if err != nil {
			t.Fatalf("get payment %s: %v", id, err)
		}
		if got.LockedAt == nil || got.ConfirmedAt == nil {
			t.Fatalf("payment %s not fully settled: %v / %v", id, got.LockedAt, got.ConfirmedAt)
		}
		if got.ConfirmedAt.Before(*got.LockedAt) {
			t.Fatalf("payment %s confirmed before locked", id)
		}
	}

	final, _, err := s.GetPayment(ctx, open.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if final.ReceivedAt() == nil {
		t.Fatal("received time missing after settlement")
	}
	if !final.ReceivedAt().Equal(lockTime) {
		t.Fatalf("received time %v, want lock time %v", final.ReceivedAt(), lockTime)
	}
	if final.ReceivedAt().Equal(*final.ConfirmedAt) {
		t.Fatal("received time moved to the confirm instant")
	}
}

func TestLateInsertPicksUpStoredTxTimestamps(t *testing.T) {
	s, _, _ := newTestStore(t, nil)
	ctx := context.Background()

	first := mustInsert(t, s, channelOpen("t1", 1000))
	if err := s.MarkLocked(ctx, "t1"); err != nil {
		t.Fatalf("mark locked: %v", err)
	}
	locked, _, err := s.GetPayment(ctx, first.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	lockTime := *locked.LockedAt

	// A record referencing an already locked tx settles at the stored lock
	// time, not at its own insert time.
	time.Sleep(5 * time.Millisecond)
	late := mustInsert(t, s, liquidityPurchase("t1", 1001))
	if late.LockedAt == nil || !late.LockedAt.Equal(lockTime) {
		t.Fatalf("late insert locked at %v, want %v", late.LockedAt, lockTime)
	}
	if late.CompletedAt == nil || !late.CompletedAt.Equal(lockTime) {
		t.Fatalf("late insert completed at %v, want lock time %v", late.CompletedAt, lockTime)
	}

	time.Sleep(5 * time.Millisecond)
	if err := s.MarkConfirmed(ctx, "t1"); err != nil {
		t.Fatalf("mark confirmed: %v", err)
	}
	got, _, err := s.GetPayment(ctx, late.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if got.ConfirmedAt == nil {
		t.Fatal("late insert not confirmed")
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(lockTime) {
		t.Fatalf("completion moved to %v on confirm, want lock time %v", got.CompletedAt, lockTime)
	}

	// After confirmation a fresh record picks both timestamps up at once.
	afterConfirm := mustInsert(t, s, liquidityPurchase("t1", 1002))
	if afterConfirm.LockedAt == nil || !afterConfirm.LockedAt.Equal(lockTime) {
		t.Fatalf("post-confirm insert locked at %v, want %v", afterConfirm.LockedAt, lockTime)
	}
	if afterConfirm.ConfirmedAt == nil || !afterConfirm.ConfirmedAt.Equal(*got.ConfirmedAt) {
		t.Fatalf("post-confirm insert confirmed at %v, want %v", afterConfirm.ConfirmedAt, got.ConfirmedAt)
	}
	if afterConfirm.CompletedAt == nil || !afterConfirm.CompletedAt.Equal(lockTime) {
		t.Fatalf("post-confirm insert completed at %v, want lock time %v", afterConfirm.CompletedAt, lockTime)
	}
}

func TestInboundLiquidityPurchaseForTx(t *testing.T) {
	s, _, _ := newTestStore(t, nil)
	ctx := context.Background()

	mustInsert(t, s, liquidityPurchase("t1", 1000))

	got, err := s.InboundLiquidityPurchaseForTx(ctx, "t1")
	if err != nil {
		t.Fatalf("purchase lookup: %v", err)
	}
	if got == nil || got.PurchaseAmountSat != 25_000 {
		t.Fatalf("got %+v, want purchase of 25000 sat", got)
	}

	got, err = s.InboundLiquidityPurchaseForTx(ctx, "t9")
	if err != nil {
		t.Fatalf("purchase lookup: %v", err)
	}
	if got != nil {
		t.Fatalf("got %+v for unknown tx, want nil", got)
	}
}
