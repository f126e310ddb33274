package payments

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lnwallet/walletdb/internal/config"
	"github.com/lnwallet/walletdb/internal/domain/contact"
	"github.com/lnwallet/walletdb/internal/domain/payment"
	"github.com/lnwallet/walletdb/pkg/logger"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "payments.sqlite")

	db, err := Open(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	return db
}

func TestOpenWiresEverything(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// A contact saved through the manager decorates the feed page for a
	// payment from that contact's payer key.
	alice, err := db.Contacts.SaveContact(ctx, contact.Info{
		Name:       "Alice",
		PublicKeys: []string{"02aa"},
	})
	require.NoError(t, err)

	received := time.Now().UTC().Truncate(time.Millisecond)
	_, err = db.Store.InsertPayment(ctx, payment.Payment{
		ID:          uuid.New(),
		Direction:   payment.DirectionIncoming,
		Kind:        payment.KindBolt12,
		AmountMsat:  42_000,
		CreatedAt:   received,
		CompletedAt: &received,
		Details:     payment.Bolt12Details{PayerKey: "02aa"},
	})
	require.NoError(t, err)

	feed := db.Feeds.All(ctx, 10, 0)
	defer feed.Close()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case page := <-feed.Updates():
			if len(page) == 1 && page[0].Contact != nil {
				require.Equal(t, alice.ID, page[0].Contact.ID)
				return
			}
		case <-deadline:
			t.Fatal("feed never delivered the decorated page")
		}
	}
}

func TestOpenPersistsAcrossReopen(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "payments.sqlite")
	ctx := context.Background()

	db, err := Open(ctx, cfg, logger.Nop())
	require.NoError(t, err)

	p, err := db.Store.InsertPayment(ctx, payment.Payment{
		ID:        uuid.New(),
		Direction: payment.DirectionOutgoing,
		Kind:      payment.KindBolt11,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		Details:   payment.Bolt11Details{PaymentHash: "h"},
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(ctx, cfg, logger.Nop())
	require.NoError(t, err)
	defer db.Close()

	got, _, err := db.Store.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)
}

func TestMergeRestoredLiquidity(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	received := time.Now().UTC().Truncate(time.Millisecond)
	_, err := db.Store.InsertPayment(ctx, payment.Payment{
		ID:          uuid.New(),
		Direction:   payment.DirectionIncoming,
		Kind:        payment.KindChannelOpen,
		CreatedAt:   received,
		CompletedAt: &received,
		TxID:        "t1",
		Details:     payment.ChannelOpenDetails{ChannelID: "ch"},
	})
	require.NoError(t, err)
	_, err = db.Store.InsertPayment(ctx, payment.Payment{
		ID:          uuid.New(),
		Direction:   payment.DirectionOutgoing,
		Kind:        payment.KindLiquidityManual,
		CreatedAt:   received,
		CompletedAt: &received,
		TxID:        "t1",
		Details:     payment.LiquidityDetails{PurchaseAmountSat: 10_000},
	})
	require.NoError(t, err)

	merged, err := db.MergeRestoredLiquidity(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, merged)

	// Idempotent.
	merged, err = db.MergeRestoredLiquidity(ctx)
	require.NoError(t, err)
	require.Zero(t, merged)
}
