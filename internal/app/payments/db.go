// Package payments assembles the payments database: SQLite storage, the
// change bus, the metadata queue, the contact cache and the feed engine,
// wired together behind one handle.
package payments

import (
	"context"
	"database/sql"

	"github.com/lnwallet/walletdb/internal/config"
	"github.com/lnwallet/walletdb/internal/contacts"
	"github.com/lnwallet/walletdb/internal/domain/fiat"
	"github.com/lnwallet/walletdb/internal/feeds"
	"github.com/lnwallet/walletdb/internal/notify"
	"github.com/lnwallet/walletdb/internal/platform/migrations"
	"github.com/lnwallet/walletdb/internal/storage"
	"github.com/lnwallet/walletdb/internal/storage/sqlite"
	"github.com/lnwallet/walletdb/pkg/logger"
)

// DB is the assembled payments database. Components are exported for direct
// use; Close releases everything in reverse dependency order.
type DB struct {
	Store    *sqlite.Store
	Bus      *notify.Bus
	Queue    *storage.MetadataQueue
	Rates    *fiat.StaticProvider
	Contacts *contacts.Manager
	Feeds    *feeds.Engine

	db  *sql.DB
	log *logger.Logger
}

// Open opens the database at the configured path, applies migrations and
// starts the contact cache and feed engine.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*DB, error) {
	if log == nil {
		log = logger.Nop()
	}

	handle, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := migrations.Apply(ctx, handle); err != nil {
		handle.Close()
		return nil, err
	}
	log.Infof("payments database open at %s", cfg.Database.Path)

	bus := notify.NewBus(cfg.Notifications.HistorySize)
	rates := fiat.NewStaticProvider()
	queue := storage.NewMetadataQueue(rates)
	store := sqlite.New(handle, bus, queue, log)

	manager, err := contacts.New(ctx, store, bus, log)
	if err != nil {
		handle.Close()
		return nil, err
	}
	engine := feeds.NewEngine(store, bus, manager, log)

	return &DB{
		Store:    store,
		Bus:      bus,
		Queue:    queue,
		Rates:    rates,
		Contacts: manager,
		Feeds:    engine,
		db:       handle,
		log:      log,
	}, nil
}

// Close stops the feeds and the contact cache, then closes the database.
func (d *DB) Close() error {
	d.Feeds.Close()
	d.Contacts.Close()
	return d.db.Close()
}

// WatchUnconfirmed opens a live view of the locked-but-unconfirmed
// transactions for the chain-watcher.
func (d *DB) WatchUnconfirmed(ctx context.Context) *feeds.UnconfirmedWatch {
	return feeds.WatchUnconfirmed(ctx, d.Store, d.Bus, d.log)
}

// MergeRestoredLiquidity runs the one-time fold of standalone liquidity
// purchases left behind by a record-by-record restore. Feed notifications
// are suppressed; callers refresh their views once afterwards.
func (d *DB) MergeRestoredLiquidity(ctx context.Context) (int, error) {
	merged, err := d.Store.MergeLiquidityPurchases(ctx, false)
	if err != nil {
		return 0, err
	}
	if merged > 0 {
		d.log.Infof("folded %d restored liquidity purchases", merged)
		d.Bus.Publish(notify.Change{Topic: notify.TopicPayments, Op: notify.OpSaved})
	}
	return merged, nil
}
