// Package sqlite implements the payments database storage interfaces on top
// of SQLite via database/sql.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lnwallet/walletdb/internal/app/metrics"
	"github.com/lnwallet/walletdb/internal/notify"
	"github.com/lnwallet/walletdb/internal/storage"
	"github.com/lnwallet/walletdb/pkg/logger"
)

// Store implements the storage interfaces backed by SQLite. Every mutating
// call runs in a single transaction; change notifications collected during
// the transaction are published only after it commits.
type Store struct {
	db    *sql.DB
	bus   *notify.Bus
	queue *storage.MetadataQueue
	log   *logger.Logger
}

var _ storage.PaymentStore = (*Store)(nil)
var _ storage.OnChainStore = (*Store)(nil)
var _ storage.MetadataStore = (*Store)(nil)
var _ storage.QueryStore = (*Store)(nil)
var _ storage.ContactStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB, bus *notify.Bus, queue *storage.MetadataQueue, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{db: db, bus: bus, queue: queue, log: log}
}

// Open opens (or creates) the SQLite database at path with the pragmas the
// store relies on. ":memory:" opens an in-memory database.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single writer connection keeps transaction semantics simple; reads
	// still run concurrently against a consistent snapshot.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA synchronous = NORMAL`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite pragma: %w", err)
		}
	}
	return db, nil
}

// pending accumulates the notifications to publish once the surrounding
// transaction commits.
type pending struct {
	changes []notify.Change
}

func (p *pending) add(c notify.Change) {
	p.changes = append(p.changes, c)
}

// withTx runs fn inside a transaction and, on commit, publishes the
// notifications fn queued. Nothing is published on rollback.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx, n *pending) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	var n pending
	if err := fn(tx, &n); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	for _, c := range n.changes {
		metrics.NotificationPublished(string(c.Topic))
		s.bus.Publish(c)
	}
	return nil
}

// now returns the current time truncated to the stored precision.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func toNullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
