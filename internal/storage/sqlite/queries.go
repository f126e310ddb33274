package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lnwallet/walletdb/internal/app/metrics"
	"github.com/lnwallet/walletdb/internal/domain/payment"
	"github.com/lnwallet/walletdb/internal/storage"
)

// paymentsUnion merges both payment tables into one queryable shape and
// joins the metadata side-table. Incoming payments expose received_at as
// both their terminal and success timestamps.
const paymentsUnion = `
	SELECT p.id, p.data,
	       m.payment_id, m.user_description, m.user_notes,
	       m.original_fiat_currency, m.original_fiat_rate, m.origin, m.modified_at
	FROM (
		SELECT id, created_at, received_at AS completed_at, received_at AS succeeded_at, data FROM payments_incoming
		UNION ALL
		SELECT id, created_at, completed_at, succeeded_at, data FROM payments_outgoing
	) AS p
	LEFT JOIN payments_metadata AS m ON m.payment_id = p.id
`

// --- QueryStore -------------------------------------------------------------

// ListPayments returns one page across all payments, newest first. Completed
// payments order by completion time, in-flight ones by creation time.
func (s *Store) ListPayments(ctx context.Context, count, skip int64) ([]storage.PaymentInfo, error) {
	return s.queryInfos(ctx, "all", paymentsUnion+`
		ORDER BY COALESCE(p.completed_at, p.created_at) DESC, p.id
		LIMIT ? OFFSET ?
	`, count, skip)
}

// ListInFlight returns one page of payments with no terminal timestamp,
// newest created first.
func (s *Store) ListInFlight(ctx context.Context, count, skip int64) ([]storage.PaymentInfo, error) {
	return s.queryInfos(ctx, "in_flight", paymentsUnion+`
		WHERE p.completed_at IS NULL
		ORDER BY p.created_at DESC, p.id
		LIMIT ? OFFSET ?
	`, count, skip)
}

// ListRecent returns one page of payments completed since the given time,
// plus every in-flight payment.
func (s *Store) ListRecent(ctx context.Context, count, skip int64, since time.Time) ([]storage.PaymentInfo, error) {
	return s.queryInfos(ctx, "recent", paymentsUnion+`
		WHERE p.completed_at IS NULL OR p.completed_at >= ?
		ORDER BY COALESCE(p.completed_at, p.created_at) DESC, p.id
		LIMIT ? OFFSET ?
	`, since.UnixMilli(), count, skip)
}

// ListCompletedInRange returns one page of successfully completed payments
// whose success timestamp falls within [start, end], newest first.
func (s *Store) ListCompletedInRange(ctx context.Context, count, skip int64, start, end time.Time) ([]storage.PaymentInfo, error) {
	return s.queryInfos(ctx, "completed_in_range", paymentsUnion+`
		WHERE p.succeeded_at IS NOT NULL AND p.succeeded_at >= ? AND p.succeeded_at <= ?
		ORDER BY p.succeeded_at DESC, p.id
		LIMIT ? OFFSET ?
	`, start.UnixMilli(), end.UnixMilli(), count, skip)
}

// CountPayments returns the total number of payment records.
func (s *Store) CountPayments(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM payments_incoming)
		     + (SELECT COUNT(*) FROM payments_outgoing)
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count payments: %w", err)
	}
	return n, nil
}

// CountCompletedInRange counts successfully completed payments in [start, end].
func (s *Store) CountCompletedInRange(ctx context.Context, start, end time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM payments_incoming WHERE received_at >= ? AND received_at <= ?)
		     + (SELECT COUNT(*) FROM payments_outgoing WHERE succeeded_at >= ? AND succeeded_at <= ?)
	`, start.UnixMilli(), end.UnixMilli(), start.UnixMilli(), end.UnixMilli()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count completed in range: %w", err)
	}
	return n, nil
}

// OldestCompletedAt returns the success timestamp of the oldest completed
// payment, or nil when none completed yet.
func (s *Store) OldestCompletedAt(ctx context.Context) (*time.Time, error) {
	var ms sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MIN(t) FROM (
			SELECT MIN(received_at) AS t FROM payments_incoming WHERE received_at IS NOT NULL
			UNION ALL
			SELECT MIN(succeeded_at) AS t FROM payments_outgoing WHERE succeeded_at IS NOT NULL
		) WHERE t IS NOT NULL
	`).Scan(&ms)
	if err != nil {
		return nil, fmt.Errorf("oldest completed: %w", err)
	}
	return fromNullMillis(ms), nil
}

// queryInfos runs a page query and maps rows to PaymentInfo. A row whose
// payload fails to decode degrades to a placeholder payment so that no
// record silently disappears from the page.
func (s *Store) queryInfos(ctx context.Context, name, query string, args ...any) ([]storage.PaymentInfo, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	defer rows.Close()

	var result []storage.PaymentInfo
	for rows.Next() {
		var (
			idRaw      string
			data       []byte
			metaID     sql.NullString
			desc       sql.NullString
			notes      sql.NullString
			fiatCcy    sql.NullString
			fiatRate   sql.NullString
			origin     sql.NullString
			modifiedAt sql.NullInt64
		)
		if err := rows.Scan(&idRaw, &data, &metaID, &desc, &notes, &fiatCcy, &fiatRate, &origin, &modifiedAt); err != nil {
			return nil, err
		}

		info := storage.PaymentInfo{}
		p, err := payment.Decode(data)
		if err != nil {
			metrics.MalformedPayload()
			s.log.Errorf(err, "payment %s payload undecodable, degrading to placeholder", idRaw)
			id, parseErr := uuid.Parse(idRaw)
			if parseErr != nil {
				continue
			}
			p = payment.Placeholder(id)
		}
		info.Payment = p

		if metaID.Valid {
			info.Metadata = scanJoinedMetadata(p.ID, desc, notes, fiatCcy, fiatRate, origin, modifiedAt)
		}
		result = append(result, info)
	}
	return result, rows.Err()
}

func scanJoinedMetadata(id uuid.UUID, desc, notes, fiatCcy, fiatRate, origin sql.NullString, modifiedAt sql.NullInt64) storage.PaymentMetadata {
	m := storage.PaymentMetadata{
		PaymentID:            id,
		UserDescription:      desc.String,
		UserNotes:            notes.String,
		OriginalFiatCurrency: fiatCcy.String,
		Origin:               origin.String,
		ModifiedAt:           fromNullMillis(modifiedAt),
	}
	if fiatRate.Valid && fiatRate.String != "" {
		if rate, err := decimal.NewFromString(fiatRate.String); err == nil {
			m.OriginalFiatRate = rate
		}
	}
	return m
}
