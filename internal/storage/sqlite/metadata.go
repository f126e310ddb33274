package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lnwallet/walletdb/internal/notify"
	"github.com/lnwallet/walletdb/internal/storage"
)

// --- MetadataStore ----------------------------------------------------------

// GetMetadata returns the side-table row for id, or the zero row when none
// exists. Absence is not an error.
func (s *Store) GetMetadata(ctx context.Context, id uuid.UUID) (storage.PaymentMetadata, error) {
	var m storage.PaymentMetadata
	err := s.withTx(ctx, func(tx *sql.Tx, _ *pending) error {
		var err error
		m, err = getMetadataTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return storage.PaymentMetadata{}, err
	}
	return m, nil
}

// UpdateUserInfo writes the user-authored description and notes for id. The
// row is created when missing: metadata may legitimately exist before its
// payment record does.
func (s *Store) UpdateUserInfo(ctx context.Context, id uuid.UUID, description, notes string) error {
	return s.withTx(ctx, func(tx *sql.Tx, n *pending) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO payments_metadata (payment_id, user_description, user_notes, modified_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (payment_id) DO UPDATE SET
				user_description = excluded.user_description,
				user_notes = excluded.user_notes,
				modified_at = excluded.modified_at
		`, id.String(), toNullString(description), toNullString(notes), now().UnixMilli())
		if err != nil {
			return fmt.Errorf("update user info %s: %w", id, err)
		}

		n.add(notify.Change{Topic: notify.TopicMetadata, Op: notify.OpSaved, PaymentID: id})
		return nil
	})
}

// --- transaction-scoped helpers ---------------------------------------------

func getMetadataTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (storage.PaymentMetadata, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT payment_id, user_description, user_notes, original_fiat_currency, original_fiat_rate, origin, modified_at
		FROM payments_metadata
		WHERE payment_id = ?
	`, id.String())

	m, err := scanMetadata(row)
	if err == sql.ErrNoRows {
		return storage.PaymentMetadata{PaymentID: id}, nil
	}
	if err != nil {
		return storage.PaymentMetadata{}, fmt.Errorf("get metadata %s: %w", id, err)
	}
	return m, nil
}

// mergeMetadataTx persists a dequeued metadata row. Fields already populated
// in the stored row are never overwritten with blanks: user edits and the
// write-once system fields both survive a later merge.
func mergeMetadataTx(ctx context.Context, tx *sql.Tx, m storage.PaymentMetadata) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO payments_metadata (payment_id, user_description, user_notes, original_fiat_currency, original_fiat_rate, origin, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (payment_id) DO UPDATE SET
			user_description = CASE WHEN user_description IS NULL OR user_description = '' THEN excluded.user_description ELSE user_description END,
			user_notes = CASE WHEN user_notes IS NULL OR user_notes = '' THEN excluded.user_notes ELSE user_notes END,
			original_fiat_currency = CASE WHEN original_fiat_currency IS NULL OR original_fiat_currency = '' THEN excluded.original_fiat_currency ELSE original_fiat_currency END,
			original_fiat_rate = CASE WHEN original_fiat_currency IS NULL OR original_fiat_currency = '' THEN excluded.original_fiat_rate ELSE original_fiat_rate END,
			origin = CASE WHEN origin IS NULL OR origin = '' THEN excluded.origin ELSE origin END,
			modified_at = excluded.modified_at
	`, m.PaymentID.String(),
		toNullString(m.UserDescription),
		toNullString(m.UserNotes),
		toNullString(m.OriginalFiatCurrency),
		toNullString(rateString(m.OriginalFiatRate)),
		toNullString(m.Origin),
		now().UnixMilli())
	if err != nil {
		return fmt.Errorf("merge metadata %s: %w", m.PaymentID, err)
	}
	return nil
}

func rateString(rate decimal.Decimal) string {
	if rate.IsZero() {
		return ""
	}
	return rate.String()
}

// metadataScanner lets scanMetadata work for both QueryRow and Query rows.
type metadataScanner interface {
	Scan(dest ...any) error
}

func scanMetadata(row metadataScanner) (storage.PaymentMetadata, error) {
	var (
		m          storage.PaymentMetadata
		idRaw      string
		desc       sql.NullString
		notes      sql.NullString
		fiatCcy    sql.NullString
		fiatRate   sql.NullString
		origin     sql.NullString
		modifiedAt sql.NullInt64
	)
	if err := row.Scan(&idRaw, &desc, &notes, &fiatCcy, &fiatRate, &origin, &modifiedAt); err != nil {
		return storage.PaymentMetadata{}, err
	}

	id, err := uuid.Parse(idRaw)
	if err != nil {
		return storage.PaymentMetadata{}, fmt.Errorf("bad metadata payment id %q: %w", idRaw, err)
	}
	m.PaymentID = id
	m.UserDescription = desc.String
	m.UserNotes = notes.String
	m.OriginalFiatCurrency = fiatCcy.String
	m.Origin = origin.String
	m.ModifiedAt = fromNullMillis(modifiedAt)

	if fiatRate.Valid && fiatRate.String != "" {
		rate, err := decimal.NewFromString(fiatRate.String)
		if err == nil {
			m.OriginalFiatRate = rate
		}
	}
	return m, nil
}
