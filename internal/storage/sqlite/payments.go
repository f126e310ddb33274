package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lnwallet/walletdb/internal/app/metrics"
	"github.com/lnwallet/walletdb/internal/domain/payment"
	"github.com/lnwallet/walletdb/internal/notify"
	"github.com/lnwallet/walletdb/internal/storage"
)

// --- PaymentStore -----------------------------------------------------------

func (s *Store) InsertPayment(ctx context.Context, p payment.Payment) (payment.Payment, error) {
	if p.ID == uuid.Nil {
		return payment.Payment{}, fmt.Errorf("insert payment: id required")
	}
	if p.Direction != payment.DirectionIncoming && p.Direction != payment.DirectionOutgoing {
		return payment.Payment{}, fmt.Errorf("insert payment %s: direction required", p.ID)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now()
	}

	err := s.withTx(ctx, func(tx *sql.Tx, n *pending) error {
		exists, err := paymentExistsTx(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("payment %s: %w", p.ID, storage.ErrDuplicateID)
		}

		// The funding transaction becomes known to the tracker the moment a
		// record references it. A record inserted after its tx was already
		// locked or confirmed picks the stored timestamps up immediately.
		if p.TxID != "" && p.Kind.OnChain() {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO onchain_transactions (tx_id) VALUES (?)
				ON CONFLICT (tx_id) DO NOTHING
			`, p.TxID); err != nil {
				return fmt.Errorf("declare onchain tx %s: %w", p.TxID, err)
			}
			var lockedMs, confirmedMs sql.NullInt64
			if err := tx.QueryRowContext(ctx, `
				SELECT locked_at, confirmed_at FROM onchain_transactions WHERE tx_id = ?
			`, p.TxID).Scan(&lockedMs, &confirmedMs); err != nil {
				return fmt.Errorf("declare onchain tx %s: %w", p.TxID, err)
			}
			if lockedMs.Valid {
				p = p.SetLocked(fromMillis(lockedMs.Int64))
			}
			if confirmedMs.Valid {
				p = p.SetConfirmed(fromMillis(confirmedMs.Int64))
			}
		}

		if err := insertPaymentTx(ctx, tx, p); err != nil {
			return err
		}

		// Drain any metadata enqueued for this id and persist it within the
		// same transaction.
		row := s.queue.DequeueAndAugment(p.ID)
		if !row.IsEmpty() {
			if err := mergeMetadataTx(ctx, tx, row); err != nil {
				return err
			}
		}

		n.add(notify.Change{Topic: notify.TopicPayments, Op: notify.OpSaved, PaymentID: p.ID})
		return nil
	})
	if err != nil {
		return payment.Payment{}, err
	}

	metrics.PaymentInserted(string(p.Direction))
	return p, nil
}

func (s *Store) UpdatePayment(ctx context.Context, p payment.Payment) (payment.Payment, error) {
	var merged payment.Payment
	err := s.withTx(ctx, func(tx *sql.Tx, n *pending) error {
		existing, err := getPaymentTx(ctx, tx, p.ID)
		if err != nil {
			return err
		}

		merged = payment.MergeMonotonic(existing, p)
		if err := updatePaymentTx(ctx, tx, merged); err != nil {
			return err
		}

		n.add(notify.Change{Topic: notify.TopicPayments, Op: notify.OpSaved, PaymentID: p.ID})
		return nil
	})
	if err != nil {
		return payment.Payment{}, err
	}

	metrics.PaymentUpdated()
	return merged, nil
}

func (s *Store) GetPayment(ctx context.Context, id uuid.UUID) (payment.Payment, storage.PaymentMetadata, error) {
	var (
		p payment.Payment
		m storage.PaymentMetadata
	)
	err := s.withTx(ctx, func(tx *sql.Tx, _ *pending) error {
		var err error
		p, err = getPaymentTx(ctx, tx, id)
		if err != nil {
			return err
		}
		m, err = getMetadataTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return payment.Payment{}, storage.PaymentMetadata{}, err
	}
	return p, m, nil
}

func (s *Store) ListPaymentsForTx(ctx context.Context, txID string) ([]payment.Payment, error) {
	var result []payment.Payment
	err := s.withTx(ctx, func(tx *sql.Tx, _ *pending) error {
		var err error
		result, err = s.listPaymentsForTxTx(ctx, tx, txID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) DeletePayment(ctx context.Context, id uuid.UUID, notifyFeeds bool) error {
	err := s.withTx(ctx, func(tx *sql.Tx, n *pending) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM payments_incoming WHERE id = ?`, id.String())
		if err != nil {
			return fmt.Errorf("delete incoming %s: %w", id, err)
		}
		rows, _ := res.RowsAffected()
		if rows == 0 {
			res, err = tx.ExecContext(ctx, `DELETE FROM payments_outgoing WHERE id = ?`, id.String())
			if err != nil {
				return fmt.Errorf("delete outgoing %s: %w", id, err)
			}
			rows, _ = res.RowsAffected()
		}
		if rows == 0 {
			return fmt.Errorf("payment %s: %w", id, storage.ErrNotFound)
		}

		if notifyFeeds {
			n.add(notify.Change{Topic: notify.TopicPayments, Op: notify.OpDeleted, PaymentID: id})
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.PaymentDeleted()
	return nil
}

// --- transaction-scoped helpers ---------------------------------------------

func tableFor(direction payment.Direction) string {
	if direction == payment.DirectionIncoming {
		return "payments_incoming"
	}
	return "payments_outgoing"
}

func paymentExistsTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (bool, error) {
	var count int
	err := tx.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM payments_incoming WHERE id = ?)
		     + (SELECT COUNT(*) FROM payments_outgoing WHERE id = ?)
	`, id.String(), id.String()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check payment %s: %w", id, err)
	}
	return count > 0, nil
}

func insertPaymentTx(ctx context.Context, tx *sql.Tx, p payment.Payment) error {
	data, err := payment.Encode(p)
	if err != nil {
		return err
	}

	if p.Direction == payment.DirectionIncoming {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO payments_incoming (id, created_at, received_at, tx_id, data)
			VALUES (?, ?, ?, ?, ?)
		`, p.ID.String(), p.CreatedAt.UnixMilli(), toNullMillis(p.CompletedAt), toNullString(p.TxID), data)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO payments_outgoing (id, created_at, completed_at, succeeded_at, tx_id, data)
			VALUES (?, ?, ?, ?, ?, ?)
		`, p.ID.String(), p.CreatedAt.UnixMilli(), toNullMillis(terminalAt(p)), toNullMillis(p.CompletedAt), toNullString(p.TxID), data)
	}
	if err != nil {
		return fmt.Errorf("insert payment %s: %w", p.ID, err)
	}
	return nil
}

func updatePaymentTx(ctx context.Context, tx *sql.Tx, p payment.Payment) error {
	data, err := payment.Encode(p)
	if err != nil {
		return err
	}

	var res sql.Result
	if p.Direction == payment.DirectionIncoming {
		res, err = tx.ExecContext(ctx, `
			UPDATE payments_incoming
			SET received_at = ?, tx_id = ?, data = ?
			WHERE id = ?
		`, toNullMillis(p.CompletedAt), toNullString(p.TxID), data, p.ID.String())
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE payments_outgoing
			SET completed_at = ?, succeeded_at = ?, tx_id = ?, data = ?
			WHERE id = ?
		`, toNullMillis(terminalAt(p)), toNullMillis(p.CompletedAt), toNullString(p.TxID), data, p.ID.String())
	}
	if err != nil {
		return fmt.Errorf("update payment %s: %w", p.ID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("payment %s: %w", p.ID, storage.ErrNotFound)
	}
	return nil
}

// terminalAt is the time an outgoing payment left the pending state, whether
// it succeeded or failed.
func terminalAt(p payment.Payment) *time.Time {
	if p.CompletedAt != nil {
		return p.CompletedAt
	}
	return p.FailedAt
}

func getPaymentTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (payment.Payment, error) {
	var data []byte
	err := tx.QueryRowContext(ctx, `SELECT data FROM payments_incoming WHERE id = ?`, id.String()).Scan(&data)
	if err == sql.ErrNoRows {
		err = tx.QueryRowContext(ctx, `SELECT data FROM payments_outgoing WHERE id = ?`, id.String()).Scan(&data)
	}
	if err == sql.ErrNoRows {
		return payment.Payment{}, fmt.Errorf("payment %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return payment.Payment{}, fmt.Errorf("get payment %s: %w", id, err)
	}
	return payment.Decode(data)
}

func (s *Store) listPaymentsForTxTx(ctx context.Context, tx *sql.Tx, txID string) ([]payment.Payment, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, data FROM payments_incoming WHERE tx_id = ?
		UNION ALL
		SELECT id, data FROM payments_outgoing WHERE tx_id = ?
	`, txID, txID)
	if err != nil {
		return nil, fmt.Errorf("list payments for tx %s: %w", txID, err)
	}
	defer rows.Close()

	var result []payment.Payment
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		p, err := payment.Decode(data)
		if err != nil {
			// Malformed rows never abort the batch.
			metrics.MalformedPayload()
			s.log.Errorf(err, "skipping undecodable payment %s for tx %s", id, txID)
			continue
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
