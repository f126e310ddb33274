package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lnwallet/walletdb/internal/domain/payment"
	"github.com/lnwallet/walletdb/internal/notify"
)

// --- OnChainStore -----------------------------------------------------------

// MarkLocked records the lock timestamp for txID, if unset, and projects the
// locked state into every on-chain payment record referencing it. Re-locking
// and unknown transaction ids are no-ops.
func (s *Store) MarkLocked(ctx context.Context, txID string) error {
	return s.withTx(ctx, func(tx *sql.Tx, n *pending) error {
		lockedAt := now()

		res, err := tx.ExecContext(ctx, `
			UPDATE onchain_transactions
			SET locked_at = ?
			WHERE tx_id = ? AND locked_at IS NULL
		`, lockedAt.UnixMilli(), txID)
		if err != nil {
			return fmt.Errorf("mark locked %s: %w", txID, err)
		}
		if rows, _ := res.RowsAffected(); rows == 0 {
			// Already locked, or the store never learned about this tx.
			return nil
		}

		payments, err := s.listPaymentsForTxTx(ctx, tx, txID)
		if err != nil {
			return err
		}
		for _, p := range payments {
			if !p.Kind.OnChain() {
				continue
			}
			p1 := p.SetLocked(lockedAt)
			if err := updatePaymentTx(ctx, tx, p1); err != nil {
				return err
			}
			n.add(notify.Change{Topic: notify.TopicPayments, Op: notify.OpSaved, PaymentID: p1.ID})
		}

		n.add(notify.Change{Topic: notify.TopicOnChain, Op: notify.OpSaved, TxID: txID})
		return nil
	})
}

// MarkConfirmed records the confirmation timestamp for txID, if unset, and
// projects it into every referencing record. The externally visible received
// time stays pinned to the lock time. Confirming a transaction that was
// never locked locks it at the same instant, so confirmed_at is never set
// while locked_at is null.
func (s *Store) MarkConfirmed(ctx context.Context, txID string) error {
	return s.withTx(ctx, func(tx *sql.Tx, n *pending) error {
		confirmedAt := now()

		res, err := tx.ExecContext(ctx, `
			UPDATE onchain_transactions
			SET locked_at = COALESCE(locked_at, ?),
			    confirmed_at = ?
			WHERE tx_id = ? AND confirmed_at IS NULL
		`, confirmedAt.UnixMilli(), confirmedAt.UnixMilli(), txID)
		if err != nil {
			return fmt.Errorf("mark confirmed %s: %w", txID, err)
		}
		if rows, _ := res.RowsAffected(); rows == 0 {
			return nil
		}

		// The projected lock time is whatever the tracker row holds, which
		// only equals the confirm instant when the tx was never locked.
		var lockedMs int64
		if err := tx.QueryRowContext(ctx, `
			SELECT locked_at FROM onchain_transactions WHERE tx_id = ?
		`, txID).Scan(&lockedMs); err != nil {
			return fmt.Errorf("mark confirmed %s: %w", txID, err)
		}
		lockedAt := fromMillis(lockedMs)

		payments, err := s.listPaymentsForTxTx(ctx, tx, txID)
		if err != nil {
			return err
		}
		for _, p := range payments {
			if !p.Kind.OnChain() {
				continue
			}
			p1 := p.SetLocked(lockedAt).SetConfirmed(confirmedAt)
			if err := updatePaymentTx(ctx, tx, p1); err != nil {
				return err
			}
			n.add(notify.Change{Topic: notify.TopicPayments, Op: notify.OpSaved, PaymentID: p1.ID})
		}

		n.add(notify.Change{Topic: notify.TopicOnChain, Op: notify.OpSaved, TxID: txID})
		return nil
	})
}

// ListUnconfirmed returns the ids of transactions locked but not yet
// confirmed, oldest lock first.
func (s *Store) ListUnconfirmed(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_id FROM onchain_transactions
		WHERE locked_at IS NOT NULL AND confirmed_at IS NULL
		ORDER BY locked_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list unconfirmed: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var txID string
		if err := rows.Scan(&txID); err != nil {
			return nil, err
		}
		result = append(result, txID)
	}
	return result, rows.Err()
}

// InboundLiquidityPurchaseForTx returns the liquidity purchase details of
// whichever payment referencing txID carries them, or nil when none does.
func (s *Store) InboundLiquidityPurchaseForTx(ctx context.Context, txID string) (*payment.LiquidityDetails, error) {
	payments, err := s.ListPaymentsForTx(ctx, txID)
	if err != nil {
		return nil, err
	}
	for _, p := range payments {
		switch d := p.Details.(type) {
		case payment.LiquidityDetails:
			return &d, nil
		case payment.ChannelOpenDetails:
			if d.LiquidityAmountSat > 0 {
				return &payment.LiquidityDetails{
					PurchaseAmountSat: d.LiquidityAmountSat,
					ServiceFeesMsat:   d.LiquidityFeesMsat,
				}, nil
			}
		}
	}
	return nil, nil
}
