package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lnwallet/walletdb/internal/app/metrics"
	"github.com/lnwallet/walletdb/internal/domain/payment"
	"github.com/lnwallet/walletdb/internal/notify"
)

// MergeLiquidityPurchases is a one-time backfill pass for databases restored
// record-by-record: standalone liquidity-purchase records are folded into
// the incoming payment sharing their funding transaction.
//
// A manual purchase funding a channel-open is absorbed into the channel-open
// record and deleted; an automatic purchase funding a Lightning receive is
// kept but aligned to the receive's settlement time. Record ids are never
// duplicated and the fold is atomic. Progress is reported through the
// ordinary change notifications unless notifyFeeds is false.
func (s *Store) MergeLiquidityPurchases(ctx context.Context, notifyFeeds bool) (int, error) {
	merged := 0
	err := s.withTx(ctx, func(tx *sql.Tx, n *pending) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT data FROM payments_incoming WHERE received_at IS NOT NULL
		`)
		if err != nil {
			return fmt.Errorf("list settled incoming: %w", err)
		}

		var incoming []payment.Payment
		for rows.Next() {
			var data []byte
			if err := rows.Scan(&data); err != nil {
				rows.Close()
				return err
			}
			p, err := payment.Decode(data)
			if err != nil {
				metrics.MalformedPayload()
				s.log.Errorf(err, "skipping undecodable incoming payment during merge")
				continue
			}
			incoming = append(incoming, p)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		for _, in := range incoming {
			if in.TxID == "" {
				continue
			}
			switch in.Kind {
			case payment.KindChannelOpen:
				ok, err := s.mergeManualPurchaseTx(ctx, tx, n, in, notifyFeeds)
				if err != nil {
					return err
				}
				if ok {
					merged++
				}
			case payment.KindBolt11, payment.KindBolt12:
				ok, err := s.mergeAutoPurchaseTx(ctx, tx, n, in, notifyFeeds)
				if err != nil {
					return err
				}
				if ok {
					merged++
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return merged, nil
}

// mergeManualPurchaseTx folds a manual liquidity purchase into the
// channel-open payment funded by the same transaction, then removes the
// standalone purchase record.
func (s *Store) mergeManualPurchaseTx(ctx context.Context, tx *sql.Tx, n *pending, in payment.Payment, notifyFeeds bool) (bool, error) {
	details, _ := in.Details.(payment.ChannelOpenDetails)
	if details.LiquidityAmountSat > 0 {
		// Purchase already folded in.
		return false, nil
	}

	out, ok, err := s.findOutgoingForTx(ctx, tx, in.TxID, payment.KindLiquidityManual)
	if err != nil || !ok {
		return false, err
	}
	purchase, _ := out.Details.(payment.LiquidityDetails)

	details.LiquidityAmountSat = purchase.PurchaseAmountSat
	details.LiquidityFeesMsat = purchase.ServiceFeesMsat
	in.Details = details
	if err := updatePaymentTx(ctx, tx, in); err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM payments_outgoing WHERE id = ?`, out.ID.String())
	if err != nil {
		return false, fmt.Errorf("remove merged purchase %s: %w", out.ID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return false, nil
	}

	if notifyFeeds {
		n.add(notify.Change{Topic: notify.TopicPayments, Op: notify.OpSaved, PaymentID: in.ID})
		n.add(notify.Change{Topic: notify.TopicPayments, Op: notify.OpDeleted, PaymentID: out.ID})
	}
	return true, nil
}

// mergeAutoPurchaseTx aligns an automatic liquidity purchase to the
// settlement time of the Lightning receive funded by the same transaction.
func (s *Store) mergeAutoPurchaseTx(ctx context.Context, tx *sql.Tx, n *pending, in payment.Payment, notifyFeeds bool) (bool, error) {
	out, ok, err := s.findOutgoingForTx(ctx, tx, in.TxID, payment.KindLiquidityAuto)
	if err != nil || !ok {
		return false, err
	}
	if out.CompletedAt != nil || in.CompletedAt == nil {
		return false, nil
	}

	out.CompletedAt = in.CompletedAt
	if err := updatePaymentTx(ctx, tx, out); err != nil {
		return false, err
	}

	if notifyFeeds {
		n.add(notify.Change{Topic: notify.TopicPayments, Op: notify.OpSaved, PaymentID: in.ID})
		n.add(notify.Change{Topic: notify.TopicPayments, Op: notify.OpSaved, PaymentID: out.ID})
	}
	return true, nil
}

func (s *Store) findOutgoingForTx(ctx context.Context, tx *sql.Tx, txID string, kind payment.Kind) (payment.Payment, bool, error) {
	payments, err := s.listPaymentsForTxTx(ctx, tx, txID)
	if err != nil {
		return payment.Payment{}, false, err
	}
	for _, p := range payments {
		if p.Direction == payment.DirectionOutgoing && p.Kind == kind {
			return p, true, nil
		}
	}
	return payment.Payment{}, false, nil
}
