package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/lnwallet/walletdb/internal/domain/contact"
	"github.com/lnwallet/walletdb/internal/notify"
	"github.com/lnwallet/walletdb/internal/storage"
)

// --- ContactStore -----------------------------------------------------------

func (s *Store) SaveContact(ctx context.Context, c contact.Info) (contact.Info, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	ts := now()
	c.CreatedAt = ts
	c.UpdatedAt = ts

	offers, pubKeys, err := encodeContactSets(c)
	if err != nil {
		return contact.Info{}, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx, n *pending) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO contacts (id, name, photo_uri, use_offer_key, offers, public_keys, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ID.String(), c.Name, toNullString(c.PhotoURI), c.UseOfferKey, offers, pubKeys, ts.UnixMilli(), ts.UnixMilli())
		if err != nil {
			return fmt.Errorf("save contact %s: %w", c.ID, err)
		}
		n.add(notify.Change{Topic: notify.TopicContacts, Op: notify.OpSaved, ContactID: c.ID})
		return nil
	})
	if err != nil {
		return contact.Info{}, err
	}
	return c, nil
}

func (s *Store) UpdateContact(ctx context.Context, c contact.Info) (contact.Info, error) {
	offers, pubKeys, err := encodeContactSets(c)
	if err != nil {
		return contact.Info{}, err
	}
	c.UpdatedAt = now()

	err = s.withTx(ctx, func(tx *sql.Tx, n *pending) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE contacts
			SET name = ?, photo_uri = ?, use_offer_key = ?, offers = ?, public_keys = ?, updated_at = ?
			WHERE id = ?
		`, c.Name, toNullString(c.PhotoURI), c.UseOfferKey, offers, pubKeys, c.UpdatedAt.UnixMilli(), c.ID.String())
		if err != nil {
			return fmt.Errorf("update contact %s: %w", c.ID, err)
		}
		if rows, _ := res.RowsAffected(); rows == 0 {
			return fmt.Errorf("contact %s: %w", c.ID, storage.ErrNotFound)
		}
		n.add(notify.Change{Topic: notify.TopicContacts, Op: notify.OpSaved, ContactID: c.ID})
		return nil
	})
	if err != nil {
		return contact.Info{}, err
	}
	return c, nil
}

func (s *Store) GetContact(ctx context.Context, id uuid.UUID) (contact.Info, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, photo_uri, use_offer_key, offers, public_keys, created_at, updated_at
		FROM contacts
		WHERE id = ?
	`, id.String())

	c, err := scanContact(row)
	if err == sql.ErrNoRows {
		return contact.Info{}, fmt.Errorf("contact %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return contact.Info{}, fmt.Errorf("get contact %s: %w", id, err)
	}
	return c, nil
}

func (s *Store) ListContacts(ctx context.Context) ([]contact.Info, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, photo_uri, use_offer_key, offers, public_keys, created_at, updated_at
		FROM contacts
		ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var result []contact.Info
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) DeleteContact(ctx context.Context, id uuid.UUID) error {
	return s.withTx(ctx, func(tx *sql.Tx, n *pending) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id.String())
		if err != nil {
			return fmt.Errorf("delete contact %s: %w", id, err)
		}
		if rows, _ := res.RowsAffected(); rows == 0 {
			return fmt.Errorf("contact %s: %w", id, storage.ErrNotFound)
		}
		n.add(notify.Change{Topic: notify.TopicContacts, Op: notify.OpDeleted, ContactID: id})
		return nil
	})
}

// DetachOffer removes the offer link from whichever contact carries it. No
// matching contact is a no-op.
func (s *Store) DetachOffer(ctx context.Context, offerID string) error {
	contacts, err := s.ListContacts(ctx)
	if err != nil {
		return err
	}
	for _, c := range contacts {
		if !c.HasOffer(offerID) {
			continue
		}
		kept := c.Offers[:0:0]
		for _, o := range c.Offers {
			if o.OfferID != offerID {
				kept = append(kept, o)
			}
		}
		c.Offers = kept
		_, err := s.UpdateContact(ctx, c)
		return err
	}
	return nil
}

// --- helpers ----------------------------------------------------------------

func encodeContactSets(c contact.Info) ([]byte, []byte, error) {
	offers, err := json.Marshal(c.Offers)
	if err != nil {
		return nil, nil, fmt.Errorf("encode contact %s offers: %w", c.ID, err)
	}
	pubKeys, err := json.Marshal(c.PublicKeys)
	if err != nil {
		return nil, nil, fmt.Errorf("encode contact %s keys: %w", c.ID, err)
	}
	return offers, pubKeys, nil
}

type contactScanner interface {
	Scan(dest ...any) error
}

func scanContact(row contactScanner) (contact.Info, error) {
	var (
		c          contact.Info
		idRaw      string
		photoURI   sql.NullString
		offersRaw  []byte
		pubKeysRaw []byte
		createdAt  int64
		updatedAt  int64
	)
	if err := row.Scan(&idRaw, &c.Name, &photoURI, &c.UseOfferKey, &offersRaw, &pubKeysRaw, &createdAt, &updatedAt); err != nil {
		return contact.Info{}, err
	}

	id, err := uuid.Parse(idRaw)
	if err != nil {
		return contact.Info{}, fmt.Errorf("bad contact id %q: %w", idRaw, err)
	}
	c.ID = id
	c.PhotoURI = photoURI.String
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)

	if len(offersRaw) > 0 {
		_ = json.Unmarshal(offersRaw, &c.Offers)
	}
	if len(pubKeysRaw) > 0 {
		_ = json.Unmarshal(pubKeysRaw, &c.PublicKeys)
	}
	return c, nil
}
