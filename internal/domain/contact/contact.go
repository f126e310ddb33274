// Package contact defines the address-book records used to decorate payment
// records for display.
package contact

import (
	"time"

	"github.com/google/uuid"
)

// Info is a single contact. A contact may be reachable through several
// bolt12 offers and may be known under several payer public keys.
type Info struct {
	ID       uuid.UUID
	Name     string
	PhotoURI string

	// UseOfferKey indicates whether the wallet reveals its own offer key
	// when paying this contact.
	UseOfferKey bool

	Offers     []Offer
	PublicKeys []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Offer is a bolt12 offer attached to a contact, identified by the offer's
// stable id.
type Offer struct {
	OfferID string `json:"offer_id"`
	Encoded string `json:"encoded,omitempty"`
}

// HasOffer reports whether the contact carries the given offer id.
func (c Info) HasOffer(offerID string) bool {
	for _, o := range c.Offers {
		if o.OfferID == offerID {
			return true
		}
	}
	return false
}

// HasPublicKey reports whether the contact is known under the given key.
func (c Info) HasPublicKey(pubKey string) bool {
	for _, k := range c.PublicKeys {
		if k == pubKey {
			return true
		}
	}
	return false
}
