// Package contacts maintains the in-memory contact resolution cache: three
// indices (contact id, offer id, payer public key) rebuilt from storage
// whenever the contacts table changes.
package contacts

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/lnwallet/walletdb/internal/domain/contact"
	"github.com/lnwallet/walletdb/internal/domain/payment"
	"github.com/lnwallet/walletdb/internal/notify"
	"github.com/lnwallet/walletdb/internal/storage"
	"github.com/lnwallet/walletdb/pkg/logger"
)

// Manager fronts the contact store with a read cache and resolves payments
// to the contact they involve. Mutations go through the store; the cache
// follows the store's change notifications.
type Manager struct {
	store storage.ContactStore
	log   *logger.Logger

	mu       sync.RWMutex
	byID     map[uuid.UUID]contact.Info
	byOffer  map[string]uuid.UUID
	byPubKey map[string]uuid.UUID

	unsubscribe func()
	rebuilds    chan struct{}
	closeOnce   sync.Once
	done        chan struct{}
	stopped     chan struct{}
}

// New builds the cache from storage and keeps it current until Close.
func New(ctx context.Context, store storage.ContactStore, bus *notify.Bus, log *logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.Nop()
	}
	m := &Manager{
		store:    store,
		log:      log,
		byID:     make(map[uuid.UUID]contact.Info),
		byOffer:  make(map[string]uuid.UUID),
		byPubKey: make(map[string]uuid.UUID),
		rebuilds: make(chan struct{}, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	if err := m.rebuild(ctx); err != nil {
		return nil, err
	}

	m.unsubscribe = bus.SubscribeFiltered(
		notify.TopicFilter(notify.TopicContacts),
		func(notify.Change) { m.kick() },
	)
	go m.loop()
	return m, nil
}

// Close detaches from the bus and stops the rebuild worker.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.unsubscribe()
		close(m.done)
		<-m.stopped
	})
}

func (m *Manager) kick() {
	select {
	case m.rebuilds <- struct{}{}:
	default:
	}
}

func (m *Manager) loop() {
	defer close(m.stopped)
	for {
		select {
		case <-m.done:
			return
		case <-m.rebuilds:
			if err := m.rebuild(context.Background()); err != nil {
				m.log.Errorf(err, "contact cache rebuild failed")
			}
		}
	}
}

// rebuild replaces all three indices from a full storage read. Duplicate
// offer ids or keys across contacts resolve to the last contact listed.
func (m *Manager) rebuild(ctx context.Context) error {
	all, err := m.store.ListContacts(ctx)
	if err != nil {
		return err
	}

	byID := make(map[uuid.UUID]contact.Info, len(all))
	byOffer := make(map[string]uuid.UUID)
	byPubKey := make(map[string]uuid.UUID)
	for _, c := range all {
		byID[c.ID] = c
		for _, o := range c.Offers {
			byOffer[o.OfferID] = c.ID
		}
		for _, k := range c.PublicKeys {
			byPubKey[k] = c.ID
		}
	}

	m.mu.Lock()
	m.byID = byID
	m.byOffer = byOffer
	m.byPubKey = byPubKey
	m.mu.Unlock()
	return nil
}

// --- resolution -------------------------------------------------------------

// ContactForPayment resolves the contact a payment involves: the payer of an
// incoming bolt12 payment by payer key, the payee of an outgoing bolt12
// payment by offer id. Other payments resolve to nobody.
func (m *Manager) ContactForPayment(p payment.Payment) *contact.Info {
	details, ok := p.Details.(payment.Bolt12Details)
	if !ok {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var id uuid.UUID
	switch p.Direction {
	case payment.DirectionIncoming:
		if details.PayerKey == "" {
			return nil
		}
		id, ok = m.byPubKey[details.PayerKey]
	case payment.DirectionOutgoing:
		if details.OfferID == "" {
			return nil
		}
		id, ok = m.byOffer[details.OfferID]
	default:
		return nil
	}
	if !ok {
		return nil
	}
	c, ok := m.byID[id]
	if !ok {
		return nil
	}
	return &c
}

// Contact returns the cached contact for id.
func (m *Manager) Contact(id uuid.UUID) (contact.Info, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byID[id]
	return c, ok
}

// ContactIDForOffer resolves an offer id to the contact carrying it.
func (m *Manager) ContactIDForOffer(offerID string) (uuid.UUID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byOffer[offerID]
	return id, ok
}

// ContactIDForPayerKey resolves a payer public key to the contact known
// under it.
func (m *Manager) ContactIDForPayerKey(pubKey string) (uuid.UUID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPubKey[pubKey]
	return id, ok
}

// Contacts returns a snapshot of every cached contact, unordered.
func (m *Manager) Contacts() []contact.Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]contact.Info, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, c)
	}
	return out
}

// --- mutations --------------------------------------------------------------

// SaveContact persists a new contact. The cache is refreshed before
// returning so the caller reads its own write.
func (m *Manager) SaveContact(ctx context.Context, c contact.Info) (contact.Info, error) {
	saved, err := m.store.SaveContact(ctx, c)
	if err != nil {
		return contact.Info{}, err
	}
	return saved, m.rebuild(ctx)
}

// UpdateContact persists changes to an existing contact.
func (m *Manager) UpdateContact(ctx context.Context, c contact.Info) (contact.Info, error) {
	updated, err := m.store.UpdateContact(ctx, c)
	if err != nil {
		return contact.Info{}, err
	}
	return updated, m.rebuild(ctx)
}

// DeleteContact removes a contact. Payments that resolved to it resolve to
// nobody afterwards.
func (m *Manager) DeleteContact(ctx context.Context, id uuid.UUID) error {
	if err := m.store.DeleteContact(ctx, id); err != nil {
		return err
	}
	return m.rebuild(ctx)
}

// DetachOfferFromContact removes an offer link from whichever contact
// carries it.
func (m *Manager) DetachOfferFromContact(ctx context.Context, offerID string) error {
	if err := m.store.DetachOffer(ctx, offerID); err != nil {
		return err
	}
	return m.rebuild(ctx)
}
