// Package feeds exposes the paginated payment views as live feeds: each feed
// runs its query once, then re-runs it whenever a relevant change commits,
// delivering the freshest page to the consumer.
package feeds

import (
	"context"
	"sync"
	"time"

	"github.com/lnwallet/walletdb/internal/app/metrics"
	"github.com/lnwallet/walletdb/internal/domain/contact"
	"github.com/lnwallet/walletdb/internal/domain/payment"
	"github.com/lnwallet/walletdb/internal/notify"
	"github.com/lnwallet/walletdb/internal/storage"
	"github.com/lnwallet/walletdb/pkg/logger"
)

// ContactResolver attaches the contact a payment belongs to, or nil when the
// payment matches nobody in the address book.
type ContactResolver interface {
	ContactForPayment(p payment.Payment) *contact.Info
}

// DefaultPageSize is used when a feed is requested with a non-positive count.
const DefaultPageSize = 50

// Engine owns the live feeds over a QueryStore. One bus subscription fans
// change notifications out to every open feed; each feed coalesces bursts
// into a single re-query.
type Engine struct {
	store    storage.QueryStore
	resolver ContactResolver
	log      *logger.Logger

	mu          sync.Mutex
	feeds       map[*Feed]struct{}
	unsubscribe func()
	closed      bool
}

// NewEngine creates a feed engine re-querying on payment, metadata and
// contact changes. resolver may be nil, in which case pages carry no contact
// decoration.
func NewEngine(store storage.QueryStore, bus *notify.Bus, resolver ContactResolver, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	e := &Engine{
		store:    store,
		resolver: resolver,
		log:      log,
		feeds:    make(map[*Feed]struct{}),
	}
	e.unsubscribe = bus.SubscribeFiltered(
		notify.TopicFilter(notify.TopicPayments, notify.TopicMetadata, notify.TopicContacts),
		func(notify.Change) { e.kickAll() },
	)
	return e
}

func (e *Engine) kickAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for f := range e.feeds {
		f.kick()
	}
}

// All opens a feed over one page of the full payment history.
func (e *Engine) All(ctx context.Context, count, skip int64) *Feed {
	count = normalizeCount(count)
	return e.open(ctx, "all", func(ctx context.Context) ([]storage.PaymentInfo, error) {
		return e.store.ListPayments(ctx, count, skip)
	})
}

// InFlight opens a feed over one page of payments still pending.
func (e *Engine) InFlight(ctx context.Context, count, skip int64) *Feed {
	count = normalizeCount(count)
	return e.open(ctx, "in_flight", func(ctx context.Context) ([]storage.PaymentInfo, error) {
		return e.store.ListInFlight(ctx, count, skip)
	})
}

// Recent opens a feed over payments completed since the given time plus
// everything in flight.
func (e *Engine) Recent(ctx context.Context, count, skip int64, since time.Time) *Feed {
	count = normalizeCount(count)
	return e.open(ctx, "recent", func(ctx context.Context) ([]storage.PaymentInfo, error) {
		return e.store.ListRecent(ctx, count, skip, since)
	})
}

// CompletedInRange opens a feed over payments successfully completed within
// [start, end].
func (e *Engine) CompletedInRange(ctx context.Context, count, skip int64, start, end time.Time) *Feed {
	count = normalizeCount(count)
	return e.open(ctx, "completed_in_range", func(ctx context.Context) ([]storage.PaymentInfo, error) {
		return e.store.ListCompletedInRange(ctx, count, skip, start, end)
	})
}

// Close stops every open feed and detaches from the bus. The engine is
// unusable afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	unsubscribe := e.unsubscribe
	feeds := make([]*Feed, 0, len(e.feeds))
	for f := range e.feeds {
		feeds = append(feeds, f)
	}
	e.mu.Unlock()

	unsubscribe()
	for _, f := range feeds {
		f.Close()
	}
}

func (e *Engine) open(ctx context.Context, name string, query func(context.Context) ([]storage.PaymentInfo, error)) *Feed {
	ctx, cancel := context.WithCancel(ctx)
	f := &Feed{
		engine:  e,
		name:    name,
		query:   query,
		trigger: make(chan struct{}, 1),
		out:     make(chan []storage.PaymentInfo, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		cancel()
		close(f.done)
		close(f.out)
		return f
	}
	e.feeds[f] = struct{}{}
	e.mu.Unlock()

	go f.run(ctx)
	return f
}

func (e *Engine) drop(f *Feed) {
	e.mu.Lock()
	delete(e.feeds, f)
	e.mu.Unlock()
}

func normalizeCount(count int64) int64 {
	if count <= 0 {
		return DefaultPageSize
	}
	return count
}

// Feed is one live query. Updates delivers the latest page; a consumer that
// falls behind only ever sees the freshest result.
type Feed struct {
	engine *Engine
	name   string
	query  func(context.Context) ([]storage.PaymentInfo, error)

	trigger chan struct{}
	out     chan []storage.PaymentInfo
	cancel  context.CancelFunc

	closeOnce sync.Once
	done      chan struct{}
}

// Updates returns the channel the feed delivers pages on. The channel is
// closed when the feed stops.
func (f *Feed) Updates() <-chan []storage.PaymentInfo {
	return f.out
}

// Close stops the feed and closes its update channel.
func (f *Feed) Close() {
	f.closeOnce.Do(func() {
		f.engine.drop(f)
		f.cancel()
		<-f.done
	})
}

// kick requests a refresh. Pending requests coalesce.
func (f *Feed) kick() {
	select {
	case f.trigger <- struct{}{}:
	default:
	}
}

func (f *Feed) run(ctx context.Context) {
	defer close(f.done)
	defer close(f.out)

	f.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.trigger:
			f.refresh(ctx)
		}
	}
}

func (f *Feed) refresh(ctx context.Context) {
	page, err := f.query(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		f.engine.log.Errorf(err, "feed %s refresh failed", f.name)
		return
	}

	if f.engine.resolver != nil {
		for i := range page {
			page[i].Contact = f.engine.resolver.ContactForPayment(page[i].Payment)
		}
	}

	metrics.FeedRefreshed(f.name)
	deliverLatest(f.out, page)
}

// deliverLatest replaces any undelivered value on out with v, so a lagging
// subscriber always reads the newest state.
func deliverLatest[T any](out chan T, v T) {
	for {
		select {
		case out <- v:
			return
		default:
			select {
			case <-out:
			default:
			}
		}
	}
}
