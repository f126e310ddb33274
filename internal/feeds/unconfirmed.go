package feeds

import (
	"context"
	"sync"

	"github.com/lnwallet/walletdb/internal/notify"
	"github.com/lnwallet/walletdb/internal/storage"
	"github.com/lnwallet/walletdb/pkg/logger"
)

// UnconfirmedWatch is a live view of the transactions locked but not yet
// confirmed. The external chain-watcher drives its polling from this feed
// instead of re-querying on a timer.
type UnconfirmedWatch struct {
	store storage.OnChainStore
	log   *logger.Logger

	trigger chan struct{}
	out     chan []string

	unsubscribe func()
	cancel      context.CancelFunc
	closeOnce   sync.Once
	done        chan struct{}
}

// WatchUnconfirmed opens the watch. It refreshes whenever a payment or
// on-chain transaction changes.
func WatchUnconfirmed(ctx context.Context, store storage.OnChainStore, bus *notify.Bus, log *logger.Logger) *UnconfirmedWatch {
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(ctx)
	w := &UnconfirmedWatch{
		store:   store,
		log:     log,
		trigger: make(chan struct{}, 1),
		out:     make(chan []string, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	w.unsubscribe = bus.SubscribeFiltered(
		notify.TopicFilter(notify.TopicOnChain, notify.TopicPayments),
		func(notify.Change) { w.kick() },
	)
	go w.run(ctx)
	return w
}

// Updates returns the channel the watch delivers transaction id lists on.
// Closed when the watch stops.
func (w *UnconfirmedWatch) Updates() <-chan []string {
	return w.out
}

// Close stops the watch.
func (w *UnconfirmedWatch) Close() {
	w.closeOnce.Do(func() {
		w.unsubscribe()
		w.cancel()
		<-w.done
	})
}

func (w *UnconfirmedWatch) kick() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

func (w *UnconfirmedWatch) run(ctx context.Context) {
	defer close(w.done)
	defer close(w.out)

	w.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.trigger:
			w.refresh(ctx)
		}
	}
}

func (w *UnconfirmedWatch) refresh(ctx context.Context) {
	txs, err := w.store.ListUnconfirmed(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.log.Errorf(err, "unconfirmed watch refresh failed")
		return
	}
	deliverLatest(w.out, txs)
}
