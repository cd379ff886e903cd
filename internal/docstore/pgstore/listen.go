package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"dmchat/internal/docstore"
)

// notifier fans pg_notify payloads out to subscriptions of the affected
// collection. A nil notification (sent by pq after a reconnect) wakes every
// subscription since changes may have been missed.
type notifier struct {
	listener *pq.Listener
	log      *zap.SugaredLogger

	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
	done   chan struct{}
}

func newNotifier(dsn string, log *zap.SugaredLogger) (*notifier, error) {
	listener := pq.NewListener(dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warnw("listener event", "event", ev, "error", err)
		}
	})
	if err := listener.Listen(notifyChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen %s: %w", notifyChannel, err)
	}
	n := &notifier{
		listener: listener,
		log:      log,
		subs:     make(map[uint64]*subscription),
		done:     make(chan struct{}),
	}
	go n.run()
	return n, nil
}

func (n *notifier) run() {
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-n.done:
			return
		case note, ok := <-n.listener.Notify:
			if !ok {
				return
			}
			if note == nil {
				n.wake("")
				continue
			}
			var c change
			if err := json.Unmarshal([]byte(note.Extra), &c); err != nil {
				n.log.Warnw("bad notification payload", "payload", note.Extra, "error", err)
				continue
			}
			n.wake(c.Collection)
		case <-ping.C:
			go func() { _ = n.listener.Ping() }()
		}
	}
}

func (n *notifier) wake(collection string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, sub := range n.subs {
		if collection != "" && sub.collection != collection {
			continue
		}
		select {
		case sub.kick <- struct{}{}:
		default:
		}
	}
}

func (n *notifier) close() error {
	select {
	case <-n.done:
		return nil
	default:
	}
	close(n.done)
	n.mu.Lock()
	subs := make([]*subscription, 0, len(n.subs))
	for _, sub := range n.subs {
		subs = append(subs, sub)
	}
	n.mu.Unlock()
	for _, sub := range subs {
		sub.stop()
	}
	return n.listener.Close()
}

type subscription struct {
	id         uint64
	collection string
	n          *notifier
	kick       chan struct{}
	cancel     context.CancelFunc
	once       sync.Once
}

func (sub *subscription) stop() {
	sub.once.Do(func() {
		sub.cancel()
		sub.n.mu.Lock()
		delete(sub.n.subs, sub.id)
		sub.n.mu.Unlock()
	})
}

// SubscribeDoc delivers the document's current state, then every changed state.
func (s *Store) SubscribeDoc(ctx context.Context, collection, id string, onNext docstore.DocListener, onError docstore.ErrorListener) (docstore.Unsubscribe, error) {
	read := func(ctx context.Context) (func(), any, error) {
		doc, err := s.Get(ctx, collection, id)
		if errors.Is(err, docstore.ErrNotFound) {
			return func() { onNext(docstore.Document{ID: id}, false) }, nil, nil
		}
		if err != nil {
			return nil, nil, err
		}
		return func() { onNext(doc, true) }, doc.Data, nil
	}
	return s.subscribe(ctx, collection, read, onError)
}

// SubscribeQuery delivers the query's result, then every changed result.
func (s *Store) SubscribeQuery(ctx context.Context, q docstore.Query, onNext docstore.QueryListener, onError docstore.ErrorListener) (docstore.Unsubscribe, error) {
	read := func(ctx context.Context) (func(), any, error) {
		docs, err := s.Query(ctx, q)
		if err != nil {
			return nil, nil, err
		}
		return func() { onNext(docs) }, docs, nil
	}
	return s.subscribe(ctx, q.Collection, read, onError)
}

func (s *Store) subscribe(ctx context.Context, collection string, read func(context.Context) (func(), any, error), onError docstore.ErrorListener) (docstore.Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)
	n := s.notifier

	n.mu.Lock()
	n.nextID++
	sub := &subscription{
		id:         n.nextID,
		collection: collection,
		n:          n,
		kick:       make(chan struct{}, 1),
		cancel:     cancel,
	}
	n.subs[sub.id] = sub
	n.mu.Unlock()

	deliver, last, err := read(ctx)
	if err != nil {
		sub.stop()
		return nil, err
	}
	deliver()

	go func() {
		defer sub.stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.kick:
				deliver, state, err := read(ctx)
				if err != nil {
					if ctx.Err() == nil && onError != nil {
						onError(err)
					}
					return
				}
				if reflect.DeepEqual(state, last) {
					continue
				}
				last = state
				if ctx.Err() != nil {
					return
				}
				deliver()
			}
		}
	}()

	return sub.stop, nil
}
