package memstore

import (
	"context"
	"reflect"
	"sync"

	"dmchat/internal/docstore"
)

type subscription struct {
	id         uint64
	collection string
	read       func() (func(), any, error)
	onError    docstore.ErrorListener

	kick chan struct{}
	done chan struct{}
	once sync.Once
	s    *Store

	// last is the state most recently handed to the listener.
	last any
}

type docState struct {
	data   map[string]any
	exists bool
}

// SubscribeDoc delivers the document's current state before returning, then
// every later state from a background goroutine.
func (s *Store) SubscribeDoc(ctx context.Context, collection, id string, onNext docstore.DocListener, onError docstore.ErrorListener) (docstore.Unsubscribe, error) {
	read := func() (func(), any, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		data, ok := s.collections[collection][id]
		doc := docstore.Document{ID: id, Data: docstore.Clone(data)}
		state := docState{data: docstore.Clone(data), exists: ok}
		return func() { onNext(doc, ok) }, state, nil
	}
	return s.subscribe(ctx, collection, read, onError)
}

// SubscribeQuery delivers the query's current result before returning, then
// every later result from a background goroutine.
func (s *Store) SubscribeQuery(ctx context.Context, q docstore.Query, onNext docstore.QueryListener, onError docstore.ErrorListener) (docstore.Unsubscribe, error) {
	read := func() (func(), any, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		docs, err := s.queryLocked(q)
		if err != nil {
			return nil, nil, err
		}
		state := make([]docstore.Document, len(docs))
		for i, d := range docs {
			state[i] = docstore.Document{ID: d.ID, Data: docstore.Clone(d.Data)}
		}
		return func() { onNext(docs) }, state, nil
	}
	return s.subscribe(ctx, q.Collection, read, onError)
}

func (s *Store) subscribe(ctx context.Context, collection string, read func() (func(), any, error), onError docstore.ErrorListener) (docstore.Unsubscribe, error) {
	// Register before the first read so a write landing in between still kicks.
	s.subMu.Lock()
	s.nextID++
	sub := &subscription{
		id:         s.nextID,
		collection: collection,
		read:       read,
		onError:    onError,
		kick:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		s:          s,
	}
	s.subs[sub.id] = sub
	s.subMu.Unlock()

	deliver, state, err := read()
	if err != nil {
		sub.stop()
		return nil, err
	}
	sub.last = state
	deliver()
	go sub.loop(ctx)
	return sub.stop, nil
}

func (sub *subscription) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			sub.stop()
			return
		case <-sub.done:
			return
		case <-sub.kick:
			deliver, state, err := sub.read()
			if err != nil {
				if sub.onError != nil {
					sub.onError(err)
				}
				sub.stop()
				return
			}
			if reflect.DeepEqual(state, sub.last) {
				continue
			}
			sub.last = state
			select {
			case <-sub.done:
				return
			default:
			}
			deliver()
		}
	}
}

func (sub *subscription) stop() {
	sub.once.Do(func() {
		close(sub.done)
		sub.s.subMu.Lock()
		delete(sub.s.subs, sub.id)
		sub.s.subMu.Unlock()
	})
}

func (s *Store) wake(collection string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, sub := range s.subs {
		if sub.collection != collection {
			continue
		}
		select {
		case sub.kick <- struct{}{}:
		default:
		}
	}
}
