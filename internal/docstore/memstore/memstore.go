// Package memstore is an in-process docstore.Store. It backs local development
// (STORE_BACKEND=memory) and the state-machine tests.
package memstore

import (
	"context"
	"sync"

	"dmchat/internal/docstore"
)

// Store keeps documents in memory. Subscribers of a collection are woken after
// the write lock is released and re-read the full state, so each delivery is a
// consistent snapshot. A result equal to the last one delivered is skipped.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any

	subMu  sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		collections: make(map[string]map[string]map[string]any),
		subs:        make(map[uint64]*subscription),
	}
}

var _ docstore.Store = (*Store)(nil)

// Get returns a copy of the document.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.collections[collection][id]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return docstore.Document{ID: id, Data: docstore.Clone(data)}, nil
}

// Set replaces or creates the document.
func (s *Store) Set(ctx context.Context, collection, id string, data map[string]any) error {
	normalized, err := docstore.Normalize(data)
	if err != nil {
		return err
	}
	m, _ := normalized.(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	return s.mutate(collection, func(coll map[string]map[string]any) error {
		coll[id] = m
		return nil
	})
}

// Update merges fields into an existing document.
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.mutate(collection, func(coll map[string]map[string]any) error {
		data, ok := coll[id]
		if !ok {
			return docstore.ErrNotFound
		}
		return docstore.ApplyUpdate(data, fields)
	})
}

// ArrayUnion adds values to the array field of an existing document.
func (s *Store) ArrayUnion(ctx context.Context, collection, id, field string, values ...any) error {
	return s.mutate(collection, func(coll map[string]map[string]any) error {
		data, ok := coll[id]
		if !ok {
			return docstore.ErrNotFound
		}
		return docstore.UnionValues(data, field, values...)
	})
}

// ArrayRemove removes values from the array field of an existing document.
func (s *Store) ArrayRemove(ctx context.Context, collection, id, field string, values ...any) error {
	return s.mutate(collection, func(coll map[string]map[string]any) error {
		data, ok := coll[id]
		if !ok {
			return docstore.ErrNotFound
		}
		return docstore.RemoveValues(data, field, values...)
	})
}

// Delete removes the document. Deleting a missing document is not an error.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.mutate(collection, func(coll map[string]map[string]any) error {
		delete(coll, id)
		return nil
	})
}

// Query runs q against the current state.
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryLocked(q)
}

func (s *Store) queryLocked(q docstore.Query) ([]docstore.Document, error) {
	coll := s.collections[q.Collection]
	docs := make([]docstore.Document, 0, len(coll))
	for id, data := range coll {
		docs = append(docs, docstore.Document{ID: id, Data: data})
	}
	res, err := docstore.Run(docs, q)
	if err != nil {
		return nil, err
	}
	for i := range res {
		res[i].Data = docstore.Clone(res[i].Data)
	}
	return res, nil
}

// Close stops every subscription.
func (s *Store) Close(ctx context.Context) error {
	s.subMu.Lock()
	subs := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subMu.Unlock()
	for _, sub := range subs {
		sub.stop()
	}
	return nil
}

func (s *Store) mutate(collection string, fn func(coll map[string]map[string]any) error) error {
	s.mu.Lock()
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]map[string]any)
		s.collections[collection] = coll
	}
	if err := fn(coll); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.wake(collection)
	return nil
}
