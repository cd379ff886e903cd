package mongostore

import (
	"context"
	"errors"
	"reflect"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"dmchat/internal/docstore"
)

// SubscribeDoc opens a change stream on the document, delivers its current
// state and then re-reads it after every change event.
func (s *Store) SubscribeDoc(ctx context.Context, collection, id string, onNext docstore.DocListener, onError docstore.ErrorListener) (docstore.Unsubscribe, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"documentKey._id": id}}},
	}
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
	return s.watch(ctx, collection, pipeline, read, onError)
}

// SubscribeQuery opens a change stream on the query's collection and re-runs
// the query after every change event. Unchanged results are not redelivered.
func (s *Store) SubscribeQuery(ctx context.Context, q docstore.Query, onNext docstore.QueryListener, onError docstore.ErrorListener) (docstore.Unsubscribe, error) {
	read := func(ctx context.Context) (func(), any, error) {
		docs, err := s.Query(ctx, q)
		if err != nil {
			return nil, nil, err
		}
		return func() { onNext(docs) }, docs, nil
	}
	return s.watch(ctx, q.Collection, mongo.Pipeline{}, read, onError)
}

func (s *Store) watch(ctx context.Context, collection string, pipeline mongo.Pipeline, read func(context.Context) (func(), any, error), onError docstore.ErrorListener) (docstore.Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)

	// The stream is opened before the first read so no change falls between them.
	cs, err := s.db.Collection(collection).Watch(ctx, pipeline)
	if err != nil {
		cancel()
		return nil, err
	}

	deliver, last, err := read(ctx)
	if err != nil {
		cancel()
		_ = cs.Close(context.Background())
		return nil, err
	}
	deliver()

	go func() {
		defer cs.Close(context.Background())
		for cs.Next(ctx) {
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
		if err := cs.Err(); err != nil && ctx.Err() == nil {
			s.log.Warnw("change stream closed", "collection", collection, "error", err)
			if onError != nil {
				onError(err)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(cancel)
	}, nil
}
