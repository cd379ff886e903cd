// Package mongostore implements docstore.Store on MongoDB. Each collection maps
// to a Mongo collection with the document id in _id. Subscriptions use change
// streams and therefore need a replica set.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"dmchat/internal/docstore"
)

// Store is a Mongo-backed document store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	log    *zap.SugaredLogger
}

var _ docstore.Store = (*Store)(nil)

// Connect dials uri, verifies the connection and selects database.
func Connect(ctx context.Context, uri, database string, log *zap.SugaredLogger) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	log.Infow("mongo connected", "database", database)
	return &Store{client: client, db: client.Database(database), log: log}, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return toDocument(raw), nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data map[string]any) error {
	normalized, err := docstore.Normalize(data)
	if err != nil {
		return err
	}
	m, _ := normalized.(map[string]any)
	doc := toBSON(m).(bson.D)
	doc = append(bson.D{{Key: "_id", Value: id}}, doc...)

	_, err = s.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	set := bson.D{}
	unset := bson.D{}
	for _, k := range sortedKeys(fields) {
		v := fields[k]
		if v == nil {
			unset = append(unset, bson.E{Key: k, Value: ""})
			continue
		}
		nv, err := docstore.Normalize(v)
		if err != nil {
			return err
		}
		set = append(set, bson.E{Key: k, Value: toBSON(nv)})
	}
	update := bson.D{}
	if len(set) > 0 {
		update = append(update, bson.E{Key: "$set", Value: set})
	}
	if len(unset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: unset})
	}
	if len(update) == 0 {
		_, err := s.Get(ctx, collection, id)
		return err
	}
	return s.updateOne(ctx, collection, id, update)
}

func (s *Store) ArrayUnion(ctx context.Context, collection, id, field string, values ...any) error {
	each, err := bsonValues(values)
	if err != nil {
		return err
	}
	update := bson.M{"$addToSet": bson.M{field: bson.M{"$each": each}}}
	return s.updateOne(ctx, collection, id, update)
}

func (s *Store) ArrayRemove(ctx context.Context, collection, id, field string, values ...any) error {
	in, err := bsonValues(values)
	if err != nil {
		return err
	}
	update := bson.M{"$pull": bson.M{field: bson.M{"$in": in}}}
	return s.updateOne(ctx, collection, id, update)
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	filter, opts, err := buildFind(q)
	if err != nil {
		return nil, err
	}
	cur, err := s.db.Collection(q.Collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	defer cur.Close(ctx)

	var out []docstore.Document
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, fmt.Errorf("query %s: %w", q.Collection, err)
		}
		out = append(out, toDocument(raw))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	return out, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) updateOne(ctx context.Context, collection, id string, update any) error {
	res, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func buildFind(q docstore.Query) (bson.D, *options.FindOptions, error) {
	filter := bson.D{}
	for _, f := range q.Filters {
		nv, err := docstore.Normalize(f.Value)
		if err != nil {
			return nil, nil, err
		}
		switch f.Op {
		case docstore.OpEqual:
			filter = append(filter, bson.E{Key: f.Field, Value: bson.M{"$eq": toBSON(nv)}})
		case docstore.OpArrayContains:
			filter = append(filter, bson.E{Key: f.Field, Value: bson.M{"$elemMatch": bson.M{"$eq": toBSON(nv)}}})
		default:
			return nil, nil, fmt.Errorf("unsupported operator %q", f.Op)
		}
	}

	dir := 1
	cmp := "$gt"
	if q.Descending {
		dir = -1
		cmp = "$lt"
	}

	if q.StartAfter != nil {
		after, err := docstore.Normalize(q.StartAfter.Value)
		if err != nil {
			return nil, nil, err
		}
		var cursor bson.M
		if q.OrderBy == "" {
			cursor = bson.M{"_id": bson.M{cmp: q.StartAfter.ID}}
		} else {
			cursor = bson.M{"$or": bson.A{
				bson.M{q.OrderBy: bson.M{cmp: toBSON(after)}},
				bson.M{q.OrderBy: toBSON(after), "_id": bson.M{cmp: q.StartAfter.ID}},
			}}
		}
		filter = append(filter, bson.E{Key: "$and", Value: bson.A{cursor}})
	}

	sortSpec := bson.D{}
	if q.OrderBy != "" {
		sortSpec = append(sortSpec, bson.E{Key: q.OrderBy, Value: dir})
	}
	sortSpec = append(sortSpec, bson.E{Key: "_id", Value: dir})

	opts := options.Find().SetSort(sortSpec)
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	return filter, opts, nil
}

func bsonValues(values []any) (bson.A, error) {
	out := make(bson.A, 0, len(values))
	for _, v := range values {
		nv, err := docstore.Normalize(v)
		if err != nil {
			return nil, err
		}
		out = append(out, toBSON(nv))
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// toBSON converts normalized data into BSON with maps as key-sorted bson.D, so
// equal maps always encode to the same bytes ($addToSet and $pull compare
// embedded documents field by field in order).
func toBSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		d := make(bson.D, 0, len(t))
		for _, k := range sortedKeys(t) {
			d = append(d, bson.E{Key: k, Value: toBSON(t[k])})
		}
		return d
	case []any:
		a := make(bson.A, 0, len(t))
		for _, e := range t {
			a = append(a, toBSON(e))
		}
		return a
	default:
		return v
	}
}

func toDocument(raw bson.M) docstore.Document {
	id := fmt.Sprint(raw["_id"])
	delete(raw, "_id")
	data, _ := fromBSON(raw).(map[string]any)
	if data == nil {
		data = map[string]any{}
	}
	return docstore.Document{ID: id, Data: data}
}

// fromBSON maps decoded BSON back to the canonical JSON shape. Numbers become
// float64 like every other backend.
func fromBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = fromBSON(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = fromBSON(e)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromBSON(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromBSON(e)
		}
		return out
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case primitive.DateTime:
		return float64(t)
	default:
		return v
	}
}
