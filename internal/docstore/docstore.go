// Package docstore defines the document database the chat client is built on:
// keyed documents grouped in collections, field-level merges, atomic array
// union/remove, ordered range queries with cursors and change subscriptions that
// deliver an initial snapshot followed by an ordered stream of full-state updates.
package docstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Document is a single stored document.
type Document struct {
	ID   string
	Data map[string]any
}

// Op is a query filter operator.
type Op string

const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
)

// Filter restricts a query to documents whose field matches a value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Cursor points at a document in a query's sort order. Results start strictly
// after the (Value, ID) tuple, so documents sharing the same order value are
// neither skipped nor repeated across pages.
type Cursor struct {
	Value any
	ID    string
}

// Query selects documents from one collection. Results are ordered by OrderBy
// and then by document id in the same direction.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
	StartAfter *Cursor
}

// NewQuery starts a query over collection.
func NewQuery(collection string) Query {
	return Query{Collection: collection}
}

// Where adds a filter.
func (q Query) Where(field string, op Op, value any) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Op: op, Value: value})
	return q
}

// Order sets the sort field and direction.
func (q Query) Order(field string, descending bool) Query {
	q.OrderBy = field
	q.Descending = descending
	return q
}

// Take limits the number of results.
func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

// After sets the pagination cursor.
func (q Query) After(c Cursor) Query {
	q.StartAfter = &c
	return q
}

// Unsubscribe stops a subscription. It is safe to call more than once.
type Unsubscribe func()

// DocListener receives the full state of a single document.
type DocListener func(doc Document, exists bool)

// QueryListener receives the full result set of a query.
type QueryListener func(docs []Document)

// ErrorListener receives subscription failures. The subscription is closed
// after an error is delivered.
type ErrorListener func(err error)

// Store is the document database consumed by every repository.
//
// Update merges fields into an existing document (ErrNotFound when it is
// missing). Field names may be dotted paths into nested maps; a nil value
// removes the field. Set replaces or creates a whole document.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Set(ctx context.Context, collection, id string, data map[string]any) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	ArrayUnion(ctx context.Context, collection, id, field string, values ...any) error
	ArrayRemove(ctx context.Context, collection, id, field string, values ...any) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, q Query) ([]Document, error)
	SubscribeDoc(ctx context.Context, collection, id string, onNext DocListener, onError ErrorListener) (Unsubscribe, error)
	SubscribeQuery(ctx context.Context, q Query, onNext QueryListener, onError ErrorListener) (Unsubscribe, error)
	Close(ctx context.Context) error
}
