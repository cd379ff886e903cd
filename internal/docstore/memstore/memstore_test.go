package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmchat/internal/docstore"
)

func seedMessages(t *testing.T, s *Store, rows ...struct {
	id string
	at int64
}) {
	t.Helper()
	for _, r := range rows {
		require.NoError(t, s.Set(context.Background(), "messages", r.id, map[string]any{
			"conversationId": "a_b",
			"createdAt":      r.at,
		}))
	}
}

func ids(docs []docstore.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), "users", "nope")
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestSetAndGetReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "users", "u1", map[string]any{"name": "Ann", "friends": []string{"u2"}}))

	doc, err := s.Get(ctx, "users", "u1")
	require.NoError(t, err)
	doc.Data["name"] = "changed"

	again, err := s.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", again.Data["name"])
	assert.Equal(t, []any{"u2"}, again.Data["friends"])
}

func TestUpdateDottedPathAndNilDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "conversations", "a_b", map[string]any{
		"unreadCount": map[string]any{"a": 2, "b": 0},
		"typing":      map[string]any{"a": 100},
	}))

	require.NoError(t, s.Update(ctx, "conversations", "a_b", map[string]any{
		"unreadCount.b": 3,
		"typing.a":      nil,
	}))

	doc, err := s.Get(ctx, "conversations", "a_b")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(2), "b": float64(3)}, doc.Data["unreadCount"])
	assert.Equal(t, map[string]any{}, doc.Data["typing"])
}

func TestUpdateMissingDocument(t *testing.T) {
	s := New()
	err := s.Update(context.Background(), "users", "ghost", map[string]any{"name": "x"})
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestArrayUnionAndRemove(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "users", "u1", map[string]any{}))

	note := map[string]any{"type": "friendRequest", "from": "u2", "timestamp": 5}
	require.NoError(t, s.ArrayUnion(ctx, "users", "u1", "notifications", note))
	require.NoError(t, s.ArrayUnion(ctx, "users", "u1", "notifications", note))
	require.NoError(t, s.ArrayUnion(ctx, "users", "u1", "friends", "u2", "u3", "u2"))

	doc, err := s.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Len(t, doc.Data["notifications"], 1)
	assert.Equal(t, []any{"u2", "u3"}, doc.Data["friends"])

	require.NoError(t, s.ArrayRemove(ctx, "users", "u1", "notifications", note))
	require.NoError(t, s.ArrayRemove(ctx, "users", "u1", "friends", "u3"))
	doc, err = s.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Empty(t, doc.Data["notifications"])
	assert.Equal(t, []any{"u2"}, doc.Data["friends"])
}

func TestQueryFiltersAndArrayContains(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "conversations", "a_b", map[string]any{"participants": []string{"a", "b"}}))
	require.NoError(t, s.Set(ctx, "conversations", "b_c", map[string]any{"participants": []string{"b", "c"}}))
	require.NoError(t, s.Set(ctx, "friendRequests", "r1", map[string]any{"senderId": "a", "recipientId": "b"}))
	require.NoError(t, s.Set(ctx, "friendRequests", "r2", map[string]any{"senderId": "c", "recipientId": "b"}))

	convs, err := s.Query(ctx, docstore.NewQuery("conversations").Where("participants", docstore.OpArrayContains, "a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a_b"}, ids(convs))

	reqs, err := s.Query(ctx, docstore.NewQuery("friendRequests").
		Where("senderId", docstore.OpEqual, "a").
		Where("recipientId", docstore.OpEqual, "b"))
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, ids(reqs))
}

func TestQueryCursorBreaksTimestampTies(t *testing.T) {
	s := New()
	ctx := context.Background()
	type row = struct {
		id string
		at int64
	}
	seedMessages(t, s, row{"m1", 10}, row{"m2", 20}, row{"m3", 20}, row{"m4", 20}, row{"m5", 30})

	base := docstore.NewQuery("messages").
		Where("conversationId", docstore.OpEqual, "a_b").
		Order("createdAt", true).
		Take(2)

	first, err := s.Query(ctx, base)
	require.NoError(t, err)
	require.Equal(t, []string{"m5", "m4"}, ids(first))

	last := first[len(first)-1]
	second, err := s.Query(ctx, base.After(docstore.Cursor{Value: last.Data["createdAt"], ID: last.ID}))
	require.NoError(t, err)
	require.Equal(t, []string{"m3", "m2"}, ids(second))

	last = second[len(second)-1]
	third, err := s.Query(ctx, base.After(docstore.Cursor{Value: last.Data["createdAt"], ID: last.ID}))
	require.NoError(t, err)
	require.Equal(t, []string{"m1"}, ids(third))
}

func TestSubscribeDocDeliversSnapshotThenUpdates(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "users", "u1", map[string]any{"name": "Ann"}))

	var mu sync.Mutex
	var names []any
	unsub, err := s.SubscribeDoc(ctx, "users", "u1", func(doc docstore.Document, exists bool) {
		mu.Lock()
		defer mu.Unlock()
		names = append(names, doc.Data["name"])
	}, nil)
	require.NoError(t, err)
	defer unsub()

	mu.Lock()
	require.Equal(t, []any{"Ann"}, names)
	mu.Unlock()

	require.NoError(t, s.Update(ctx, "users", "u1", map[string]any{"name": "Bea"}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(names) > 0 && names[len(names)-1] == "Bea"
	}, time.Second, 5*time.Millisecond)
}

func TestSubscribeDocMissingDocument(t *testing.T) {
	s := New()
	var gotExists = true
	unsub, err := s.SubscribeDoc(context.Background(), "users", "ghost", func(doc docstore.Document, exists bool) {
		gotExists = exists
	}, nil)
	require.NoError(t, err)
	defer unsub()
	assert.False(t, gotExists)
}

func TestSubscribeQueryStopsAfterUnsubscribe(t *testing.T) {
	s := New()
	ctx := context.Background()

	var mu sync.Mutex
	calls := 0
	unsub, err := s.SubscribeQuery(ctx, docstore.NewQuery("messages"), func(docs []docstore.Document) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "messages", "m1", map[string]any{"createdAt": 1}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, time.Second, 5*time.Millisecond)

	unsub()
	unsub()
	mu.Lock()
	before := calls
	mu.Unlock()

	require.NoError(t, s.Set(ctx, "messages", "m2", map[string]any{"createdAt": 2}))
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, before, calls)
	mu.Unlock()
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	_, err := s.SubscribeQuery(ctx, docstore.NewQuery("messages"), func([]docstore.Document) {}, nil)
	require.NoError(t, err)

	cancel()
	require.Eventually(t, func() bool {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		return len(s.subs) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestSubscribeQuerySkipsUnchangedResults(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedMessages(t, s, struct {
		id string
		at int64
	}{"m1", 1})

	var mu sync.Mutex
	var deliveries [][]string
	q := docstore.NewQuery("messages").Where("conversationId", docstore.OpEqual, "a_b")
	unsub, err := s.SubscribeQuery(ctx, q, func(docs []docstore.Document) {
		mu.Lock()
		defer mu.Unlock()
		deliveries = append(deliveries, ids(docs))
	}, nil)
	require.NoError(t, err)
	defer unsub()

	for _, id := range []string{"x1", "x2", "x3"} {
		require.NoError(t, s.Set(ctx, "messages", id, map[string]any{"conversationId": "x_y", "createdAt": 5}))
	}
	require.NoError(t, s.Update(ctx, "messages", "m1", map[string]any{"createdAt": int64(1)}))
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Len(t, deliveries, 1)
	mu.Unlock()

	require.NoError(t, s.Set(ctx, "messages", "m2", map[string]any{"conversationId": "a_b", "createdAt": 2}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(deliveries) == 2 && len(deliveries[1]) == 2
	}, time.Second, 5*time.Millisecond)
}
