package docstore

import (
	"reflect"
	"sort"
	"strings"
)

// The helpers below give backends that evaluate documents in process (the
// in-memory store, and read-modify-write paths of the SQL store) the same
// semantics.

// ApplyUpdate merges fields into data in place. Dotted names address nested
// maps, creating intermediate maps as needed; nil removes the addressed field.
func ApplyUpdate(data map[string]any, fields map[string]any) error {
	for path, v := range fields {
		if v == nil {
			deletePath(data, path)
			continue
		}
		nv, err := Normalize(v)
		if err != nil {
			return err
		}
		setPath(data, path, nv)
	}
	return nil
}

func setPath(data map[string]any, path string, v any) {
	parts := strings.Split(path, ".")
	cur := data
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

func deletePath(data map[string]any, path string) {
	parts := strings.Split(path, ".")
	cur := data
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}

// Lookup returns the value at a dotted path.
func Lookup(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = data
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// UnionValues appends each value not already present in the array at field.
func UnionValues(data map[string]any, field string, values ...any) error {
	arr, _ := data[field].([]any)
	for _, v := range values {
		nv, err := Normalize(v)
		if err != nil {
			return err
		}
		if indexOf(arr, nv) < 0 {
			arr = append(arr, nv)
		}
	}
	if arr == nil {
		arr = []any{}
	}
	data[field] = arr
	return nil
}

// RemoveValues removes every element equal to one of values from the array at field.
func RemoveValues(data map[string]any, field string, values ...any) error {
	arr, _ := data[field].([]any)
	for _, v := range values {
		nv, err := Normalize(v)
		if err != nil {
			return err
		}
		kept := arr[:0]
		for _, e := range arr {
			if !reflect.DeepEqual(e, nv) {
				kept = append(kept, e)
			}
		}
		arr = kept
	}
	if arr == nil {
		arr = []any{}
	}
	data[field] = arr
	return nil
}

func indexOf(arr []any, v any) int {
	for i, e := range arr {
		if reflect.DeepEqual(e, v) {
			return i
		}
	}
	return -1
}

// Matches reports whether data satisfies every filter.
func Matches(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		want, err := Normalize(f.Value)
		if err != nil {
			return false
		}
		got, ok := Lookup(data, f.Field)
		switch f.Op {
		case OpEqual:
			if !ok || !reflect.DeepEqual(got, want) {
				return false
			}
		case OpArrayContains:
			arr, isArr := got.([]any)
			if !ok || !isArr || indexOf(arr, want) < 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Compare orders two normalized values: nil < bool < number < string < other.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		return strings.Compare(av, b.(string))
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func compareKey(aVal any, aID string, bVal any, bID string) int {
	if c := Compare(aVal, bVal); c != 0 {
		return c
	}
	return strings.Compare(aID, bID)
}

// Run evaluates q over docs: filter, order by (OrderBy, id), apply the cursor
// and the limit.
func Run(docs []Document, q Query) ([]Document, error) {
	var after any
	if q.StartAfter != nil {
		v, err := Normalize(q.StartAfter.Value)
		if err != nil {
			return nil, err
		}
		after = v
	}

	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if Matches(d.Data, q.Filters) {
			out = append(out, d)
		}
	}

	orderVal := func(d Document) any {
		if q.OrderBy == "" {
			return nil
		}
		v, _ := Lookup(d.Data, q.OrderBy)
		return v
	}

	sort.SliceStable(out, func(i, j int) bool {
		c := compareKey(orderVal(out[i]), out[i].ID, orderVal(out[j]), out[j].ID)
		if q.Descending {
			return c > 0
		}
		return c < 0
	})

	if q.StartAfter != nil {
		filtered := out[:0]
		for _, d := range out {
			c := compareKey(orderVal(d), d.ID, after, q.StartAfter.ID)
			if (q.Descending && c < 0) || (!q.Descending && c > 0) {
				filtered = append(filtered, d)
			}
		}
		out = filtered
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}
