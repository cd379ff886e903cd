package pgstore

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"dmchat/internal/docstore"
)

type argList struct {
	args []any
}

func (a *argList) add(v any) string {
	a.args = append(a.args, v)
	return fmt.Sprintf("$%d", len(a.args))
}

func jsonArg(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func pathArg(field string) any {
	return pq.Array(strings.Split(field, "."))
}

// buildQuery renders q as a single SELECT over the documents table. Field
// values are compared as jsonb so numbers, strings and booleans keep their
// JSON semantics.
func buildQuery(q docstore.Query) (string, []any, error) {
	a := &argList{}
	var sb strings.Builder
	sb.WriteString("SELECT id, data FROM documents WHERE collection = ")
	sb.WriteString(a.add(q.Collection))

	for _, f := range q.Filters {
		path := a.add(pathArg(f.Field))
		switch f.Op {
		case docstore.OpEqual:
			v, err := jsonArg(f.Value)
			if err != nil {
				return "", nil, err
			}
			fmt.Fprintf(&sb, " AND data #> %s::text[] = %s::jsonb", path, a.add(v))
		case docstore.OpArrayContains:
			v, err := jsonArg([]any{f.Value})
			if err != nil {
				return "", nil, err
			}
			fmt.Fprintf(&sb, " AND jsonb_typeof(data #> %s::text[]) = 'array' AND data #> %s::text[] @> %s::jsonb", path, path, a.add(v))
		default:
			return "", nil, fmt.Errorf("unsupported operator %q", f.Op)
		}
	}

	dir, cmp := "ASC", ">"
	if q.Descending {
		dir, cmp = "DESC", "<"
	}

	var orderExpr string
	if q.OrderBy != "" {
		orderExpr = fmt.Sprintf("data #> %s::text[]", a.add(pathArg(q.OrderBy)))
	}

	if q.StartAfter != nil {
		if orderExpr == "" {
			fmt.Fprintf(&sb, " AND id %s %s", cmp, a.add(q.StartAfter.ID))
		} else {
			v, err := jsonArg(q.StartAfter.Value)
			if err != nil {
				return "", nil, err
			}
			fmt.Fprintf(&sb, " AND (%s, id) %s (%s::jsonb, %s)", orderExpr, cmp, a.add(v), a.add(q.StartAfter.ID))
		}
	}

	sb.WriteString(" ORDER BY ")
	if orderExpr != "" {
		fmt.Fprintf(&sb, "%s %s, ", orderExpr, dir)
	}
	fmt.Fprintf(&sb, "id %s", dir)

	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}
	return sb.String(), a.args, nil
}
