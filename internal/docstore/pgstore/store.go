// Package pgstore implements docstore.Store on PostgreSQL. All documents live
// in one JSONB table keyed by (collection, id); writes announce themselves with
// pg_notify and subscriptions re-read on every notification they receive.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"dmchat/internal/docstore"
)

// Store is a Postgres-backed document store.
type Store struct {
	db       *sqlx.DB
	log      *zap.SugaredLogger
	notifier *notifier
}

var _ docstore.Store = (*Store)(nil)

// New wraps db. dsn is used for the dedicated LISTEN connection.
func New(db *sqlx.DB, dsn string, log *zap.SugaredLogger) (*Store, error) {
	n, err := newNotifier(dsn, log)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, log: log, notifier: n}, nil
}

type row struct {
	ID   string `db:"id"`
	Data []byte `db:"data"`
}

func (r row) document() (docstore.Document, error) {
	data := map[string]any{}
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return docstore.Document{}, fmt.Errorf("decode %s: %w", r.ID, err)
	}
	return docstore.Document{ID: r.ID, Data: data}, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var r row
	err := s.db.GetContext(ctx, &r, `SELECT id, data FROM documents WHERE collection=$1 AND id=$2`, collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return r.document()
}

func (s *Store) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)
            ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`, collection, id, string(raw))
		if err != nil {
			return fmt.Errorf("set %s/%s: %w", collection, id, err)
		}
		return notify(ctx, tx, collection, id)
	})
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.modify(ctx, collection, id, func(data map[string]any) error {
		return docstore.ApplyUpdate(data, fields)
	})
}

func (s *Store) ArrayUnion(ctx context.Context, collection, id, field string, values ...any) error {
	return s.modify(ctx, collection, id, func(data map[string]any) error {
		return docstore.UnionValues(data, field, values...)
	})
}

func (s *Store) ArrayRemove(ctx context.Context, collection, id, field string, values ...any) error {
	return s.modify(ctx, collection, id, func(data map[string]any) error {
		return docstore.RemoveValues(data, field, values...)
	})
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection=$1 AND id=$2`, collection, id)
		if err != nil {
			return fmt.Errorf("delete %s/%s: %w", collection, id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		return notify(ctx, tx, collection, id)
	})
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	query, args, err := buildQuery(q)
	if err != nil {
		return nil, err
	}
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	out := make([]docstore.Document, 0, len(rows))
	for _, r := range rows {
		doc, err := r.document()
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// Close stops the listener. The *sqlx.DB is owned by the caller.
func (s *Store) Close(ctx context.Context) error {
	return s.notifier.close()
}

// modify runs a read-modify-write of one document under a row lock.
func (s *Store) modify(ctx context.Context, collection, id string, fn func(map[string]any) error) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var r row
		err := tx.GetContext(ctx, &r, `SELECT id, data FROM documents WHERE collection=$1 AND id=$2 FOR UPDATE`, collection, id)
		if errors.Is(err, sql.ErrNoRows) {
			return docstore.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock %s/%s: %w", collection, id, err)
		}
		doc, err := r.document()
		if err != nil {
			return err
		}
		if err := fn(doc.Data); err != nil {
			return err
		}
		raw, err := json.Marshal(doc.Data)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE documents SET data=$3::jsonb, updated_at=NOW() WHERE collection=$1 AND id=$2`, collection, id, string(raw)); err != nil {
			return fmt.Errorf("update %s/%s: %w", collection, id, err)
		}
		return notify(ctx, tx, collection, id)
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type change struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

func notify(ctx context.Context, tx *sqlx.Tx, collection, id string) error {
	payload, err := json.Marshal(change{Collection: collection, ID: id})
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(payload)); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
