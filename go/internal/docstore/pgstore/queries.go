package pgstore

import (
	"context"
	"database/sql"

	"github.com/sqlc-dev/pqtype"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

const getDocument = `SELECT doc FROM room_documents WHERE id = $1`

func (q *Queries) GetDocument(ctx context.Context, id string) (pqtype.NullRawMessage, error) {
	var doc pqtype.NullRawMessage
	err := q.db.QueryRowContext(ctx, getDocument, id).Scan(&doc)
	return doc, err
}

const readDocument = `SELECT doc, version FROM room_documents WHERE id = $1`

func (q *Queries) ReadDocument(ctx context.Context, id string) (pqtype.NullRawMessage, int64, error) {
	var (
		doc     pqtype.NullRawMessage
		version int64
	)
	err := q.db.QueryRowContext(ctx, readDocument, id).Scan(&doc, &version)
	return doc, version, err
}

const lockDocument = `SELECT doc FROM room_documents WHERE id = $1 FOR UPDATE`

func (q *Queries) LockDocument(ctx context.Context, id string) (pqtype.NullRawMessage, error) {
	var doc pqtype.NullRawMessage
	err := q.db.QueryRowContext(ctx, lockDocument, id).Scan(&doc)
	return doc, err
}

const upsertDocument = `
INSERT INTO room_documents (id, doc, version, updated_at) VALUES ($1, $2, 1, now())
ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, version = room_documents.version + 1, updated_at = now()`

func (q *Queries) UpsertDocument(ctx context.Context, id string, doc pqtype.NullRawMessage) error {
	_, err := q.db.ExecContext(ctx, upsertDocument, id, doc)
	return err
}

const updateDocument = `UPDATE room_documents SET doc = $2, version = version + 1, updated_at = now() WHERE id = $1`

func (q *Queries) UpdateDocument(ctx context.Context, id string, doc pqtype.NullRawMessage) error {
	_, err := q.db.ExecContext(ctx, updateDocument, id, doc)
	return err
}

const notifyChange = `SELECT pg_notify($1, $2)`

func (q *Queries) NotifyChange(ctx context.Context, channel, id string) error {
	_, err := q.db.ExecContext(ctx, notifyChange, channel, id)
	return err
}
