package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chatpush/notifier/internal/domain/shared"
)

// ErrDocumentNotFound is returned when no document exists at a path.
var ErrDocumentNotFound = errors.New("postgres: document not found")

// Document is one stored record.
type Document struct {
	Path      shared.DocumentPath
	Data      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentReader reads single documents by path.
type DocumentReader interface {
	Get(ctx context.Context, path shared.DocumentPath) (*Document, error)
}

// DocumentStore is the PostgreSQL-backed DocumentReader.
type DocumentStore struct {
	db      Querier
	timeout time.Duration
}

// NewDocumentStore creates a store over conn. Reads are bounded by the
// connection's QueryTimeout.
func NewDocumentStore(conn *Connection) *DocumentStore {
	return &DocumentStore{
		db:      conn,
		timeout: conn.Config().QueryTimeout,
	}
}

// Get returns the document at path or ErrDocumentNotFound.
func (s *DocumentStore) Get(ctx context.Context, path shared.DocumentPath) (*Document, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	const query = `
		SELECT path, data, created_at, updated_at
		FROM documents
		WHERE path = $1
	`

	var (
		doc  Document
		raw  string
		data []byte
	)
	err := s.db.QueryRow(ctx, query, path.String()).Scan(&raw, &data, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("postgres: get document %s: %w", path, err)
	}

	doc.Path = shared.DocumentPath(raw)
	doc.Data = json.RawMessage(data)
	return &doc, nil
}
