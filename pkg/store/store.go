// Package store provides durable persistence for documents. It is the
// external collaborator spec.md §6.3 calls "the durable document store" —
// the document authority (pkg/authority) is the only caller.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no record exists for the given id.
var ErrNotFound = errors.New("store: document not found")

// Record is a document's durable row: the content, its version at the
// time of the write, and when it was written.
type Record struct {
	ID        string
	Content   string
	Version   int
	UpdatedAt time.Time
}

// Store is the durable document store contract (spec.md §6.3):
// get(docId), upsertById(docId, record), create(seed).
type Store interface {
	Get(ctx context.Context, id string) (Record, error)
	UpsertByID(ctx context.Context, rec Record) error
	Create(ctx context.Context, seed string) (id string, err error)
	Close() error
}
