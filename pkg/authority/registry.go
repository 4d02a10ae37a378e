package authority

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/collabtext/scribeserver/pkg/metrics"
	"github.com/collabtext/scribeserver/pkg/store"
)

// Default tuning, overridable via Registry construction (spec.md §4.2,
// §9 "Bounded transform tail").
const (
	DefaultTailSize         = 10
	DefaultPersistThreshold = 20
	DefaultPersistInterval  = 2 * time.Second
)

// Registry is the process-wide docId -> Authority mapping (spec.md §4.2,
// §5: "creation is serialized so at most one authority exists per
// docId"). This server assumes single-process authority per document
// (spec.md §9, cross-instance scaling is explicitly out of scope).
type Registry struct {
	store store.Store

	tailSize         int
	persistThreshold int
	persistInterval  time.Duration

	createMu sync.Mutex
	docs     sync.Map // docID -> *Authority
}

// NewRegistry constructs a Registry backed by the given durable store.
func NewRegistry(s store.Store, tailSize, persistThreshold int, persistInterval time.Duration) *Registry {
	if tailSize < 10 {
		tailSize = DefaultTailSize
	}
	if persistThreshold <= 0 {
		persistThreshold = DefaultPersistThreshold
	}
	if persistInterval <= 0 {
		persistInterval = DefaultPersistInterval
	}
	return &Registry{
		store:            s,
		tailSize:         tailSize,
		persistThreshold: persistThreshold,
		persistInterval:  persistInterval,
	}
}

// LoadOrAttach returns the in-memory authority for docID, fetching it
// from the durable store on first reference. Fails with ErrNotFound if
// no durable record exists.
func (r *Registry) LoadOrAttach(ctx context.Context, docID string) (*Authority, error) {
	if v, ok := r.docs.Load(docID); ok {
		return v.(*Authority), nil
	}

	r.createMu.Lock()
	defer r.createMu.Unlock()

	if v, ok := r.docs.Load(docID); ok {
		return v.(*Authority), nil
	}

	rec, err := r.store.Get(ctx, docID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	a := newAuthority(docID, rec.Content, rec.Version, r.tailSize, r.persistThreshold, r.persistInterval, r.store)
	r.docs.Store(docID, a)
	metrics.ActiveDocuments.Inc()
	return a, nil
}

// CreateDocument inserts a new durable record with the given seed content
// and attaches an authority for it immediately (spec.md §4.2
// createDocument).
func (r *Registry) CreateDocument(ctx context.Context, seed string) (string, error) {
	id, err := r.store.Create(ctx, seed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	a := newAuthority(id, seed, 0, r.tailSize, r.persistThreshold, r.persistInterval, r.store)
	r.docs.Store(id, a)
	metrics.ActiveDocuments.Inc()
	return id, nil
}

// Evict flushes and drops an in-memory authority, used by an idle-
// document cleaner. It does not delete the durable record.
func (r *Registry) Evict(ctx context.Context, docID string) {
	if v, ok := r.docs.LoadAndDelete(docID); ok {
		a := v.(*Authority)
		a.Stop()
		a.Flush(ctx)
		metrics.ActiveDocuments.Dec()
	}
}

// Range iterates the in-memory authorities, used by the idle cleaner.
func (r *Registry) Range(fn func(docID string, a *Authority) bool) {
	r.docs.Range(func(key, value any) bool {
		return fn(key.(string), value.(*Authority))
	})
}
