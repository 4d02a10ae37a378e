// Package authority implements the per-document authoritative state
// machine: the single in-memory owner of a document's content, version,
// and transform tail (spec.md §4.2). One Authority exists per docId,
// created lazily by a Registry and kept until Registry.Evict removes it;
// eviction does not check whether any session is still attached.
package authority

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/collabtext/scribeserver/pkg/logger"
	"github.com/collabtext/scribeserver/pkg/metrics"
	"github.com/collabtext/scribeserver/pkg/ot"
	"github.com/collabtext/scribeserver/pkg/store"
)

// versionedOp tags an already-applied operation with the version it
// produced, for use as a transform-tail entry.
type versionedOp struct {
	version int
	op      ot.Operation
}

// Authority owns one document's mutable state exclusively. All of
// content, version, and recentOps are read under RLock and mutated under
// Lock — the teacher's Kolabpad.mu sync.RWMutex pattern, generalized from
// a single pad to an arbitrary number of documents via Registry.
type Authority struct {
	docID string
	store store.Store

	mu        sync.RWMutex
	content   string
	version   int
	recentOps []versionedOp

	tailSize         int
	persistThreshold int
	persistInterval  time.Duration
	dirtySince       time.Time
	opsSincePersist  int
	lastAccess       time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

func newAuthority(docID, content string, version int, tailSize, persistThreshold int, persistInterval time.Duration, s store.Store) *Authority {
	a := &Authority{
		docID:            docID,
		store:            s,
		content:          content,
		version:          version,
		tailSize:         tailSize,
		persistThreshold: persistThreshold,
		persistInterval:  persistInterval,
		lastAccess:       time.Now(),
		stop:             make(chan struct{}),
	}
	go a.runPersister()
	return a
}

// runPersister is the background write-back loop every Authority carries
// for its lifetime (spec.md §2), adapted from the teacher's per-document
// persister goroutine (pkg/server.Server.persister). Unlike the
// threshold path in ApplyOperation, it fires independently of new ops
// arriving, so a short burst of edits followed by silence still gets
// persisted within one persistInterval rather than waiting for the next
// op or idle eviction.
func (a *Authority) runPersister() {
	ticker := time.NewTicker(a.persistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			a.mu.Lock()
			if a.opsSincePersist > 0 {
				a.persistLocked(context.Background())
			}
			a.mu.Unlock()
		}
	}
}

// Stop halts this authority's background persister goroutine. Called by
// Registry.Evict once a document is removed from memory.
func (a *Authority) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
}

// DocID returns the document id this authority owns.
func (a *Authority) DocID() string {
	return a.docID
}

// Snapshot returns a consistent (content, version) pair for sync replies.
// Taking a snapshot counts as activity, so a document a session just
// joined is never evicted out from under it.
func (a *Authority) Snapshot() (string, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastAccess = time.Now()
	return a.content, a.version
}

// LastAccess reports when this authority was last read or written,
// used by the idle-document cleaner (spec.md §9).
func (a *Authority) LastAccess() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastAccess
}

// Version returns the current monotonic version counter.
func (a *Authority) Version() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.version
}

// ApplyOperation runs the full contract of spec.md §4.2 step 1-8: reject
// operations from the future, transform stale ones against the retained
// tail, validate, apply, version, and opportunistically persist.
func (a *Authority) ApplyOperation(ctx context.Context, op ot.Operation) (newVersion int, applied ot.Operation, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastAccess = time.Now()

	if op.BaseVersion > a.version {
		metrics.OperationsRejected.WithLabelValues("future_version").Inc()
		return 0, ot.Operation{}, ErrFromTheFuture
	}

	transformed := op
	if op.BaseVersion < a.version {
		oldestRetained := a.version - len(a.recentOps)
		if op.BaseVersion < oldestRetained {
			metrics.OperationsRejected.WithLabelValues("too_stale").Inc()
			return 0, ot.Operation{}, ErrTooStale
		}
		for _, entry := range a.recentOps {
			if entry.version > op.BaseVersion {
				transformed = ot.Transform(transformed, entry.op)
			}
		}
	}

	// A delete that the transform collapsed to zero length is acknowledged
	// at the current version without being applied. It is checked before
	// Validate, which rejects zero-length deletes.
	if transformed.IsNoOp() && !op.IsNoOp() {
		metrics.OperationsNoOp.Inc()
		return a.version, transformed, nil
	}

	if !ot.Validate(a.content, transformed) {
		metrics.OperationsRejected.WithLabelValues("invalid").Inc()
		return 0, ot.Operation{}, ErrInvalid
	}

	newContent, err := ot.Apply(a.content, transformed)
	if err != nil {
		return 0, ot.Operation{}, fmt.Errorf("authority: apply: %w", err)
	}

	a.content = newContent
	a.version++
	a.recentOps = append(a.recentOps, versionedOp{version: a.version, op: transformed})
	if len(a.recentOps) > a.tailSize {
		a.recentOps = a.recentOps[len(a.recentOps)-a.tailSize:]
	}
	metrics.OperationsApplied.WithLabelValues(string(transformed.Kind)).Inc()

	a.opsSincePersist++
	if a.dirtySince.IsZero() {
		a.dirtySince = time.Now()
	}

	if a.opsSincePersist >= a.persistThreshold || time.Since(a.dirtySince) >= a.persistInterval {
		a.persistLocked(ctx)
	}

	return a.version, transformed, nil
}

// persistLocked writes the current content/version back to the durable
// store. It runs inline, inside the caller's write lock, which trivially
// satisfies spec.md §4.2's "no interleaved read-modify-write" requirement
// for write-back (§5 explicitly allows the critical section to suspend
// during an inline durable-store write). Failure is logged and the dirty
// counters are left untouched so the next trigger retries — it never
// fails the operation that triggered it (spec.md §7: store outages don't
// kill the authority).
func (a *Authority) persistLocked(ctx context.Context) {
	rec := store.Record{ID: a.docID, Content: a.content, Version: a.version}
	if err := a.store.UpsertByID(ctx, rec); err != nil {
		logger.Error("authority: persist failed for doc %s: %v", a.docID, err)
		metrics.PersistFailures.Inc()
		return
	}
	a.opsSincePersist = 0
	a.dirtySince = time.Time{}
}

// Flush forces a write-back regardless of the dirty thresholds, used by
// the idle-document cleaner before a document is evicted.
func (a *Authority) Flush(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.opsSincePersist > 0 {
		a.persistLocked(ctx)
	}
}
