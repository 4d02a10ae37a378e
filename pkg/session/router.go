// Package session implements the router that tracks which sessions are
// joined to which document and dispatches decoded protocol messages
// against the document
// authority and presence registries (spec.md §4.4). It is the
// generalization of the teacher's pkg/server (Connection.Handle +
// Kolabpad.subscribers) from a single fixed document to an arbitrary
// number of documents looked up by docId.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/collabtext/scribeserver/internal/protocol"
	"github.com/collabtext/scribeserver/pkg/authority"
	"github.com/collabtext/scribeserver/pkg/logger"
	"github.com/collabtext/scribeserver/pkg/metrics"
	"github.com/collabtext/scribeserver/pkg/ot"
	"github.com/collabtext/scribeserver/pkg/presence"
)

// DefaultSendBuffer is each session's bounded outbound queue depth.
const DefaultSendBuffer = 64

// Router owns the docId -> subscriber-set mapping used to scope
// broadcasts; a session is in it only while joined to a document, and
// there is no sessionId index. Membership changes are serialized by mu;
// broadcast dispatch snapshots the recipient set and releases the lock
// before writing to any session (spec.md §9: "must not iterate
// recipients under the document lock").
type Router struct {
	authorities *authority.Registry
	presence    *presence.Registry
	sendBuffer  int

	mu    sync.RWMutex
	byDoc map[string]map[*Session]struct{}
}

// NewRouter builds a Router over the given authority and presence registries.
func NewRouter(authorities *authority.Registry, presenceReg *presence.Registry, sendBuffer int) *Router {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	return &Router{
		authorities: authorities,
		presence:    presenceReg,
		sendBuffer:  sendBuffer,
		byDoc:       make(map[string]map[*Session]struct{}),
	}
}

// Serve runs one session's full lifecycle: read loop, dispatch, and
// disconnect cleanup. It blocks until the transport closes or ctx is
// canceled. userID has already been authenticated by the caller (the
// HTTP layer verifies the bearer token before upgrading).
func (r *Router) Serve(ctx context.Context, transport Transport, userID string) error {
	sessCtx, cancel := context.WithCancel(ctx)
	sess := newSession(transport, userID, r.sendBuffer, cancel)

	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	writerDone := make(chan struct{})
	go r.writeLoop(sessCtx, sess, writerDone)

	defer func() {
		cancel()
		<-writerDone
		r.onDisconnect(context.Background(), sess)
	}()

	for {
		data, err := transport.Read(sessCtx)
		if err != nil {
			if errors.Is(err, ErrClosed) || errors.Is(sessCtx.Err(), context.Canceled) {
				return nil
			}
			return fmt.Errorf("session: read: %w", err)
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			sess.trySend(protocol.NewError("MalformedMessage", err.Error()))
			continue
		}

		r.handleMessage(sessCtx, sess, msg)
	}
}

func (r *Router) writeLoop(ctx context.Context, sess *Session, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sess.send:
			if !ok {
				return
			}
			data, err := protocol.Encode(msg)
			if err != nil {
				logger.Error("session: encode failed: %v", err)
				continue
			}
			writeCtx, writeCancel := context.WithTimeout(ctx, 10*time.Second)
			err = sess.transport.Write(writeCtx, data)
			writeCancel()
			if err != nil {
				return
			}
		}
	}
}

func (r *Router) handleMessage(ctx context.Context, sess *Session, msg *protocol.ClientMsg) {
	switch msg.Type {
	case protocol.TypeJoinDocument:
		r.handleJoin(ctx, sess, msg.DocID)
	case protocol.TypeApplyOp:
		r.handleApplyOp(ctx, sess, msg.Op)
	case protocol.TypeCursorUpdate:
		r.handleCursorUpdate(ctx, sess, *msg.Position)
	}
}

func (r *Router) handleJoin(ctx context.Context, sess *Session, docID string) {
	if prev := sess.currentDoc(); prev != "" {
		r.leaveDoc(ctx, sess, prev)
	}

	a, err := r.authorities.LoadOrAttach(ctx, docID)
	if err != nil {
		r.sendError(sess, err)
		return
	}

	if err := r.presence.Join(ctx, docID, sess.UserID); err != nil {
		logger.Error("session: presence join failed for doc %s: %v", docID, err)
	}

	r.mu.Lock()
	if r.byDoc[docID] == nil {
		r.byDoc[docID] = make(map[*Session]struct{})
	}
	r.byDoc[docID][sess] = struct{}{}
	r.mu.Unlock()

	sess.setDoc(docID)

	content, version := a.Snapshot()
	cursors, err := r.presence.GetCursors(ctx, docID)
	if err != nil {
		logger.Error("session: get cursors failed for doc %s: %v", docID, err)
		cursors = map[string]int{}
	}
	// SYNC_STATE is enqueued before this call returns, and the read loop
	// will not process the session's next inbound message until it does —
	// satisfying spec.md §5's "sync frame must logically precede any
	// broadcast the sender could observe for that document".
	sess.trySend(protocol.NewSyncState(content, version, cursors))

	r.broadcast(docID, protocol.NewUserJoined(sess.UserID), sess)
}

func (r *Router) handleApplyOp(ctx context.Context, sess *Session, op *ot.Operation) {
	docID := sess.currentDoc()
	if docID == "" {
		r.sendError(sess, authority.ErrNotFound)
		return
	}

	// Never trust the client on identity (spec.md §4.4).
	op.UserID = sess.UserID
	op.DocID = docID

	a, err := r.authorities.LoadOrAttach(ctx, docID)
	if err != nil {
		r.sendError(sess, err)
		return
	}

	newVersion, applied, err := a.ApplyOperation(ctx, *op)
	if err != nil {
		r.sendError(sess, err)
		return
	}

	sess.trySend(protocol.NewAckOp(op.OpID, newVersion))

	if !applied.IsNoOp() {
		r.broadcast(docID, protocol.NewBroadcastOp(applied), sess)
	}
}

func (r *Router) handleCursorUpdate(ctx context.Context, sess *Session, position int) {
	docID := sess.currentDoc()
	if docID == "" {
		return
	}
	if !sess.limiter.Allow() {
		return
	}
	if err := r.presence.UpdateCursor(ctx, docID, sess.UserID, position); err != nil {
		logger.Error("session: update cursor failed for doc %s: %v", docID, err)
	}
	r.broadcast(docID, protocol.NewCursorUpdate(sess.UserID, position), sess)
}

// leaveDoc removes sess from docID's subscriber set, releases its
// presence entry, and tells remaining peers it left.
func (r *Router) leaveDoc(ctx context.Context, sess *Session, docID string) {
	r.mu.Lock()
	if subs, ok := r.byDoc[docID]; ok {
		delete(subs, sess)
		if len(subs) == 0 {
			delete(r.byDoc, docID)
		}
	}
	r.mu.Unlock()

	if err := r.presence.Leave(ctx, docID, sess.UserID); err != nil {
		logger.Error("session: presence leave failed for doc %s: %v", docID, err)
	}
	r.broadcast(docID, protocol.NewUserLeft(sess.UserID), sess)
}

// onDisconnect is idempotent: a session with no joined document is a no-op.
func (r *Router) onDisconnect(ctx context.Context, sess *Session) {
	if docID := sess.currentDoc(); docID != "" {
		sess.setDoc("")
		r.leaveDoc(ctx, sess, docID)
	}
}

// broadcast fans msg out to every session joined to docID except
// exclude. The recipient set is snapshotted under RLock and released
// before any write, so a slow or closed transport cannot stall the
// document authority or other recipients (spec.md §9).
func (r *Router) broadcast(docID string, msg *protocol.ServerMsg, exclude *Session) {
	r.mu.RLock()
	subs := r.byDoc[docID]
	recipients := make([]*Session, 0, len(subs))
	for s := range subs {
		if s != exclude {
			recipients = append(recipients, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range recipients {
		s.trySend(msg)
		metrics.BroadcastsSent.Inc()
	}
}

// sendError reports an authority failure to the originating session only
// (spec.md §7: errors never mutate state or broadcast), logging at a
// level that matches whether it indicates a bug or expected staleness.
func (r *Router) sendError(sess *Session, err error) {
	kind := "Internal"
	switch {
	case errors.Is(err, authority.ErrNotFound):
		kind = "NotFound"
		logger.Debug("session: %s", err)
	case errors.Is(err, authority.ErrFromTheFuture):
		kind = "FromTheFuture"
		logger.Debug("session: %s", err)
	case errors.Is(err, authority.ErrTooStale):
		kind = "TooStale"
		logger.Debug("session: %s", err)
	case errors.Is(err, authority.ErrInvalid):
		kind = "Invalid"
		logger.Debug("session: %s", err)
	case errors.Is(err, authority.ErrStoreUnavailable):
		logger.Error("session: %s", err)
	default:
		logger.Error("session: %s", err)
	}
	sess.trySend(protocol.NewError(kind, err.Error()))
}
