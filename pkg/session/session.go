package session

import (
	"sync"
	"time"

	"github.com/collabtext/scribeserver/internal/protocol"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// cursorCoalesceInterval bounds how often a session's CURSOR_UPDATE is
// forwarded to presence/peers (spec.md §4.4: "coalesce bursts within
// ~50 ms per session").
const cursorCoalesceInterval = 50 * time.Millisecond

// Session is one authenticated WebSocket connection. Exactly one
// goroutine (the Router's writeLoop) writes to its transport — the
// teacher's single-writer-per-connection rule (`sendMu` in
// pkg/server/connection.go), here enforced by funneling every outbound
// message through the send channel instead of a mutex.
type Session struct {
	ID     string
	UserID string

	transport Transport
	send      chan *protocol.ServerMsg
	cancel    func()

	limiter *rate.Limiter

	docMu sync.Mutex
	docID string
}

func newSession(transport Transport, userID string, sendBuffer int, cancel func()) *Session {
	return &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		transport: transport,
		send:      make(chan *protocol.ServerMsg, sendBuffer),
		cancel:    cancel,
		limiter:   rate.NewLimiter(rate.Every(cursorCoalesceInterval), 1),
	}
}

// currentDoc returns the docId this session is joined to, or "" if none.
func (s *Session) currentDoc() string {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	return s.docID
}

func (s *Session) setDoc(docID string) {
	s.docMu.Lock()
	s.docID = docID
	s.docMu.Unlock()
}

// trySend enqueues msg for delivery without blocking. A session whose
// outbound queue is full is dropped rather than allowed to stall the
// sender (spec.md §9: "preferred: drop-session-on-overflow, since the
// client will resync on reconnect").
func (s *Session) trySend(msg *protocol.ServerMsg) {
	select {
	case s.send <- msg:
	default:
		s.cancel()
	}
}
