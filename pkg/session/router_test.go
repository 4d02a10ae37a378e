package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/collabtext/scribeserver/internal/protocol"
	"github.com/collabtext/scribeserver/pkg/authority"
	"github.com/collabtext/scribeserver/pkg/ot"
	"github.com/collabtext/scribeserver/pkg/presence"
	"github.com/collabtext/scribeserver/pkg/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	reg := authority.NewRegistry(s, 10, 1000, time.Hour)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	presenceReg := presence.NewRegistry(rdb, 30*time.Second)

	return NewRouter(reg, presenceReg, 64)
}

func recvMsg(t *testing.T, sess *Session) *protocol.ServerMsg {
	t.Helper()
	select {
	case msg := <-sess.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func assertNoMsg(t *testing.T, sess *Session) {
	t.Helper()
	select {
	case msg := <-sess.send:
		t.Fatalf("expected no message, got %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestJoinDocumentSendsSyncState(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)
	docID, err := r.authorities.CreateDocument(ctx, "hello")
	require.NoError(t, err)

	sess := newSession(newFakeTransport(), "u1", 64, func() {})
	r.handleJoin(ctx, sess, docID)

	msg := recvMsg(t, sess)
	assert.Equal(t, protocol.TypeSyncState, msg.Type)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, 0, msg.Version)
}

func TestJoinBroadcastsUserJoinedToExistingMembersOnly(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)
	docID, err := r.authorities.CreateDocument(ctx, "")
	require.NoError(t, err)

	u1 := newSession(newFakeTransport(), "u1", 64, func() {})
	r.handleJoin(ctx, u1, docID)
	recvMsg(t, u1) // SYNC_STATE

	u2 := newSession(newFakeTransport(), "u2", 64, func() {})
	r.handleJoin(ctx, u2, docID)
	syncMsg := recvMsg(t, u2)
	assert.Equal(t, protocol.TypeSyncState, syncMsg.Type)

	joined := recvMsg(t, u1)
	assert.Equal(t, protocol.TypeUserJoined, joined.Type)
	assert.Equal(t, "u2", joined.UserID)

	assertNoMsg(t, u2) // u2 must not see its own join broadcast
}

// Invariant 9: originator never receives its own BROADCAST_OP, and
// receives exactly one ACK_OP per submitted op.
func TestApplyOpAcksOriginatorAndBroadcastsToOthers(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)
	docID, err := r.authorities.CreateDocument(ctx, "hello")
	require.NoError(t, err)

	u1 := newSession(newFakeTransport(), "u1", 64, func() {})
	r.handleJoin(ctx, u1, docID)
	recvMsg(t, u1)

	u2 := newSession(newFakeTransport(), "u2", 64, func() {})
	r.handleJoin(ctx, u2, docID)
	recvMsg(t, u2)
	recvMsg(t, u1) // USER_JOINED for u2

	op := &ot.Operation{OpID: "op-1", Kind: ot.Insert, Position: 5, Text: " world", BaseVersion: 0}
	r.handleApplyOp(ctx, u1, op)

	ack := recvMsg(t, u1)
	assert.Equal(t, protocol.TypeAckOp, ack.Type)
	assert.Equal(t, "op-1", ack.OpID)
	assert.Equal(t, 1, ack.NewVersion)
	assertNoMsg(t, u1)

	broadcast := recvMsg(t, u2)
	assert.Equal(t, protocol.TypeBroadcastOp, broadcast.Type)
	require.NotNil(t, broadcast.Op)
	assert.Equal(t, "u1", broadcast.Op.UserID)
}

// Scenario C: a no-op transform is acked but never broadcast.
func TestApplyOpNoOpIsAckedButNotBroadcast(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)
	docID, err := r.authorities.CreateDocument(ctx, "abcdefgh")
	require.NoError(t, err)

	u1 := newSession(newFakeTransport(), "u1", 64, func() {})
	r.handleJoin(ctx, u1, docID)
	recvMsg(t, u1)
	u2 := newSession(newFakeTransport(), "u2", 64, func() {})
	r.handleJoin(ctx, u2, docID)
	recvMsg(t, u2)
	recvMsg(t, u1)

	r.handleApplyOp(ctx, u1, &ot.Operation{OpID: "d1", Kind: ot.Delete, Position: 2, Length: 4, BaseVersion: 0})
	recvMsg(t, u1) // ACK_OP
	recvMsg(t, u2) // BROADCAST_OP for d1

	r.handleApplyOp(ctx, u2, &ot.Operation{OpID: "d2", Kind: ot.Delete, Position: 3, Length: 3, BaseVersion: 0})
	ack := recvMsg(t, u2)
	assert.Equal(t, protocol.TypeAckOp, ack.Type)
	assert.Equal(t, 1, ack.NewVersion)

	assertNoMsg(t, u1) // no broadcast for the collapsed no-op
}

func TestApplyOpUnknownDocReturnsNotFoundError(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)

	sess := newSession(newFakeTransport(), "u1", 64, func() {})
	r.handleApplyOp(ctx, sess, &ot.Operation{OpID: "x", Kind: ot.Insert, Position: 0, Text: "x"})

	msg := recvMsg(t, sess)
	assert.Equal(t, protocol.TypeError, msg.Type)
	assert.Equal(t, "NotFound", msg.Kind)
}

func TestApplyOpOverwritesUserID(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)
	docID, err := r.authorities.CreateDocument(ctx, "hi")
	require.NoError(t, err)

	sess := newSession(newFakeTransport(), "authenticated-user", 64, func() {})
	r.handleJoin(ctx, sess, docID)
	recvMsg(t, sess)

	op := &ot.Operation{OpID: "o1", UserID: "spoofed", Kind: ot.Insert, Position: 0, Text: "x", BaseVersion: 0}
	r.handleApplyOp(ctx, sess, op)
	recvMsg(t, sess) // ACK_OP

	assert.Equal(t, "authenticated-user", op.UserID)
}

func TestCursorUpdateBroadcastsToOthers(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)
	docID, err := r.authorities.CreateDocument(ctx, "")
	require.NoError(t, err)

	u1 := newSession(newFakeTransport(), "u1", 64, func() {})
	r.handleJoin(ctx, u1, docID)
	recvMsg(t, u1)
	u2 := newSession(newFakeTransport(), "u2", 64, func() {})
	r.handleJoin(ctx, u2, docID)
	recvMsg(t, u2)
	recvMsg(t, u1)

	r.handleCursorUpdate(ctx, u1, 7)
	msg := recvMsg(t, u2)
	assert.Equal(t, protocol.TypeCursorUpdate, msg.Type)
	assert.Equal(t, "u1", msg.UserID)
	require.NotNil(t, msg.Position)
	assert.Equal(t, 7, *msg.Position)
	assertNoMsg(t, u1)
}

func TestDisconnectBroadcastsUserLeft(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)
	docID, err := r.authorities.CreateDocument(ctx, "")
	require.NoError(t, err)

	u1 := newSession(newFakeTransport(), "u1", 64, func() {})
	r.handleJoin(ctx, u1, docID)
	recvMsg(t, u1)
	u2 := newSession(newFakeTransport(), "u2", 64, func() {})
	r.handleJoin(ctx, u2, docID)
	recvMsg(t, u2)
	recvMsg(t, u1)

	r.onDisconnect(ctx, u2)

	left := recvMsg(t, u1)
	assert.Equal(t, protocol.TypeUserLeft, left.Type)
	assert.Equal(t, "u2", left.UserID)

	users, err := r.presence.ListUsers(ctx, docID)
	require.NoError(t, err)
	assert.NotContains(t, users, "u2")
}

func TestDisconnectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)
	sess := newSession(newFakeTransport(), "u1", 64, func() {})

	assert.NotPanics(t, func() {
		r.onDisconnect(ctx, sess)
		r.onDisconnect(ctx, sess)
	})
}
