// Package protocol defines the WebSocket wire messages exchanged between
// client and server (spec.md §6.1 / SPEC_FULL.md §6.1). Every message is a
// single JSON object carrying a `type` tag plus that tag's fields — the
// teacher's `ClientMsg`/`ServerMsg` tagged unions used one-pointer-field-
// per-variant instead of an explicit discriminator; this spec mandates a
// literal `type` string on the wire, so the union is flattened to one
// struct per direction with a `Type` field selecting which of the
// optional fields apply.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/collabtext/scribeserver/pkg/ot"
)

// Client -> server tags.
const (
	TypeJoinDocument = "JOIN_DOCUMENT"
	TypeApplyOp      = "APPLY_OP"
	TypeCursorUpdate = "CURSOR_UPDATE"
)

// Server -> client tags.
const (
	TypeSyncState   = "SYNC_STATE"
	TypeAckOp       = "ACK_OP"
	TypeBroadcastOp = "BROADCAST_OP"
	TypeUserJoined  = "USER_JOINED"
	TypeUserLeft    = "USER_LEFT"
	TypeError       = "ERROR"
	// TypeCursorUpdate is reused on the server side for peer cursor
	// broadcasts (spec.md §6.1: CURSOR_UPDATE appears in both tables).
)

// ClientMsg is the envelope for every client -> server frame.
type ClientMsg struct {
	Type     string        `json:"type"`
	DocID    string        `json:"docId,omitempty"`
	Op       *ot.Operation `json:"op,omitempty"`
	Position *int          `json:"position,omitempty"`
}

// Validate reports whether the message carries the fields its Type
// requires, so internal/protocol callers fail fast on malformed frames
// rather than propagating nil pointers.
func (m *ClientMsg) Validate() error {
	switch m.Type {
	case TypeJoinDocument:
		if m.DocID == "" {
			return fmt.Errorf("protocol: %s requires docId", TypeJoinDocument)
		}
	case TypeApplyOp:
		if m.Op == nil {
			return fmt.Errorf("protocol: %s requires op", TypeApplyOp)
		}
	case TypeCursorUpdate:
		if m.Position == nil {
			return fmt.Errorf("protocol: %s requires position", TypeCursorUpdate)
		}
	default:
		return fmt.Errorf("protocol: unknown client message type %q", m.Type)
	}
	return nil
}

// ServerMsg is the envelope for every server -> client frame.
type ServerMsg struct {
	Type string `json:"type"`

	// SYNC_STATE
	Content string         `json:"content"`
	Version int            `json:"version"`
	Cursors map[string]int `json:"cursors"`

	// ACK_OP
	OpID       string `json:"opId,omitempty"`
	NewVersion int    `json:"newVersion"`

	// BROADCAST_OP
	Op *ot.Operation `json:"op,omitempty"`

	// CURSOR_UPDATE (server variant) / USER_JOINED / USER_LEFT
	UserID   string `json:"userId,omitempty"`
	Position *int   `json:"position,omitempty"`

	// ERROR
	Message string `json:"message,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// NewSyncState builds a SYNC_STATE frame. cursors is always sent as an
// object on the wire, even when empty, never as a bare `null`.
func NewSyncState(content string, version int, cursors map[string]int) *ServerMsg {
	if cursors == nil {
		cursors = map[string]int{}
	}
	return &ServerMsg{Type: TypeSyncState, Content: content, Version: version, Cursors: cursors}
}

// NewAckOp builds an ACK_OP frame, sent only to the originating session.
func NewAckOp(opID string, newVersion int) *ServerMsg {
	return &ServerMsg{Type: TypeAckOp, OpID: opID, NewVersion: newVersion}
}

// NewBroadcastOp builds a BROADCAST_OP frame for the post-transform
// operation fanned out to every other session on the document.
func NewBroadcastOp(op ot.Operation) *ServerMsg {
	return &ServerMsg{Type: TypeBroadcastOp, Op: &op}
}

// NewCursorUpdate builds a peer CURSOR_UPDATE frame.
func NewCursorUpdate(userID string, position int) *ServerMsg {
	return &ServerMsg{Type: TypeCursorUpdate, UserID: userID, Position: &position}
}

// NewUserJoined builds a USER_JOINED presence frame.
func NewUserJoined(userID string) *ServerMsg {
	return &ServerMsg{Type: TypeUserJoined, UserID: userID}
}

// NewUserLeft builds a USER_LEFT presence frame.
func NewUserLeft(userID string) *ServerMsg {
	return &ServerMsg{Type: TypeUserLeft, UserID: userID}
}

// NewError builds an operation-scoped ERROR frame. kind is one of the
// spec.md §7 failure classes (AuthRequired, AuthInvalid, NotFound,
// FromTheFuture, TooStale, Invalid, MalformedMessage, Internal).
func NewError(kind, message string) *ServerMsg {
	return &ServerMsg{Type: TypeError, Kind: kind, Message: message}
}

// Encode marshals a ServerMsg for a single text frame write.
func Encode(m *ServerMsg) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a single client text frame.
func Decode(data []byte) (*ClientMsg, error) {
	var m ClientMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("protocol: malformed frame: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
