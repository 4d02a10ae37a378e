// Package presence tracks which users are actively attached to a document
// and their advisory cursor positions (spec.md §4.3), backed by Redis.
// Entries auto-expire on inactivity so crashed clients are reaped without
// explicit cleanup.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is the inactivity window after which a document's presence
// hash expires if nothing writes to it (spec.md §4.3).
const DefaultTTL = 30 * time.Second

// Registry is the Redis-backed presence store. One hash key per document
// (`presence:{docId}`), one field per userId holding a JSON cursor value;
// every write refreshes the whole hash's TTL (spec.md §4.3's "any write
// refreshes the whole document's presence TTL", resolving the ambiguity
// against a per-field TTL scheme).
type Registry struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRegistry wraps an already-connected Redis client.
func NewRegistry(rdb *redis.Client, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{rdb: rdb, ttl: ttl}
}

func key(docID string) string {
	return "presence:" + docID
}

// Join records userId present on docId with an initial cursor of 0 and
// refreshes the document's presence TTL.
func (r *Registry) Join(ctx context.Context, docID, userID string) error {
	return r.UpdateCursor(ctx, docID, userID, 0)
}

// Leave removes userId's entry. If the hash becomes empty it is deleted
// outright rather than left to expire.
func (r *Registry) Leave(ctx context.Context, docID, userID string) error {
	k := key(docID)
	if err := r.rdb.HDel(ctx, k, userID).Err(); err != nil {
		return fmt.Errorf("presence: leave: %w", err)
	}
	n, err := r.rdb.HLen(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("presence: leave: %w", err)
	}
	if n == 0 {
		if err := r.rdb.Del(ctx, k).Err(); err != nil {
			return fmt.Errorf("presence: leave: %w", err)
		}
	}
	return nil
}

// UpdateCursor upserts userId's advisory cursor position and refreshes
// the whole document's presence TTL. The position is not validated
// against document content (spec.md §4.3: it is advisory metadata).
func (r *Registry) UpdateCursor(ctx context.Context, docID, userID string, position int) error {
	k := key(docID)
	payload, err := json.Marshal(position)
	if err != nil {
		return fmt.Errorf("presence: update cursor: %w", err)
	}
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, k, userID, payload)
	pipe.Expire(ctx, k, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence: update cursor: %w", err)
	}
	return nil
}

// ListUsers returns the userIds currently present on docId.
func (r *Registry) ListUsers(ctx context.Context, docID string) ([]string, error) {
	users, err := r.rdb.HKeys(ctx, key(docID)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: list users: %w", err)
	}
	return users, nil
}

// GetCursors returns the userId -> cursor position mapping for docId.
func (r *Registry) GetCursors(ctx context.Context, docID string) (map[string]int, error) {
	raw, err := r.rdb.HGetAll(ctx, key(docID)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: get cursors: %w", err)
	}
	cursors := make(map[string]int, len(raw))
	for userID, v := range raw {
		var pos int
		if err := json.Unmarshal([]byte(v), &pos); err != nil {
			continue
		}
		cursors[userID] = pos
	}
	return cursors, nil
}
