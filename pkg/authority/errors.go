package authority

import "errors"

// Sentinel errors for the operation-level failure classes of spec.md §4.2
// and §7. All but ErrStoreUnavailable are reported to the originating
// session only and never mutate document state.
var (
	ErrNotFound         = errors.New("authority: document not found")
	ErrFromTheFuture    = errors.New("authority: operation baseVersion is ahead of the document")
	ErrTooStale         = errors.New("authority: operation baseVersion predates the retained tail")
	ErrInvalid          = errors.New("authority: operation failed validation after transform")
	ErrStoreUnavailable = errors.New("authority: durable store unavailable")
)
