package ingestion

import "context"

// Source is the broker-facing side of a Loop.
//
// After Unsubscribe, a following Subscribe must resume from the last committed
// position so records that were polled but not committed are delivered again.
type Source interface {
	Subscribe(ctx context.Context) error
	// Poll blocks until records arrive or ctx expires. An expired ctx yields an
	// empty batch, not an error.
	Poll(ctx context.Context) ([]Record, error)
	Commit(ctx context.Context, rec Record) error
	Unsubscribe(ctx context.Context) error
}

// Liveness is read at the top of every poll cycle; false stops the loop.
type Liveness interface {
	Alive() bool
}
