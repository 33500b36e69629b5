package ingestion

import (
	"context"
	"time"
)

// Record is one message pulled from a topic partition.
type Record struct {
	Topic       string
	Partition   int32
	Offset      int64
	LeaderEpoch int32
	Key         []byte
	Value       []byte
	Timestamp   time.Time
}

// Handler processes a single record. Returned errors are classified with Classify.
type Handler interface {
	Handle(ctx context.Context, rec Record) error
}

type HandlerFunc func(ctx context.Context, rec Record) error

func (f HandlerFunc) Handle(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}
