package ingestion

import (
	"sync/atomic"
	"time"
)

// Progress holds the counters of one Loop. It is safe to read while the loop runs.
type Progress struct {
	processed atomic.Int64
	failed    atomic.Int64
	backoffs  atomic.Int64
	lastEvent atomic.Int64 // unix nanos of the last handled record timestamp
	lastOff   atomic.Int64
}

type ProgressSnapshot struct {
	Processed     int64
	Failed        int64
	Backoffs      int64
	LastEventTime time.Time
	LastOffset    int64
}

func (p *Progress) Snapshot() ProgressSnapshot {
	s := ProgressSnapshot{
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Backoffs:   p.backoffs.Load(),
		LastOffset: p.lastOff.Load(),
	}
	if ns := p.lastEvent.Load(); ns != 0 {
		s.LastEventTime = time.Unix(0, ns).UTC()
	}
	return s
}

func (p *Progress) recordProcessed(rec Record) {
	p.processed.Add(1)
	p.lastOff.Store(rec.Offset)
	if !rec.Timestamp.IsZero() {
		p.lastEvent.Store(rec.Timestamp.UnixNano())
	}
}
