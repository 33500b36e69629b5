package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/iota-uz/identity-sync/pkg/logging"
)

// Loop is the subscribe → poll → handle → commit cycle for one topic.
// Records are handled one at a time in the order the source returns them.
type Loop struct {
	topic   string
	source  Source
	handler Handler
	live    Liveness
	opts    LoopOptions

	progress Progress
	state    atomic.Int32
	failures int

	m *metrics
}

func NewLoop(topic string, source Source, handler Handler, live Liveness, opts LoopOptions) (*Loop, error) {
	if topic == "" {
		return nil, invalidConfig("topic is required")
	}
	if source == nil {
		return nil, invalidConfig("source is required")
	}
	if handler == nil {
		return nil, invalidConfig("handler is required")
	}
	if live == nil {
		return nil, invalidConfig("liveness is required")
	}

	opts.setDefaults()
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	return &Loop{
		topic:   topic,
		source:  source,
		handler: handler,
		live:    live,
		opts:    opts,
		m:       getMetrics(),
	}, nil
}

func (l *Loop) Topic() string { return l.topic }

func (l *Loop) State() State { return State(l.state.Load()) }

func (l *Loop) Progress() ProgressSnapshot { return l.progress.Snapshot() }

// Run blocks until the liveness flag drops (returns nil), ctx is cancelled
// (returns ctx.Err()) or a handler reports a fatal error (returned as is).
func (l *Loop) Run(ctx context.Context) error {
	if ctx == nil {
		return invalidConfig("ctx is required")
	}
	defer l.setState(StateStopped)

	for {
		if !l.live.Alive() {
			l.opts.Logger.Info("ingestion: liveness lowered, stopping")
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := l.source.Subscribe(ctx); err != nil {
			if isContextErr(err) && ctx.Err() != nil {
				return ctx.Err()
			}
			l.opts.Logger.WithError(err).Warn("ingestion: subscribe failed")
			if err := l.wait(ctx); err != nil {
				return err
			}
			continue
		}
		l.setState(StateSubscribed)
		l.opts.Logger.Info("ingestion: subscribed")

		err := l.consume(ctx)

		if uErr := l.source.Unsubscribe(context.WithoutCancel(ctx)); uErr != nil {
			l.opts.Logger.WithError(uErr).Warn("ingestion: unsubscribe failed")
		}

		switch {
		case err == nil:
			l.opts.Logger.Info("ingestion: liveness lowered, stopping")
			return nil
		case isContextErr(err) && ctx.Err() != nil:
			return ctx.Err()
		case Classify(err) == ClassFatal:
			l.opts.Logger.WithError(err).Error("ingestion: fatal handler error, stopping")
			l.reportProgress()
			return err
		}

		l.opts.Logger.WithError(err).Warn("ingestion: transient failure, backing off")
		if err := l.wait(ctx); err != nil {
			return err
		}
	}
}

func (l *Loop) consume(ctx context.Context) error {
	nextReportAt := time.Now().Add(l.opts.ProgressEvery)

	for {
		if time.Now().After(nextReportAt) {
			l.reportProgress()
			nextReportAt = time.Now().Add(l.opts.ProgressEvery)
		}

		if !l.live.Alive() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		l.setState(StatePolling)
		recs, err := l.poll(ctx)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			continue
		}

		l.setState(StateProcessing)
		for _, rec := range recs {
			if err := l.handle(ctx, rec); err != nil {
				return err
			}
			if !l.live.Alive() {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}
}

func (l *Loop) poll(ctx context.Context) ([]Record, error) {
	pollCtx, cancel := context.WithTimeout(ctx, l.opts.PollTimeout)
	defer cancel()

	recs, err := l.source.Poll(pollCtx)
	if err == nil {
		return recs, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return recs, nil
	}
	return nil, Transient(fmt.Errorf("poll %s: %w", l.topic, err))
}

// handle runs the handler and commits the record. The handler and the commit
// run detached from ctx cancellation so shutdown never aborts a transaction midway.
func (l *Loop) handle(ctx context.Context, rec Record) error {
	workCtx := context.WithoutCancel(ctx)

	start := time.Now()
	err := l.handler.Handle(workCtx, rec)
	latency := time.Since(start)

	if err != nil {
		l.progress.failed.Add(1)
		l.recordHandle(Classify(err).String(), latency)
		l.opts.Logger.WithError(err).WithFields(RecordFields(rec)).Warn("ingestion: handler failed")
		return err
	}

	if err := l.source.Commit(workCtx, rec); err != nil {
		l.recordHandle("commit_failed", latency)
		return Transient(fmt.Errorf("commit %s/%d@%d: %w", rec.Topic, rec.Partition, rec.Offset, err))
	}

	l.failures = 0
	l.progress.recordProcessed(rec)
	l.recordHandle("success", latency)
	if !rec.Timestamp.IsZero() {
		l.m.lastEventTimestamp.WithLabelValues(l.topic).Set(float64(rec.Timestamp.Unix()))
	}
	return nil
}

func (l *Loop) wait(ctx context.Context) error {
	l.setState(StateBackoff)
	l.failures++
	l.progress.backoffs.Add(1)
	l.m.backoffTotal.WithLabelValues(l.topic).Inc()

	d := backoff(l.failures, l.opts.Backoff, l.opts.MaxBackoff) + jitter(l.opts.Rand, l.opts.JitterMax)
	l.opts.Logger.WithField("backoff", d.String()).Info("ingestion: waiting before resubscribe")
	l.reportProgress()

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (l *Loop) reportProgress() {
	s := l.progress.Snapshot()
	entry := l.opts.Logger.WithFields(map[string]any{
		"processed":   s.Processed,
		"failed":      s.Failed,
		"backoffs":    s.Backoffs,
		"last_offset": s.LastOffset,
		"state":       l.State().String(),
	})
	if !s.LastEventTime.IsZero() {
		entry = entry.WithField("last_event_time", s.LastEventTime.Format(time.RFC3339))
	}
	entry.Info("ingestion: progress")
}

func (l *Loop) recordHandle(result string, latency time.Duration) {
	l.m.recordsTotal.WithLabelValues(l.topic, result).Inc()
	l.m.handleLatency.WithLabelValues(l.topic, result).Observe(latency.Seconds())
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
	l.m.state.WithLabelValues(l.topic).Set(float64(s))
}
