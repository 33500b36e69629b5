package ingestion

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scriptedSource serves a single partition and redelivers from the last
// committed offset on every Subscribe.
type scriptedSource struct {
	mu        sync.Mutex
	records   []Record
	batchSize int
	pos       int
	committed int

	subscribes   int
	unsubscribes int
	commits      []int64
	subscribeErr error
}

func newScriptedSource(batchSize int, values ...string) *scriptedSource {
	s := &scriptedSource{batchSize: batchSize}
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, v := range values {
		s.records = append(s.records, Record{
			Topic:     "t",
			Partition: 0,
			Offset:    int64(i),
			Value:     []byte(v),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}
	return s
}

func (s *scriptedSource) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribes++
	if s.subscribeErr != nil {
		err := s.subscribeErr
		s.subscribeErr = nil
		return err
	}
	s.pos = s.committed
	return nil
}

func (s *scriptedSource) Poll(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	if s.pos < len(s.records) {
		end := s.pos + s.batchSize
		if end > len(s.records) {
			end = len(s.records)
		}
		out := append([]Record(nil), s.records[s.pos:end]...)
		s.pos = end
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *scriptedSource) Commit(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits = append(s.commits, rec.Offset)
	s.committed = int(rec.Offset) + 1
	return nil
}

func (s *scriptedSource) Unsubscribe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribes++
	return nil
}

func fastOptions() LoopOptions {
	return LoopOptions{
		PollTimeout:   10 * time.Millisecond,
		Backoff:       5 * time.Millisecond,
		ProgressEvery: time.Hour,
	}
}

func TestLoop_ProcessesInOrderAndSequentially(t *testing.T) {
	src := newScriptedSource(10, "create", "merge", "last")
	live := NewFlag(true)

	var inFlight atomic.Int32
	var created atomic.Bool
	var seen []string
	handler := HandlerFunc(func(ctx context.Context, rec Record) error {
		require.Equal(t, int32(1), inFlight.Add(1), "handlers must not overlap")
		defer inFlight.Add(-1)

		v := string(rec.Value)
		switch v {
		case "create":
			time.Sleep(20 * time.Millisecond)
			created.Store(true)
		case "merge":
			require.True(t, created.Load(), "merge must observe the effect of the previous record")
		case "last":
			live.Set(false)
		}
		seen = append(seen, v)
		return nil
	})

	loop, err := NewLoop("t", src, handler, live, fastOptions())
	require.NoError(t, err)

	require.NoError(t, loop.Run(context.Background()))
	require.Equal(t, []string{"create", "merge", "last"}, seen)
	require.Equal(t, []int64{0, 1, 2}, src.commits)
	require.Equal(t, StateStopped, loop.State())

	p := loop.Progress()
	require.Equal(t, int64(3), p.Processed)
	require.Equal(t, int64(2), p.LastOffset)
	require.Equal(t, time.Date(2024, 5, 1, 12, 0, 2, 0, time.UTC), p.LastEventTime)
}

func TestLoop_TransientFailureResubscribesFromLastCommit(t *testing.T) {
	src := newScriptedSource(10, "a", "b", "c")
	live := NewFlag(true)

	var failedOnce bool
	var seen []string
	handler := HandlerFunc(func(ctx context.Context, rec Record) error {
		v := string(rec.Value)
		seen = append(seen, v)
		if v == "b" && !failedOnce {
			failedOnce = true
			return Transient(errors.New("directory unavailable"))
		}
		if v == "c" {
			live.Set(false)
		}
		return nil
	})

	loop, err := NewLoop("t", src, handler, live, fastOptions())
	require.NoError(t, err)

	require.NoError(t, loop.Run(context.Background()))
	require.Equal(t, []string{"a", "b", "b", "c"}, seen)
	require.Equal(t, []int64{0, 1, 2}, src.commits)
	require.Equal(t, 2, src.subscribes)
	require.Equal(t, 2, src.unsubscribes)

	p := loop.Progress()
	require.Equal(t, int64(1), p.Failed)
	require.Equal(t, int64(1), p.Backoffs)
}

func TestLoop_UnclassifiedErrorIsRetried(t *testing.T) {
	src := newScriptedSource(1, "a")
	live := NewFlag(true)

	calls := 0
	handler := HandlerFunc(func(ctx context.Context, rec Record) error {
		calls++
		if calls == 1 {
			return errors.New("connection reset")
		}
		live.Set(false)
		return nil
	})

	loop, err := NewLoop("t", src, handler, live, fastOptions())
	require.NoError(t, err)
	require.NoError(t, loop.Run(context.Background()))
	require.Equal(t, 2, calls)
	require.Equal(t, []int64{0}, src.commits)
}

func TestLoop_FatalErrorStopsWithoutCommit(t *testing.T) {
	src := newScriptedSource(10, "a", "bad", "c")
	live := NewFlag(true)
	bad := errors.New("two current identifiers")

	var seen []string
	handler := HandlerFunc(func(ctx context.Context, rec Record) error {
		seen = append(seen, string(rec.Value))
		if string(rec.Value) == "bad" {
			return Fatal(bad)
		}
		return nil
	})

	loop, err := NewLoop("t", src, handler, live, fastOptions())
	require.NoError(t, err)

	err = loop.Run(context.Background())
	require.ErrorIs(t, err, bad)
	require.Equal(t, ClassFatal, Classify(err))
	require.Equal(t, []string{"a", "bad"}, seen)
	require.Equal(t, []int64{0}, src.commits)
	require.Equal(t, 1, src.subscribes)
	require.Equal(t, StateStopped, loop.State())
}

func TestLoop_SubscribeFailureBacksOff(t *testing.T) {
	src := newScriptedSource(10, "a")
	src.subscribeErr = errors.New("broker down")
	live := NewFlag(true)

	handler := HandlerFunc(func(ctx context.Context, rec Record) error {
		live.Set(false)
		return nil
	})

	loop, err := NewLoop("t", src, handler, live, fastOptions())
	require.NoError(t, err)
	require.NoError(t, loop.Run(context.Background()))
	require.Equal(t, 2, src.subscribes)
	require.Equal(t, int64(1), loop.Progress().Backoffs)
}

func TestLoop_NotAliveNeverSubscribes(t *testing.T) {
	src := newScriptedSource(10, "a")
	loop, err := NewLoop("t", src, HandlerFunc(func(ctx context.Context, rec Record) error {
		t.Fatal("handler must not run")
		return nil
	}), NewFlag(false), fastOptions())
	require.NoError(t, err)

	require.NoError(t, loop.Run(context.Background()))
	require.Equal(t, 0, src.subscribes)
}

func TestLoop_ContextCancelStopsIdleLoop(t *testing.T) {
	src := newScriptedSource(10)
	loop, err := NewLoop("t", src, HandlerFunc(func(ctx context.Context, rec Record) error { return nil }), NewFlag(true), fastOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err = loop.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, src.unsubscribes)
}

func TestLoop_CancelLetsInFlightHandlerFinish(t *testing.T) {
	src := newScriptedSource(10, "slow", "next")
	ctx, cancel := context.WithCancel(context.Background())

	var seen []string
	handler := HandlerFunc(func(hctx context.Context, rec Record) error {
		seen = append(seen, string(rec.Value))
		cancel()
		time.Sleep(10 * time.Millisecond)
		return hctx.Err()
	})

	loop, err := NewLoop("t", src, handler, NewFlag(true), fastOptions())
	require.NoError(t, err)

	err = loop.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []string{"slow"}, seen)
	require.Equal(t, []int64{0}, src.commits, "the in-flight record is committed before stopping")
}

func TestNewLoop_Validation(t *testing.T) {
	h := HandlerFunc(func(ctx context.Context, rec Record) error { return nil })
	src := newScriptedSource(1)
	live := NewFlag(true)

	_, err := NewLoop("", src, h, live, LoopOptions{})
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewLoop("t", nil, h, live, LoopOptions{})
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewLoop("t", src, nil, live, LoopOptions{})
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewLoop("t", src, h, nil, LoopOptions{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	require.Equal(t, ClassTransient, Classify(base))
	require.Equal(t, ClassTransient, Classify(Transient(base)))
	require.Equal(t, ClassFatal, Classify(Fatal(base)))
	require.Equal(t, ClassFatal, Classify(invalidConfig("x")))
	require.Nil(t, Transient(nil))
	require.Nil(t, Fatal(nil))
	require.ErrorIs(t, Fatal(base), base)
}
