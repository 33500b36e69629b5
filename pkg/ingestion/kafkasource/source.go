package kafkasource

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/iota-uz/identity-sync/pkg/ingestion"
	"github.com/iota-uz/identity-sync/pkg/logging"
)

var ErrNotSubscribed = errors.New("kafkasource: not subscribed")

type Options struct {
	Brokers  []string
	GroupID  string
	Topic    string
	ClientID string

	Logger *logrus.Entry

	// Extra is appended to the client options, mainly for tests.
	Extra []kgo.Opt
}

// Source consumes one topic as a member of a consumer group with manual commits.
// Every Subscribe builds a new client, so consumption restarts at the group's
// committed offsets.
type Source struct {
	opts Options

	mu     sync.Mutex
	client *kgo.Client
}

func New(opts Options) (*Source, error) {
	if len(opts.Brokers) == 0 {
		return nil, fmt.Errorf("%w: brokers are required", ingestion.ErrInvalidConfig)
	}
	if opts.GroupID == "" {
		return nil, fmt.Errorf("%w: group id is required", ingestion.ErrInvalidConfig)
	}
	if opts.Topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ingestion.ErrInvalidConfig)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Source{opts: opts}, nil
}

func (s *Source) clientOptions() []kgo.Opt {
	o := []kgo.Opt{
		kgo.SeedBrokers(s.opts.Brokers...),
		kgo.ConsumerGroup(s.opts.GroupID),
		kgo.ConsumeTopics(s.opts.Topic),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	}
	if s.opts.ClientID != "" {
		o = append(o, kgo.ClientID(s.opts.ClientID))
	}
	return append(o, s.opts.Extra...)
}

func (s *Source) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return nil
	}
	client, err := kgo.NewClient(s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("kafkasource: new client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return fmt.Errorf("kafkasource: ping: %w", err)
	}
	s.client = client
	s.opts.Logger.WithField("group", s.opts.GroupID).Debug("kafkasource: client started")
	return nil
}

func (s *Source) current() (*kgo.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, ErrNotSubscribed
	}
	return s.client, nil
}

func (s *Source) Poll(ctx context.Context) ([]ingestion.Record, error) {
	client, err := s.current()
	if err != nil {
		return nil, err
	}

	fetches := client.PollFetches(ctx)
	if fetches.IsClientClosed() {
		return nil, ErrNotSubscribed
	}

	for _, fe := range fetches.Errors() {
		if errors.Is(fe.Err, context.DeadlineExceeded) || errors.Is(fe.Err, context.Canceled) {
			continue
		}
		return nil, fmt.Errorf("kafkasource: fetch %s/%d: %w", fe.Topic, fe.Partition, fe.Err)
	}

	var out []ingestion.Record
	fetches.EachRecord(func(r *kgo.Record) {
		out = append(out, toRecord(r))
	})
	return out, nil
}

func (s *Source) Commit(ctx context.Context, rec ingestion.Record) error {
	client, err := s.current()
	if err != nil {
		return err
	}
	return client.CommitRecords(ctx, &kgo.Record{
		Topic:       rec.Topic,
		Partition:   rec.Partition,
		Offset:      rec.Offset,
		LeaderEpoch: rec.LeaderEpoch,
	})
}

func (s *Source) Unsubscribe(ctx context.Context) error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client == nil {
		return nil
	}
	client.Close()
	return nil
}

func toRecord(r *kgo.Record) ingestion.Record {
	return ingestion.Record{
		Topic:       r.Topic,
		Partition:   r.Partition,
		Offset:      r.Offset,
		LeaderEpoch: r.LeaderEpoch,
		Key:         r.Key,
		Value:       r.Value,
		Timestamp:   r.Timestamp,
	}
}
