package ingestion

import (
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

type LoopOptions struct {
	// PollTimeout bounds a single Poll call.
	PollTimeout time.Duration
	// Backoff is the wait between a transient failure and resubscribing.
	Backoff time.Duration
	// MaxBackoff > Backoff doubles the wait on consecutive failures up to the cap.
	MaxBackoff time.Duration
	JitterMax  time.Duration

	ProgressEvery time.Duration

	Logger *logrus.Entry

	Rand *rand.Rand
}

func (o *LoopOptions) setDefaults() {
	if o.PollTimeout == 0 {
		o.PollTimeout = 5 * time.Second
	}
	if o.Backoff == 0 {
		o.Backoff = 30 * time.Second
	}
	if o.MaxBackoff < o.Backoff {
		o.MaxBackoff = o.Backoff
	}
	if o.ProgressEvery == 0 {
		o.ProgressEvery = 10 * time.Second
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec
	}
}
