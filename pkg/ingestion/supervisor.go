package ingestion

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/identity-sync/pkg/logging"
)

// Runner is a long-running consumer; *Loop implements it.
type Runner interface {
	Topic() string
	Run(ctx context.Context) error
}

// Supervisor runs one Runner per topic and stops them all together.
// The first fatal error lowers the liveness flag, which lets the other
// runners finish their in-flight record and return.
type Supervisor struct {
	live    *Flag
	runners []Runner
	log     *logrus.Entry
}

func NewSupervisor(live *Flag, log *logrus.Entry, runners ...Runner) *Supervisor {
	if log == nil {
		log = logging.Nop()
	}
	return &Supervisor{live: live, runners: runners, log: log}
}

// Run blocks until every runner has returned. It returns the first runner
// error other than the cancellation of ctx.
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.runners) == 0 {
		return invalidConfig("no runners to supervise")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range s.runners {
		g.Go(func() error {
			err := r.Run(gctx)
			if err == nil || (isContextErr(err) && gctx.Err() != nil) {
				s.log.WithField("topic", r.Topic()).Info("ingestion: runner stopped")
				return nil
			}
			s.live.Set(false)
			s.log.WithError(err).WithField("topic", r.Topic()).Error("ingestion: runner failed, stopping all")
			return fmt.Errorf("topic %s: %w", r.Topic(), err)
		})
	}

	err := g.Wait()
	s.live.Set(false)
	return err
}
