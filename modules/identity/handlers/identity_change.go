package handlers

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/identity-sync/modules/identity/domain/events"
	"github.com/iota-uz/identity-sync/modules/identity/domain/identifier"
	"github.com/iota-uz/identity-sync/modules/identity/services"
	"github.com/iota-uz/identity-sync/pkg/ingestion"
)

type Merger interface {
	MergeIdentity(ctx context.Context, newID string, oldIDs []string) (services.MergeResult, error)
}

// IdentityChange consumes identity-changed events and merges superseded ids.
type IdentityChange struct {
	merger Merger
	policy services.ErrorPolicy
	log    *logrus.Entry
}

func NewIdentityChange(merger Merger, policy services.ErrorPolicy, log *logrus.Entry) *IdentityChange {
	return &IdentityChange{merger: merger, policy: policy, log: entryOrNop(log)}
}

func (h *IdentityChange) Handle(ctx context.Context, rec ingestion.Record) error {
	log := h.log.WithFields(ingestion.RecordFields(rec))

	ev, err := events.DecodeIdentityChanged(rec.Value)
	if err != nil {
		return classify(err, h.policy, log)
	}
	change, err := identifier.Detect(ev.Identifiers)
	if err != nil {
		return classify(err, h.policy, log)
	}
	if !change.IsChange() {
		log.Debug("no identity change")
		return nil
	}

	res, err := h.merger.MergeIdentity(ctx, change.NewID, change.OldIDs)
	if err != nil {
		return classify(err, h.policy, log)
	}
	log.WithField("outcome", res.Outcome.String()).Debug("identity event handled")
	return nil
}
