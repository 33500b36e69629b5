package handlers

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/employment"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/notice"
	"github.com/iota-uz/identity-sync/modules/identity/domain/events"
	"github.com/iota-uz/identity-sync/modules/identity/services"
	"github.com/iota-uz/identity-sync/pkg/ingestion"
)

type Syncer interface {
	SyncNotice(ctx context.Context, n notice.Notice) error
	SyncEmployment(ctx context.Context, e employment.Employment) error
	RefreshName(ctx context.Context, nationalID string) error
}

type Notice struct {
	syncer Syncer
	policy services.ErrorPolicy
	log    *logrus.Entry
}

func NewNotice(syncer Syncer, policy services.ErrorPolicy, log *logrus.Entry) *Notice {
	return &Notice{syncer: syncer, policy: policy, log: entryOrNop(log)}
}

func (h *Notice) Handle(ctx context.Context, rec ingestion.Record) error {
	log := h.log.WithFields(ingestion.RecordFields(rec))
	ev, err := events.DecodeNotice(rec.Value)
	if err != nil {
		return classify(err, h.policy, log)
	}
	return classify(h.syncer.SyncNotice(ctx, ev.ToNotice()), h.policy, log)
}

type Employment struct {
	syncer Syncer
	policy services.ErrorPolicy
	log    *logrus.Entry
}

func NewEmployment(syncer Syncer, policy services.ErrorPolicy, log *logrus.Entry) *Employment {
	return &Employment{syncer: syncer, policy: policy, log: entryOrNop(log)}
}

func (h *Employment) Handle(ctx context.Context, rec ingestion.Record) error {
	log := h.log.WithFields(ingestion.RecordFields(rec))
	ev, err := events.DecodeEmployment(rec.Value)
	if err != nil {
		return classify(err, h.policy, log)
	}
	return classify(h.syncer.SyncEmployment(ctx, ev.ToEmployment()), h.policy, log)
}

type NameChange struct {
	syncer Syncer
	policy services.ErrorPolicy
	log    *logrus.Entry
}

func NewNameChange(syncer Syncer, policy services.ErrorPolicy, log *logrus.Entry) *NameChange {
	return &NameChange{syncer: syncer, policy: policy, log: entryOrNop(log)}
}

func (h *NameChange) Handle(ctx context.Context, rec ingestion.Record) error {
	log := h.log.WithFields(ingestion.RecordFields(rec))
	ev, err := events.DecodeNameChanged(rec.Value)
	if err != nil {
		return classify(err, h.policy, log)
	}
	return classify(h.syncer.RefreshName(ctx, ev.NationalID), h.policy, log)
}
