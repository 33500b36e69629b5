package services

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/identity-sync/modules/identity/domain"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/person"
	"github.com/iota-uz/identity-sync/pkg/logging"
)

var tracer = otel.Tracer("identity-sync/reconciliation")

type Outcome int

const (
	OutcomeNoChange Outcome = iota
	OutcomeMerged
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMerged:
		return "merged"
	default:
		return "no_change"
	}
}

type MergeResult struct {
	Outcome         Outcome
	EmploymentCount int
	NoticeCount     int
}

// ReconciliationService folds everything recorded under superseded national ids
// into the current one.
type ReconciliationService struct {
	store     domain.EntityStore
	directory domain.Directory
	log       *logrus.Entry
	m         *mergeMetrics
}

func NewReconciliationService(store domain.EntityStore, directory domain.Directory, log *logrus.Entry) *ReconciliationService {
	if log == nil {
		log = logging.Nop()
	}
	return &ReconciliationService{
		store:     store,
		directory: directory,
		log:       log.WithField("component", "reconciliation"),
		m:         getMergeMetrics(),
	}
}

// MergeIdentity moves every employment and notice owned by oldIDs to newID, upserts
// the person row for newID with the name from the directory and deletes the rows
// for oldIDs. The directory is consulted before anything is written, and the
// writes happen in one transaction. Replaying a merge that already happened
// returns OutcomeNoChange.
func (s *ReconciliationService) MergeIdentity(ctx context.Context, newID string, oldIDs []string) (MergeResult, error) {
	ctx, span := tracer.Start(ctx, "identity.MergeIdentity",
		trace.WithAttributes(attribute.Int("identity.old_ids", len(oldIDs))),
	)
	defer span.End()

	start := time.Now()
	res, err := s.merge(ctx, newID, oldIDs)

	outcome := res.Outcome.String()
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(
			attribute.String("identity.outcome", outcome),
			attribute.Int("identity.employments", res.EmploymentCount),
			attribute.Int("identity.notices", res.NoticeCount),
		)
	}
	s.m.mergesTotal.WithLabelValues(outcome).Inc()
	s.m.mergeDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return res, err
}

func (s *ReconciliationService) merge(ctx context.Context, newID string, oldIDs []string) (MergeResult, error) {
	newID, oldIDs, err := normalizeMerge(newID, oldIDs)
	if err != nil {
		return MergeResult{}, err
	}

	deps, err := s.store.GetDependents(ctx, oldIDs)
	if err != nil {
		return MergeResult{}, errors.Wrap(err, "read dependents")
	}
	if deps.IsEmpty() {
		s.log.WithField("old_ids", len(oldIDs)).Debug("nothing stored under superseded ids")
		return MergeResult{Outcome: OutcomeNoChange}, nil
	}

	name, err := s.directory.Resolve(ctx, newID)
	if err != nil {
		return MergeResult{}, err
	}

	if err := s.store.MergeInto(ctx, newID, name, oldIDs, deps); err != nil {
		return MergeResult{}, errors.Wrap(err, "merge into current id")
	}

	res := MergeResult{
		Outcome:         OutcomeMerged,
		EmploymentCount: len(deps.Employments),
		NoticeCount:     len(deps.Notices),
	}
	s.m.movedTotal.WithLabelValues("employment").Add(float64(res.EmploymentCount))
	s.m.movedTotal.WithLabelValues("notice").Add(float64(res.NoticeCount))
	s.log.WithFields(logrus.Fields{
		"employments": res.EmploymentCount,
		"notices":     res.NoticeCount,
		"persons":     len(deps.Persons),
	}).Info("identity merged")
	return res, nil
}

// Preview reports what MergeIdentity would move without touching the directory or the store.
func (s *ReconciliationService) Preview(ctx context.Context, newID string, oldIDs []string) (domain.Dependents, error) {
	_, oldIDs, err := normalizeMerge(newID, oldIDs)
	if err != nil {
		return domain.Dependents{}, err
	}
	return s.store.GetDependents(ctx, oldIDs)
}

func normalizeMerge(newID string, oldIDs []string) (string, []string, error) {
	newID = person.NormalizeID(newID)
	if newID == "" {
		return "", nil, errors.Wrap(domain.ErrInvariantViolation, "new id is required")
	}
	if len(oldIDs) == 0 {
		return "", nil, errors.Wrap(domain.ErrInvariantViolation, "at least one old id is required")
	}

	seen := make(map[string]struct{}, len(oldIDs))
	out := make([]string, 0, len(oldIDs))
	for _, id := range oldIDs {
		id = person.NormalizeID(id)
		if id == "" {
			return "", nil, errors.Wrap(domain.ErrInvariantViolation, "old id must not be blank")
		}
		if id == newID {
			return "", nil, errors.Wrap(domain.ErrInvariantViolation, "new id must not be among the old ids")
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return newID, out, nil
}
