package services

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/identity-sync/modules/identity/domain"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/employment"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/notice"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/person"
	"github.com/iota-uz/identity-sync/pkg/logging"
)

// nameForgetter is implemented by directories that cache names.
type nameForgetter interface {
	Forget(ctx context.Context, nationalID string) error
}

// SyncService keeps notices, employments and person names in step with their topics.
type SyncService struct {
	store     domain.EntityStore
	directory domain.Directory
	log       *logrus.Entry
}

func NewSyncService(store domain.EntityStore, directory domain.Directory, log *logrus.Entry) *SyncService {
	if log == nil {
		log = logging.Nop()
	}
	return &SyncService{
		store:     store,
		directory: directory,
		log:       log.WithField("component", "sync"),
	}
}

// SyncNotice stores n and creates its owner's person row the first time the owner is seen.
func (s *SyncService) SyncNotice(ctx context.Context, n notice.Notice) error {
	if err := s.ensurePerson(ctx, n.NationalID); err != nil {
		return err
	}
	if err := s.store.UpsertNotice(ctx, n); err != nil {
		return errors.Wrap(err, "upsert notice")
	}
	return nil
}

func (s *SyncService) SyncEmployment(ctx context.Context, e employment.Employment) error {
	if err := s.store.UpsertEmployment(ctx, e); err != nil {
		return errors.Wrap(err, "upsert employment")
	}
	return nil
}

// RefreshName rewrites the stored name of nationalID from the directory.
// Unknown persons are left alone: a person row is only created by a notice or a merge.
func (s *SyncService) RefreshName(ctx context.Context, nationalID string) error {
	existing, err := s.store.GetPerson(ctx, nationalID)
	if errors.Is(err, domain.ErrPersonNotFound) {
		s.log.Debug("name change for unknown person ignored")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "get person")
	}

	if f, ok := s.directory.(nameForgetter); ok {
		if err := f.Forget(ctx, existing.NationalID); err != nil {
			s.log.WithError(err).Warn("could not drop cached name")
		}
	}

	name, err := s.directory.Resolve(ctx, existing.NationalID)
	if err != nil {
		return err
	}
	if name == existing.Name {
		return nil
	}

	updated := person.New(existing.NationalID, name)
	updated.BirthDate = existing.BirthDate
	if err := s.store.UpsertPerson(ctx, updated); err != nil {
		return errors.Wrap(err, "upsert person")
	}
	return nil
}

func (s *SyncService) ensurePerson(ctx context.Context, nationalID string) error {
	_, err := s.store.GetPerson(ctx, nationalID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrPersonNotFound) {
		return errors.Wrap(err, "get person")
	}

	name, err := s.directory.Resolve(ctx, nationalID)
	if err != nil {
		return err
	}
	if err := s.store.UpsertPerson(ctx, person.New(nationalID, name)); err != nil {
		return errors.Wrap(err, "create person")
	}
	return nil
}
