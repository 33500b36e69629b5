package persistence

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/identity-sync/modules/identity/domain"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/employment"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/notice"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/person"
)

// MemoryStore is an in-process EntityStore. MergeInto stages its changes on copies
// of the tables and publishes them only if the commit hook succeeds.
type MemoryStore struct {
	mu          sync.Mutex
	persons     map[string]person.Person
	employments map[int64]employment.Employment
	notices     map[uuid.UUID]notice.Notice

	commitHook func() error
	now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		persons:     map[string]person.Person{},
		employments: map[int64]employment.Employment{},
		notices:     map[uuid.UUID]notice.Notice{},
		now:         time.Now,
	}
}

// SetCommitHook installs fn to run right before a merge is published.
// A non-nil error rolls the merge back.
func (s *MemoryStore) SetCommitHook(fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitHook = fn
}

func (s *MemoryStore) GetDependents(ctx context.Context, oldIDs []string) (domain.Dependents, error) {
	if err := ctx.Err(); err != nil {
		return domain.Dependents{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := idSet(oldIDs)
	var deps domain.Dependents
	for _, e := range s.employments {
		if _, ok := ids[e.NationalID]; ok {
			deps.Employments = append(deps.Employments, e)
		}
	}
	for _, n := range s.notices {
		if _, ok := ids[n.NationalID]; ok {
			deps.Notices = append(deps.Notices, n)
		}
	}
	for id := range ids {
		if p, ok := s.persons[id]; ok {
			deps.Persons = append(deps.Persons, p)
		}
	}
	sortDependents(&deps)
	return deps, nil
}

func (s *MemoryStore) MergeInto(ctx context.Context, newID string, name person.Name, oldIDs []string, deps domain.Dependents) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	ids := idSet(oldIDs)
	newID = person.NormalizeID(newID)

	persons := maps.Clone(s.persons)
	employments := maps.Clone(s.employments)
	notices := maps.Clone(s.notices)

	for id, e := range employments {
		if _, ok := ids[e.NationalID]; ok {
			e.NationalID = newID
			e.UpdatedAt = now
			employments[id] = e
		}
	}
	for id, n := range notices {
		if _, ok := ids[n.NationalID]; ok {
			n.NationalID = newID
			n.UpdatedAt = now
			notices[id] = n
		}
	}

	merged := mergedPerson(persons[newID], newID, name, oldIDs, persons)
	merged.UpdatedAt = now
	persons[newID] = merged
	for id := range ids {
		delete(persons, id)
	}

	if s.commitHook != nil {
		if err := s.commitHook(); err != nil {
			return err
		}
	}

	s.persons = persons
	s.employments = employments
	s.notices = notices
	return nil
}

func (s *MemoryStore) GetPerson(ctx context.Context, nationalID string) (person.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.persons[person.NormalizeID(nationalID)]
	if !ok {
		return person.Person{}, domain.ErrPersonNotFound
	}
	return p, nil
}

func (s *MemoryStore) UpsertPerson(ctx context.Context, p person.Person) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p.NationalID = person.NormalizeID(p.NationalID)
	if p.BirthDate == nil {
		p.BirthDate = s.persons[p.NationalID].BirthDate
	}
	p.UpdatedAt = s.now().UTC()
	s.persons[p.NationalID] = p
	return nil
}

func (s *MemoryStore) DeletePerson(ctx context.Context, nationalID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.persons, person.NormalizeID(nationalID))
	return nil
}

func (s *MemoryStore) UpsertEmployment(ctx context.Context, e employment.Employment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.NationalID = person.NormalizeID(e.NationalID)
	e.UpdatedAt = s.now().UTC()
	s.employments[e.ID] = e
	return nil
}

func (s *MemoryStore) UpsertNotice(ctx context.Context, n notice.Notice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n.NationalID = person.NormalizeID(n.NationalID)
	n.UpdatedAt = s.now().UTC()
	s.notices[n.ID] = n
	return nil
}

// Employment and Notice are read helpers for callers inspecting the store.
func (s *MemoryStore) Employment(id int64) (employment.Employment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.employments[id]
	return e, ok
}

func (s *MemoryStore) Notice(id uuid.UUID) (notice.Notice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notices[id]
	return n, ok
}

// mergedPerson builds the surviving person row: the directory name always wins,
// the birth date is kept from the existing row or taken from a superseded one.
func mergedPerson(existing person.Person, newID string, name person.Name, oldIDs []string, persons map[string]person.Person) person.Person {
	out := person.New(newID, name)
	out.BirthDate = existing.BirthDate
	if out.BirthDate == nil {
		for _, id := range oldIDs {
			if p, ok := persons[id]; ok && p.BirthDate != nil {
				out.BirthDate = p.BirthDate
				break
			}
		}
	}
	return out
}

func idSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[person.NormalizeID(id)] = struct{}{}
	}
	return out
}

func sortDependents(d *domain.Dependents) {
	sort.Slice(d.Employments, func(i, j int) bool { return d.Employments[i].ID < d.Employments[j].ID })
	sort.Slice(d.Notices, func(i, j int) bool { return d.Notices[i].ID.String() < d.Notices[j].ID.String() })
	sort.Slice(d.Persons, func(i, j int) bool { return d.Persons[i].NationalID < d.Persons[j].NationalID })
}
