package domain

import (
	"context"

	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/employment"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/notice"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/person"
)

// Dependents is everything stored under a set of national ids.
type Dependents struct {
	Employments []employment.Employment
	Notices     []notice.Notice
	Persons     []person.Person
}

func (d Dependents) IsEmpty() bool {
	return len(d.Employments) == 0 && len(d.Notices) == 0 && len(d.Persons) == 0
}

// EntityStore is the transactional storage for persons and their dependent records.
type EntityStore interface {
	GetDependents(ctx context.Context, oldIDs []string) (Dependents, error)
	// MergeInto moves every employment and notice owned by oldIDs to newID, upserts
	// the person row for newID and deletes the person rows for oldIDs, atomically.
	MergeInto(ctx context.Context, newID string, name person.Name, oldIDs []string, deps Dependents) error

	GetPerson(ctx context.Context, nationalID string) (person.Person, error)
	UpsertPerson(ctx context.Context, p person.Person) error
	DeletePerson(ctx context.Context, nationalID string) error
	UpsertEmployment(ctx context.Context, e employment.Employment) error
	UpsertNotice(ctx context.Context, n notice.Notice) error
}
