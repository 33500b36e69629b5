package domain

import (
	"context"

	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/person"
)

// Directory resolves a national id to the person's current name.
// Errors wrap ErrNotFound or ErrTransient.
type Directory interface {
	Resolve(ctx context.Context, nationalID string) (person.Name, error)
}
