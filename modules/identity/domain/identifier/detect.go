package identifier

import (
	"strings"

	"github.com/go-faster/errors"

	"github.com/iota-uz/identity-sync/modules/identity/domain"
)

// Change is the outcome of Detect. A zero Change means no change.
type Change struct {
	NewID  string
	OldIDs []string
}

func (c Change) IsChange() bool { return c.NewID != "" && len(c.OldIDs) > 0 }

// Detect classifies identifiers observed together in one event.
//
// Only NATIONAL_ID identifiers count. With fewer than two there is nothing to
// merge. Otherwise every value must be non-blank and exactly one must be current;
// it becomes NewID and every other national id becomes an old id.
func Detect(ids []PersonIdentifier) (Change, error) {
	national := make([]PersonIdentifier, 0, len(ids))
	for _, id := range ids {
		if id.Kind != KindNationalID {
			continue
		}
		id.Value = strings.TrimSpace(id.Value)
		national = append(national, id)
	}
	if len(national) < 2 {
		return Change{}, nil
	}
	for _, id := range national {
		if id.Value == "" {
			return Change{}, errors.Wrap(domain.ErrInvariantViolation, "empty national id")
		}
	}

	var current []string
	for _, id := range national {
		if id.Current {
			current = append(current, id.Value)
		}
	}
	switch len(current) {
	case 0:
		return Change{}, errors.Wrapf(domain.ErrInvariantViolation, "no current national id among %d", len(national))
	case 1:
	default:
		return Change{}, errors.Wrapf(domain.ErrInvariantViolation, "%d current national ids", len(current))
	}

	newID := current[0]
	seen := map[string]struct{}{newID: {}}
	var oldIDs []string
	for _, id := range national {
		if _, dup := seen[id.Value]; dup {
			continue
		}
		seen[id.Value] = struct{}{}
		oldIDs = append(oldIDs, id.Value)
	}
	if len(oldIDs) == 0 {
		return Change{}, nil
	}
	return Change{NewID: newID, OldIDs: oldIDs}, nil
}
