package identifier

import (
	"encoding/json"
	"strings"

	"github.com/go-faster/errors"

	"github.com/iota-uz/identity-sync/modules/identity/domain"
)

type Kind string

const (
	KindNationalID Kind = "NATIONAL_ID"
	KindActorID    Kind = "ACTOR_ID"
	KindOther      Kind = "OTHER"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToUpper(strings.TrimSpace(s))); k {
	case KindNationalID, KindActorID, KindOther:
		return k, nil
	default:
		return "", errors.Wrapf(domain.ErrInvariantViolation, "unknown identifier kind %q", s)
	}
}

func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(domain.ErrInvariantViolation, "identifier kind must be a string")
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// PersonIdentifier is one identifier observed for a person.
type PersonIdentifier struct {
	Value   string `json:"idValue"`
	Kind    Kind   `json:"idKind"`
	Current bool   `json:"current"`
}
