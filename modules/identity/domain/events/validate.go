package events

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"

	"github.com/iota-uz/identity-sync/modules/identity/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateEvent checks the struct tags of ev and reports every failing field.
func validateEvent(ev any, what string) error {
	err := validate.Struct(ev)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrapf(domain.ErrInvariantViolation, "%s: %v", what, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return errors.Wrapf(domain.ErrInvariantViolation, "%s: %s", what, strings.Join(fields, ", "))
}
