package handlers

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/identity-sync/modules/identity/domain"
	"github.com/iota-uz/identity-sync/modules/identity/services"
	"github.com/iota-uz/identity-sync/pkg/ingestion"
)

// classify maps domain errors onto the loop's retry classes.
// A nil return means the record is done and may be committed.
func classify(err error, policy services.ErrorPolicy, log *logrus.Entry) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrInvariantViolation):
		return ingestion.Fatal(err)
	case errors.Is(err, domain.ErrNotFound):
		if policy.Strict {
			return ingestion.Fatal(err)
		}
		log.WithError(err).Warn("person unknown to directory, record skipped")
		return nil
	default:
		return ingestion.Transient(err)
	}
}
