package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/identity-sync/pkg/logging"
)

func entryOrNop(log *logrus.Entry) *logrus.Entry {
	if log != nil {
		return log
	}
	return logging.Nop()
}
