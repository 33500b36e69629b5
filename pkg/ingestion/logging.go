package ingestion

import "github.com/sirupsen/logrus"

// RecordFields identifies a record in logs. The value is left out: events carry national ids.
func RecordFields(rec Record) logrus.Fields {
	return logrus.Fields{
		"topic":     rec.Topic,
		"partition": rec.Partition,
		"offset":    rec.Offset,
	}
}
