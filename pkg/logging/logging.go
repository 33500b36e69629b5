package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// ConsoleLogger returns a JSON logger writing to stdout.
func ConsoleLogger(level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	logger.SetLevel(level)
	return logger
}

// Nop returns an entry that discards everything below panic level.
func Nop() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

// ParseLevel maps the LOG_LEVEL vocabulary onto logrus levels.
func ParseLevel(s string) logrus.Level {
	switch s {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}
