// Package obs carries the ambient logging, health and metrics stack shared
// by every supervisor and the control plane.
package obs

import "github.com/sirupsen/logrus"

// Logger is the structured logger type used throughout the supervisor.
type Logger = *logrus.Logger

// Fields is a structured logging field set.
type Fields = logrus.Fields

// NewLogger creates a JSON-formatted logger at the level named by LOG_LEVEL.
func NewLogger() Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logLevelFromEnv())
	return logger
}

// NewLoggerWithComponent creates a logger tagged with a component field,
// e.g. "ingest", "mixer", "arbiter".
func NewLoggerWithComponent(component string) Logger {
	base := NewLogger()
	return base.WithField("component", component).Logger
}
