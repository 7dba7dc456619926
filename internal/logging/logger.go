package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fahad0samara/commerce-forecast-go/internal/models"
)

// NewLogger builds the process logger. Development gets human readable text output,
// every other environment gets JSON so log shippers can parse fields.
func NewLogger(logLevel string, environment string) *logrus.Logger {
	return newLogger(os.Stdout, logLevel, environment)
}

func newLogger(out io.Writer, logLevel string, environment string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(ParseLogrusLevel(logLevel))
	if strings.EqualFold(environment, "development") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// ParseLogrusLevel converts string level to logrus.Level
func ParseLogrusLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// WithComponent creates a logger entry with component context
func WithComponent(logger *logrus.Logger, component string) *logrus.Entry {
	return logger.WithField("component", component)
}

// WithScope creates a logger entry carrying the product and warehouse of a scope
func WithScope(logger *logrus.Logger, scope models.Scope) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"product_id":   scope.ProductID,
		"warehouse_id": scope.WarehouseID,
	})
}

// LogStartup logs application startup information
func LogStartup(logger *logrus.Logger, serviceName string, version string, port int) {
	logger.WithFields(logrus.Fields{
		"event":   "startup",
		"service": serviceName,
		"version": version,
		"port":    port,
	}).Info("Service starting")
}

// LogShutdown logs application shutdown information
func LogShutdown(logger *logrus.Logger, serviceName string, reason string) {
	logger.WithFields(logrus.Fields{
		"event":   "shutdown",
		"service": serviceName,
		"reason":  reason,
	}).Info("Service shutting down")
}
