// Package logging constructs the process-wide structured logger.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
)

var (
	once   sync.Once
	sugar  *zap.SugaredLogger
)

// New builds a zap sugared logger appropriate for the given environment:
// a human-readable console encoder in development, JSON in anything else.
func New(environment string) *zap.SugaredLogger {
	var cfg zap.Config
	if environment == "development" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		// Fall back to a no-op logger rather than panicking the process
		// over a logging misconfiguration.
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

// L returns the process-wide logger, constructing it from the
// ENVIRONMENT variable's current value on first use.
func L() *zap.SugaredLogger {
	once.Do(func() {
		sugar = New(envOrDefault())
	})
	return sugar
}

func envOrDefault() string {
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		return v
	}
	return "development"
}
