// Package logging constructs the process logger used across the indexer.
// Components receive a *logrus.Entry scoped with a component field rather
// than the bare logger.
package logging

import (
	"fmt"

	"github.com/evalphobia/logrus_sentry"
	"github.com/sirupsen/logrus"
)

// Config selects the logger's verbosity and output shape.
type Config struct {
	// Level is a logrus level name ("debug", "info", "warn", ...).
	Level string

	// JSON switches the formatter from text to JSON output.
	JSON bool

	// SentryDSN, when set, installs a Sentry hook reporting error-and-above
	// entries.
	SentryDSN string
}

// New builds a configured logrus logger.
func New(cfg Config) (*logrus.Logger, error) {
	lg := logrus.New()

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logging: bad level %q: %w", cfg.Level, err)
	}
	lg.SetLevel(parsed)

	if cfg.JSON {
		lg.SetFormatter(&logrus.JSONFormatter{})
	} else {
		lg.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.SentryDSN != "" {
		hook, err := logrus_sentry.NewSentryHook(cfg.SentryDSN, []logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
		})
		if err != nil {
			return nil, fmt.Errorf("logging: sentry hook: %w", err)
		}
		hook.StacktraceConfiguration.Enable = true
		lg.AddHook(hook)
	}

	return lg, nil
}

// WithComponent scopes a logger to a named component.
func WithComponent(lg *logrus.Logger, component string) *logrus.Entry {
	return lg.WithField("component", component)
}
