package sentry

import (
	"fmt"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
)

// Config contains configuration for sentry
type Config struct {
	DSN         string `toml:"sentry_dsn"`
	Environment string `toml:"sentry_environment"`
}

// ConfigureSentry configures the sentry DSN. Nothing is done if no DSN is
// configured.
func ConfigureSentry(version string, sentryConf Config) error {
	if sentryConf.DSN == "" {
		return nil
	}

	log.Debug("Using sentry logging")

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         sentryConf.DSN,
		Release:     "v" + version,
		Environment: sentryConf.Environment,
	}); err != nil {
		return fmt.Errorf("configure sentry: %w", err)
	}

	return nil
}
