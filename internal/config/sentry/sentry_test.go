package sentry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigureSentry(t *testing.T) {
	require.NoError(t, ConfigureSentry("1.0.0", Config{}))
	require.Error(t, ConfigureSentry("1.0.0", Config{DSN: "not a dsn"}))
}
