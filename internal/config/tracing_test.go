package config

import (
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/stretchr/testify/require"
)

func TestConfigureTracing_unconfigured(t *testing.T) {
	setEnv(t, "JAEGER_AGENT_HOST", "")
	setEnv(t, "JAEGER_ENDPOINT", "")

	require.Nil(t, ConfigureTracing("gitaly-refs"))
	require.IsType(t, opentracing.NoopTracer{}, opentracing.GlobalTracer())
}

func TestConfigureTracing_disabled(t *testing.T) {
	setEnv(t, "JAEGER_AGENT_HOST", "localhost")
	setEnv(t, "JAEGER_DISABLED", "true")

	require.Nil(t, ConfigureTracing("gitaly-refs"))
	require.IsType(t, opentracing.NoopTracer{}, opentracing.GlobalTracer())
}
