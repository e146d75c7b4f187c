package config

import (
	"io"
	"os"

	opentracing "github.com/opentracing/opentracing-go"
	log "github.com/sirupsen/logrus"
	jaegercfg "github.com/uber/jaeger-client-go/config"
)

// ConfigureTracing installs a global Jaeger tracer configured from the
// JAEGER_* environment. Tracing stays off unless an agent host or collector
// endpoint is set. The returned closer flushes pending spans and is nil if
// no tracer was installed.
func ConfigureTracing(serviceName string) io.Closer {
	if os.Getenv("JAEGER_AGENT_HOST") == "" && os.Getenv("JAEGER_ENDPOINT") == "" {
		return nil
	}

	traceCfg, err := jaegercfg.FromEnv()
	if err != nil {
		log.WithError(err).Info("skipping jaeger configuration step")
		return nil
	}

	if traceCfg.Disabled {
		return nil
	}

	if traceCfg.ServiceName == "" {
		traceCfg.ServiceName = serviceName
	}

	tracer, closer, err := traceCfg.NewTracer()
	if err != nil {
		log.WithError(err).Warn("could not initialize jaeger tracer")
		return nil
	}

	opentracing.SetGlobalTracer(tracer)
	return closer
}
