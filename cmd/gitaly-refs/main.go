package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/logrus/ctxlogrus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"gitlab.com/gitlab-org/gitaly-refs/internal/config"
	"gitlab.com/gitlab-org/gitaly-refs/internal/config/sentry"
	"gitlab.com/gitlab-org/gitaly-refs/internal/dontpanic"
	"gitlab.com/gitlab-org/gitaly-refs/internal/git"
	"gitlab.com/gitlab-org/gitaly-refs/internal/git/housekeeping"
	"gitlab.com/gitlab-org/gitaly-refs/internal/git/refstore"
	glog "gitlab.com/gitlab-org/gitaly-refs/internal/log"
	"gitlab.com/gitlab-org/gitaly-refs/internal/safe"
	"gitlab.com/gitlab-org/gitaly-refs/internal/version"
	"gitlab.com/gitlab-org/labkit/correlation"
)

type subcmd interface {
	Flags(*flag.FlagSet)
	Run(ctx context.Context, env *environment, stdin io.Reader, stdout io.Writer) error
}

var subcommands = map[string]func() subcmd{
	"update":       func() subcmd { return &updateSubcommand{} },
	"delete":       func() subcmd { return &deleteSubcommand{} },
	"apply":        func() subcmd { return &applySubcommand{} },
	"show":         func() subcmd { return &showSubcommand{} },
	"list":         func() subcmd { return &listSubcommand{} },
	"reflog":       func() subcmd { return &reflogSubcommand{} },
	"housekeeping": func() subcmd { return &housekeepingSubcommand{} },
}

// environment is what subcommands need to operate on the configured store.
type environment struct {
	store        *refstore.Store
	housekeeping *housekeeping.Manager
	mode         safe.AcquireMode
	committer    *git.Signature
}

func newEnvironment(cfg config.Cfg, now time.Time) *environment {
	env := &environment{
		store:        refstore.NewStore(cfg.StoragePath),
		housekeeping: housekeeping.NewManager(),
		mode:         cfg.AcquireMode(),
	}

	if signature, ok := cfg.Committer.Signature(now); ok {
		env.committer = &signature
	}

	return env
}

func (env *environment) transaction(edits []git.RefEdit) *refstore.Transaction {
	var opts []refstore.TransactionOption
	if env.committer != nil {
		opts = append(opts, refstore.WithCommitter(*env.committer))
	}

	return env.store.Transaction(edits, env.mode, opts...)
}

func main() {
	glog.Configure(glog.Loggers, "", "")

	flags := flag.NewFlagSet("gitaly-refs", flag.ExitOnError)
	configPath := flags.String("config", "", "path to the TOML configuration file")
	printVersion := flags.Bool("version", false, "print version and exit")
	_ = flags.Parse(os.Args[1:])

	if *printVersion {
		fmt.Println(version.GetVersionString())
		return
	}

	if flags.NArg() < 1 {
		log.Fatal("missing subcommand")
	}

	subcmdName := flags.Arg(0)
	newSubcmd, ok := subcommands[subcmdName]
	if !ok {
		log.Fatalf("unknown subcommand: %q", subcmdName)
	}
	subcmd := newSubcmd()

	subcmdFlags := flag.NewFlagSet(subcmdName, flag.ExitOnError)
	subcmd.Flags(subcmdFlags)
	_ = subcmdFlags.Parse(flags.Args()[1:])

	if err := run(*configPath, subcmdName, subcmd); err != nil {
		log.Fatalf("%s", err)
	}
}

func run(configPath, subcmdName string, subcmd subcmd) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	glog.Configure(glog.Loggers, cfg.Logging.Format, cfg.Logging.Level)

	if err := sentry.ConfigureSentry(version.GetVersion(), sentry.Config(cfg.Logging.Sentry)); err != nil {
		log.WithError(err).Warn("sentry is not configured")
	}

	if cfg.Logging.Dir != "" {
		closer, err := glog.RedirectToDir(glog.Loggers, cfg.Logging.Dir)
		if err != nil {
			return fmt.Errorf("redirect logs: %w", err)
		}
		defer closer.Close()
	}

	if tracingCloser := config.ConfigureTracing("gitaly-refs"); tracingCloser != nil {
		defer tracingCloser.Close()
	}

	env := newEnvironment(cfg, time.Now())
	prometheus.MustRegister(env.store, env.housekeeping)

	if addr := cfg.PrometheusListenAddr; addr != "" {
		stop, err := servePrometheus(addr)
		if err != nil {
			return fmt.Errorf("prometheus listener: %w", err)
		}
		defer stop()
	}

	ctx := correlation.ContextWithCorrelation(context.Background(), correlation.SafeRandomID())
	ctx = ctxlogrus.ToContext(ctx, glog.Default().WithFields(log.Fields{
		"correlation_id": correlation.ExtractFromContext(ctx),
		"subcommand":     subcmdName,
		"storage_path":   cfg.StoragePath,
	}))

	return subcmd.Run(ctx, env, os.Stdin, os.Stdout)
}

func servePrometheus(addr string) (func(), error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	log.WithField("address", l.Addr().String()).Info("starting prometheus listener")

	promMux := http.NewServeMux()
	promMux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Handler: promMux}
	dontpanic.Go(func() {
		if err := server.Serve(l); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("unable to serve prometheus")
		}
	})

	return func() { _ = server.Close() }, nil
}
