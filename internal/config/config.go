package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml"
	log "github.com/sirupsen/logrus"
	"gitlab.com/gitlab-org/gitaly-refs/internal/config/sentry"
	"gitlab.com/gitlab-org/gitaly-refs/internal/git"
	internallog "gitlab.com/gitlab-org/gitaly-refs/internal/log"
	"gitlab.com/gitlab-org/gitaly-refs/internal/safe"
	"golang.org/x/sys/unix"
)

// DefaultLockTimeout is how long lock acquisition is retried unless
// configured otherwise. It matches Git's core.filesRefLockTimeout.
const DefaultLockTimeout = 100 * time.Millisecond

// Cfg is a container for all config derived from config.toml.
type Cfg struct {
	StoragePath          string    `toml:"storage_path" split_words:"true"`
	PrometheusListenAddr string    `toml:"prometheus_listen_addr" split_words:"true"`
	Lock                 Lock      `toml:"lock" envconfig:"lock"`
	Logging              Logging   `toml:"logging" envconfig:"logging"`
	Committer            Committer `toml:"committer" envconfig:"committer"`
}

// Lock configures what happens when a reference is locked by someone else.
type Lock struct {
	FailImmediately bool     `toml:"fail_immediately" split_words:"true"`
	Timeout         Duration `toml:"timeout"`
}

// Sentry is a sentry.Config. We redefine this type to a different name so
// we can embed it into Logging
type Sentry sentry.Config

// Logging contains the logging configuration
type Logging struct {
	Dir    string `toml:"dir,omitempty"`
	Format string `toml:"format,omitempty"`
	Level  string `toml:"level,omitempty"`
	Sentry
}

// Committer is the identity recorded in reflog entries. Reflogs are only
// written if it is set.
type Committer struct {
	Name  string `toml:"name"`
	Email string `toml:"email"`
}

// Load initializes the Config variable from file and the environment.
//  Environment variables take precedence over the file.
func Load(file io.Reader) (Cfg, error) {
	var cfg Cfg

	if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
		return Cfg{}, fmt.Errorf("load toml: %v", err)
	}

	if err := envconfig.Process("gitaly_refs", &cfg); err != nil {
		return Cfg{}, fmt.Errorf("envconfig: %v", err)
	}

	cfg.setDefaults()

	if cfg.StoragePath != "" {
		cfg.StoragePath = filepath.Clean(cfg.StoragePath)
	}

	return cfg, nil
}

// LoadFile is like Load but reads the configuration from path. An empty path
// configures everything from the environment.
func LoadFile(path string) (Cfg, error) {
	if path == "" {
		return Load(strings.NewReader(""))
	}

	file, err := os.Open(path)
	if err != nil {
		return Cfg{}, err
	}
	defer file.Close()

	return Load(file)
}

// Validate checks the current Config for sanity.
func (cfg *Cfg) Validate() error {
	for _, run := range []func() error{
		cfg.validateStorage,
		cfg.validateLock,
		cfg.validateLogging,
		cfg.validateCommitter,
	} {
		if err := run(); err != nil {
			return err
		}
	}

	return nil
}

func (cfg *Cfg) setDefaults() {
	if cfg.Lock.Timeout == 0 && !cfg.Lock.FailImmediately {
		cfg.Lock.Timeout = Duration(DefaultLockTimeout)
	}

	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = os.Getenv(internallog.LogDirEnvKey)
	}
}

func (cfg *Cfg) validateStorage() error {
	if cfg.StoragePath == "" {
		return errors.New("storage_path is not set")
	}

	fi, err := os.Stat(cfg.StoragePath)
	if err != nil {
		return fmt.Errorf("storage path must exist: %w", err)
	}

	if !fi.IsDir() {
		return fmt.Errorf("storage path must be a dir: %q", cfg.StoragePath)
	}

	if err := checkWritable(cfg.StoragePath); err != nil {
		return err
	}

	log.WithField("dir", cfg.StoragePath).Debug("storage_path set")

	return nil
}

func checkWritable(path string) error {
	if err := unix.Access(path, unix.W_OK); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("not writable: %v", path)
		}
		return err
	}

	return nil
}

func (cfg *Cfg) validateLock() error {
	if cfg.Lock.Timeout.Duration() < 0 {
		return fmt.Errorf("lock timeout %s must not be negative", cfg.Lock.Timeout.Duration())
	}

	if cfg.Lock.FailImmediately && cfg.Lock.Timeout != 0 {
		log.WithField("timeout", cfg.Lock.Timeout.Duration()).Warn("lock timeout is ignored as locks fail immediately")
	}

	return nil
}

func (cfg *Cfg) validateLogging() error {
	switch cfg.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid logging format: %q", cfg.Logging.Format)
	}

	if cfg.Logging.Level != "" {
		if _, err := log.ParseLevel(cfg.Logging.Level); err != nil {
			return fmt.Errorf("invalid logging level: %w", err)
		}
	}

	return nil
}

func (cfg *Cfg) validateCommitter() error {
	if (cfg.Committer.Name == "") != (cfg.Committer.Email == "") {
		return errors.New("committer name and email must be set together")
	}

	return nil
}

// AcquireMode returns the lock acquisition policy configured for the store.
func (cfg *Cfg) AcquireMode() safe.AcquireMode {
	if cfg.Lock.FailImmediately || cfg.Lock.Timeout.Duration() <= 0 {
		return safe.FailImmediately()
	}

	return safe.AfterDurationWithBackoff(cfg.Lock.Timeout.Duration())
}

// Signature returns the committer's signature at time when. The boolean is
// false if no committer is configured.
func (c Committer) Signature(when time.Time) (git.Signature, bool) {
	if c.Name == "" {
		return git.Signature{}, false
	}

	return git.NewSignature(c.Name, c.Email, when), true
}
