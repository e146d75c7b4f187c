package safe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go"
)

// LockFileSuffix is appended to a resource's path to form the path of its lock file.
const LockFileSuffix = ".lock"

// ErrLocked is returned when a lock could not be acquired because another
// process holds it.
var ErrLocked = errors.New("resource is locked")

const (
	defaultInitialBackoff = 5 * time.Millisecond
	defaultMaxBackoff     = 250 * time.Millisecond
)

// AcquireMode determines what happens when a lock is already held by someone
// else. The zero value fails immediately.
type AcquireMode struct {
	timeout        time.Duration
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// FailImmediately returns an AcquireMode which gives up on the first attempt.
func FailImmediately() AcquireMode {
	return AcquireMode{}
}

// AfterDurationWithBackoff returns an AcquireMode which keeps retrying with
// exponential backoff until timeout has elapsed.
func AfterDurationWithBackoff(timeout time.Duration) AcquireMode {
	return AcquireMode{
		timeout:        timeout,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
	}
}

// Timeout returns the duration for which acquisition is retried. It is zero
// for modes that fail immediately.
func (m AcquireMode) Timeout() time.Duration {
	return m.timeout
}

// String implements fmt.Stringer.
func (m AcquireMode) String() string {
	if m.timeout <= 0 {
		return "fail immediately"
	}
	return fmt.Sprintf("retry with backoff for %s", m.timeout)
}

func (m AcquireMode) attempts() uint {
	if m.timeout <= 0 {
		return 1
	}
	return uint(m.timeout/m.initialBackoff) + 1
}

// AcquireError is returned when a lock for Path could not be obtained.
type AcquireError struct {
	// Path is the path of the resource which was to be locked.
	Path string
	// Mode is the acquire mode that was in effect.
	Mode AcquireMode
	// Err is the underlying cause. It wraps ErrLocked in case of contention.
	Err error
}

func (e *AcquireError) Error() string {
	if errors.Is(e.Err, ErrLocked) {
		return fmt.Sprintf("lock for %q is held elsewhere, mode: %s", e.Path, e.Mode)
	}
	return fmt.Sprintf("acquiring lock for %q: %v", e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *AcquireError) Unwrap() error {
	return e.Err
}

// LockPath returns the path of the lock file guarding path.
func LockPath(path string) string {
	return path + LockFileSuffix
}

// lockFile is an exclusively created lock file together with the topmost
// leading directory that had to be created for it, if any.
type lockFile struct {
	*os.File
	createdDir string
}

// firstMissingDir returns the topmost ancestor of dir, dir included, which
// does not exist yet. It is empty if dir exists.
func firstMissingDir(dir string) string {
	var missing string
	for {
		if _, err := os.Lstat(dir); err == nil || !os.IsNotExist(err) {
			return missing
		}
		missing = dir

		parent := filepath.Dir(dir)
		if parent == dir {
			return missing
		}
		dir = parent
	}
}

func createLockFile(path string) (lockFile, error) {
	dir := filepath.Dir(path)
	createdDir := firstMissingDir(dir)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return lockFile{}, fmt.Errorf("creating leading directories: %w", err)
	}

	file, err := os.OpenFile(LockPath(path), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		removeCreatedDirs(path, createdDir)
		if os.IsExist(err) {
			return lockFile{}, ErrLocked
		}
		return lockFile{}, fmt.Errorf("creating lock file: %w", err)
	}

	return lockFile{File: file, createdDir: createdDir}, nil
}

// removeCreatedDirs removes the leading directories of path which became
// empty, up to and including createdDir. Directories above createdDir existed
// before the lock was taken and are left alone.
func removeCreatedDirs(path, createdDir string) {
	if createdDir == "" {
		return
	}
	RemoveEmptyParents(path, filepath.Dir(createdDir))
}

// acquire exclusively creates the lock file for path according to the mode.
// Only contention is retried, all other errors are returned right away.
func (m AcquireMode) acquire(ctx context.Context, path string) (lockFile, error) {
	var file lockFile
	var lastErr error

	create := func() error {
		f, err := createLockFile(path)
		if err != nil {
			lastErr = err
			return err
		}
		file = f
		return nil
	}

	if m.timeout <= 0 {
		if err := create(); err != nil {
			return lockFile{}, &AcquireError{Path: path, Mode: m, Err: err}
		}
		return file, nil
	}

	retryCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := retry.Do(create,
		retry.Context(retryCtx),
		retry.Attempts(m.attempts()),
		retry.Delay(m.initialBackoff),
		retry.MaxDelay(m.maxBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrLocked)
		}),
	)
	if err != nil {
		// Running out of time while waiting is reported as contention unless
		// the caller's context is what got cancelled.
		if ctx.Err() == nil && lastErr != nil {
			err = lastErr
		}
		return lockFile{}, &AcquireError{Path: path, Mode: m, Err: err}
	}

	return file, nil
}

// RemoveEmptyParents removes the parent directories of path up to, but
// excluding, boundary for as long as they are empty. Nothing is removed if
// boundary is empty or not an ancestor of path.
func RemoveEmptyParents(path, boundary string) {
	if boundary == "" {
		return
	}

	boundary = filepath.Clean(boundary)
	prefix := boundary + string(filepath.Separator)

	for dir := filepath.Dir(path); strings.HasPrefix(dir, prefix); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			return
		}
	}
}
