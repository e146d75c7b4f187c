package safe_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/gitaly-refs/internal/safe"
	"gitlab.com/gitlab-org/gitaly-refs/internal/testhelper"
)

func TestAcquireMode_String(t *testing.T) {
	require.Equal(t, "fail immediately", safe.FailImmediately().String())
	require.Equal(t, "retry with backoff for 1s", safe.AfterDurationWithBackoff(time.Second).String())
	require.Equal(t, time.Duration(0), safe.FailImmediately().Timeout())
}

func TestAcquire_failImmediately(t *testing.T) {
	t.Parallel()

	ctx, cancel := testhelper.Context()
	defer cancel()

	path := filepath.Join(testhelper.TempDir(t), "resource")
	require.NoError(t, os.WriteFile(safe.LockPath(path), nil, 0o644))

	start := time.Now()
	_, err := safe.AcquireMarker(ctx, path, safe.FailImmediately(), "")
	require.True(t, errors.Is(err, safe.ErrLocked))
	require.Less(t, int64(time.Since(start)), int64(time.Second))
	require.EqualError(t, err, `lock for "`+path+`" is held elsewhere, mode: fail immediately`)
}

func TestAcquire_backoffTimesOut(t *testing.T) {
	t.Parallel()

	ctx, cancel := testhelper.Context()
	defer cancel()

	path := filepath.Join(testhelper.TempDir(t), "resource")
	require.NoError(t, os.WriteFile(safe.LockPath(path), nil, 0o644))

	_, err := safe.AcquireMarker(ctx, path, safe.AfterDurationWithBackoff(50*time.Millisecond), "")
	require.True(t, errors.Is(err, safe.ErrLocked))
}

func TestAcquire_backoffSucceedsOnceReleased(t *testing.T) {
	t.Parallel()

	ctx, cancel := testhelper.Context()
	defer cancel()

	path := filepath.Join(testhelper.TempDir(t), "resource")

	holder, err := safe.AcquireMarker(ctx, path, safe.FailImmediately(), "")
	require.NoError(t, err)

	released := make(chan error, 1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		released <- holder.Release()
	}()

	waiter, err := safe.AcquireMarker(ctx, path, safe.AfterDurationWithBackoff(5*time.Second), "")
	require.NoError(t, err)
	require.NoError(t, <-released)
	require.NoError(t, waiter.Release())
}

func TestAcquire_cancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := filepath.Join(testhelper.TempDir(t), "resource")
	_, err := safe.AcquireMarker(ctx, path, safe.AfterDurationWithBackoff(time.Second), "")
	require.True(t, errors.Is(err, context.Canceled))
	require.NoFileExists(t, safe.LockPath(path))
}

func TestAcquire_ioFailure(t *testing.T) {
	t.Parallel()

	ctx, cancel := testhelper.Context()
	defer cancel()

	dir := testhelper.TempDir(t)
	// A file where a directory is needed cannot be worked around by retrying.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file"), nil, 0o644))

	_, err := safe.AcquireMarker(ctx, filepath.Join(dir, "file", "resource"), safe.AfterDurationWithBackoff(time.Minute), "")
	var acquireErr *safe.AcquireError
	require.True(t, errors.As(err, &acquireErr))
	require.False(t, errors.Is(err, safe.ErrLocked))
}

func TestMarker_release(t *testing.T) {
	t.Parallel()

	ctx, cancel := testhelper.Context()
	defer cancel()

	boundary := testhelper.TempDir(t)
	path := filepath.Join(boundary, "refs", "heads", "feature", "topic")

	marker, err := safe.AcquireMarker(ctx, path, safe.FailImmediately(), boundary)
	require.NoError(t, err)
	require.Equal(t, path+".lock", marker.Path())
	require.FileExists(t, marker.Path())
	require.Empty(t, testhelper.MustReadFile(t, marker.Path()))

	require.NoError(t, marker.Release())
	require.NoFileExists(t, marker.Path())
	require.NoDirExists(t, filepath.Join(boundary, "refs"))
	require.DirExists(t, boundary)

	require.Equal(t, safe.ErrAlreadyDone, marker.Release())
}

func TestMarker_releaseKeepsNonEmptyDirectories(t *testing.T) {
	t.Parallel()

	ctx, cancel := testhelper.Context()
	defer cancel()

	boundary := testhelper.TempDir(t)
	sibling := filepath.Join(boundary, "refs", "heads", "main")
	testhelper.WriteFile(t, sibling, []byte("content"))

	marker, err := safe.AcquireMarker(ctx, filepath.Join(boundary, "refs", "heads", "feature", "topic"), safe.FailImmediately(), boundary)
	require.NoError(t, err)
	require.NoError(t, marker.Release())

	require.NoDirExists(t, filepath.Join(boundary, "refs", "heads", "feature"))
	require.FileExists(t, sibling)
}

func TestMarker_releaseKeepsPreexistingDirectories(t *testing.T) {
	t.Parallel()

	ctx, cancel := testhelper.Context()
	defer cancel()

	boundary := testhelper.TempDir(t)
	heads := filepath.Join(boundary, "refs", "heads")
	require.NoError(t, os.MkdirAll(heads, 0o755))

	marker, err := safe.AcquireMarker(ctx, filepath.Join(heads, "feature", "topic"), safe.FailImmediately(), boundary)
	require.NoError(t, err)
	require.NoError(t, marker.Release())

	require.NoDirExists(t, filepath.Join(heads, "feature"))
	require.DirExists(t, heads)

	marker, err = safe.AcquireMarker(ctx, filepath.Join(heads, "main"), safe.FailImmediately(), boundary)
	require.NoError(t, err)
	require.NoError(t, marker.Release())
	require.DirExists(t, heads)
}

func TestMarker_commit(t *testing.T) {
	t.Parallel()

	ctx, cancel := testhelper.Context()
	defer cancel()

	boundary := testhelper.TempDir(t)
	path := filepath.Join(boundary, "refs", "heads", "feature", "topic")
	testhelper.WriteFile(t, path, []byte("content"))

	marker, err := safe.AcquireMarker(ctx, path, safe.FailImmediately(), boundary)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	require.NoError(t, marker.Commit())

	require.NoFileExists(t, marker.Path())
	require.NoDirExists(t, filepath.Join(boundary, "refs"))
	require.DirExists(t, boundary)

	require.Equal(t, safe.ErrAlreadyDone, marker.Release())
}
