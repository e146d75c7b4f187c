package housekeeping

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/logrus/ctxlogrus"
	log "github.com/sirupsen/logrus"
	"gitlab.com/gitlab-org/gitaly-refs/internal/git/refstore"
	"gitlab.com/gitlab-org/gitaly-refs/internal/safe"
	"golang.org/x/sync/errgroup"
)

const (
	emptyRefsGracePeriod         = 24 * time.Hour
	brokenRefsGracePeriod        = 24 * time.Hour
	lockfileGracePeriod          = 15 * time.Minute
	referenceLockfileGracePeriod = 1 * time.Hour
)

// lockfiles are the locks of pseudo references which live at the top of the
// store.
var lockfiles = []string{
	"HEAD.lock",
	"ORIG_HEAD.lock",
	"FETCH_HEAD.lock",
}

type staleFileFinder struct {
	name string
	find func(context.Context, string) ([]string, error)
}

// CleanStaleData removes lock files of transactions which have crashed,
// empty loose references and empty reference directories. Everything is
// subject to a grace period so that running transactions are not disturbed.
func (m *Manager) CleanStaleData(ctx context.Context, store *refstore.Store) error {
	base := store.Base()

	finders := []staleFileFinder{
		{name: "locks", find: findStaleLockfiles},
		{name: "reflocks", find: findStaleReferenceLocks},
		{name: "refs", find: findBrokenLooseReferences},
	}

	// The finders only read, so they may scan concurrently.
	staleFilesByFinder := make([][]string, len(finders))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, finder := range finders {
		i, finder := i, finder
		group.Go(func() error {
			start := time.Now()
			staleFiles, err := finder.find(groupCtx, base)
			m.tasksLatency.WithLabelValues(finder.name).Observe(time.Since(start).Seconds())
			if err != nil {
				return fmt.Errorf("housekeeping failed to find %s: %w", finder.name, err)
			}

			staleFilesByFinder[i] = staleFiles
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	logEntry := myLogger(ctx)
	var found, removed, failures int
	for i, finder := range finders {
		found += len(staleFilesByFinder[i])
		logEntry = logEntry.WithField(finder.name, len(staleFilesByFinder[i]))

		removedByFinder, failedByFinder := m.pruneFiles(ctx, finder.name, staleFilesByFinder[i])
		removed += removedByFinder
		failures += failedByFinder
	}

	if found > 0 {
		logEntry.WithFields(log.Fields{
			"removed":  removed,
			"failures": failures,
		}).Info("removed files")
	}

	start := time.Now()
	removedDirs, err := removeRefEmptyDirs(ctx, base)
	m.tasksLatency.WithLabelValues("emptyrefdirs").Observe(time.Since(start).Seconds())
	m.tasksTotal.WithLabelValues("emptyrefdirs").Add(float64(removedDirs))
	if err != nil {
		return fmt.Errorf("housekeeping could not remove empty refs: %w", err)
	}

	return nil
}

// pruneFiles removes the given files and counts the removals under task.
// Files which vanished meanwhile are neither removals nor failures.
func (m *Manager) pruneFiles(ctx context.Context, task string, paths []string) (removed, failures int) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			failures++
			myLogger(ctx).WithError(err).WithField("path", path).Warn("unable to remove stale file")
			continue
		}
		removed++
	}

	m.tasksTotal.WithLabelValues(task).Add(float64(removed))

	return removed, failures
}

func findStaleFiles(base string, gracePeriod time.Duration, files ...string) ([]string, error) {
	var staleFiles []string

	for _, file := range files {
		path := filepath.Join(base, file)

		fileInfo, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		if time.Since(fileInfo.ModTime()) < gracePeriod {
			continue
		}

		staleFiles = append(staleFiles, path)
	}

	return staleFiles, nil
}

// findStaleLockfiles finds stale locks of pseudo references.
func findStaleLockfiles(ctx context.Context, base string) ([]string, error) {
	return findStaleFiles(base, lockfileGracePeriod, lockfiles...)
}

// walkRefs walks the "refs/" directory of the store and calls fn for every
// file. A missing directory is not an error. The walk stops once ctx is done.
func walkRefs(ctx context.Context, base string, fn func(path string, info os.FileInfo) error) error {
	return filepath.Walk(filepath.Join(base, "refs"), func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if os.IsNotExist(err) {
			// Race condition: somebody already deleted the file for us. Ignore this file.
			return nil
		}

		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		return fn(path, info)
	})
}

// findBrokenLooseReferences finds empty loose references. They are left
// behind when a node crashes while a reference is written and break the
// assumption that each reference has a value.
func findBrokenLooseReferences(ctx context.Context, base string) ([]string, error) {
	var brokenRefs []string

	err := walkRefs(ctx, base, func(path string, info os.FileInfo) error {
		if strings.HasSuffix(info.Name(), safe.LockFileSuffix) {
			return nil
		}

		if info.Size() > 0 || time.Since(info.ModTime()) < brokenRefsGracePeriod {
			return nil
		}

		brokenRefs = append(brokenRefs, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return brokenRefs, nil
}

// findStaleReferenceLocks scans the store for stale locks of loose references.
func findStaleReferenceLocks(ctx context.Context, base string) ([]string, error) {
	var staleReferenceLocks []string

	err := walkRefs(ctx, base, func(path string, info os.FileInfo) error {
		if !strings.HasSuffix(info.Name(), safe.LockFileSuffix) || time.Since(info.ModTime()) < referenceLockfileGracePeriod {
			return nil
		}

		staleReferenceLocks = append(staleReferenceLocks, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return staleReferenceLocks, nil
}

func removeRefEmptyDirs(ctx context.Context, base string) (int, error) {
	refsPath := filepath.Join(base, "refs")

	// we never want to delete the actual "refs" directory, so we start the
	// recursive functions for each subdirectory
	entries, err := os.ReadDir(refsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	var removed int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		if err := removeEmptyDirs(ctx, filepath.Join(refsPath, e.Name()), &removed); err != nil {
			return removed, err
		}
	}

	return removed, nil
}

func removeEmptyDirs(ctx context.Context, target string, removed *int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// We need to stat the directory early on in order to get its current mtime. If we
	// did this after we have removed empty child directories, then its mtime would've
	// changed and we wouldn't consider it for deletion.
	dirStat, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	entries, err := os.ReadDir(target)
	switch {
	case os.IsNotExist(err):
		return nil // race condition: someone else deleted it first
	case err != nil:
		return err
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		if err := removeEmptyDirs(ctx, filepath.Join(target, e.Name()), removed); err != nil {
			return err
		}
	}

	if time.Since(dirStat.ModTime()) < emptyRefsGracePeriod {
		return nil
	}

	// recheck entries now that we have potentially removed some dirs
	entries, err = os.ReadDir(target)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if len(entries) > 0 {
		return nil
	}

	switch err := os.Remove(target); {
	case os.IsNotExist(err):
		return nil // race condition: someone else deleted it first
	case err != nil:
		return err
	}
	*removed++

	return nil
}

func myLogger(ctx context.Context) *log.Entry {
	return ctxlogrus.Extract(ctx).WithField("system", "housekeeping")
}
