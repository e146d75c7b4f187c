package safe

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Marker is an exclusive hold on a resource which carries no content. It is
// used to keep others from touching a resource that is about to be removed.
type Marker struct {
	path       string
	boundary   string
	createdDir string
	release    sync.Once
}

// AcquireMarker acquires the lock for path according to mode. If boundary is
// not empty, Commit removes empty leading directories of path up to, but
// excluding, boundary.
func AcquireMarker(ctx context.Context, path string, mode AcquireMode, boundary string) (*Marker, error) {
	file, err := mode.acquire(ctx, path)
	if err != nil {
		return nil, err
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(LockPath(path))
		removeCreatedDirs(path, file.createdDir)
		return nil, fmt.Errorf("closing lock file: %w", err)
	}

	return &Marker{path: path, boundary: boundary, createdDir: file.createdDir}, nil
}

// Path returns the path of the lock file.
func (m *Marker) Path() string {
	return LockPath(m.path)
}

// Release gives up the hold without the resource having been touched. Only
// directories created while acquiring the lock are removed again. Subsequent
// calls to Release or Commit return ErrAlreadyDone.
func (m *Marker) Release() error {
	return m.unlock(func() { removeCreatedDirs(m.path, m.createdDir) })
}

// Commit gives up the hold after the resource has been removed. Leading
// directories which became empty are pruned up to the boundary. Subsequent
// calls to Release or Commit return ErrAlreadyDone.
func (m *Marker) Commit() error {
	return m.unlock(func() { RemoveEmptyParents(m.path, m.boundary) })
}

func (m *Marker) unlock(prune func()) error {
	err := ErrAlreadyDone

	m.release.Do(func() {
		err = nil
		if removeErr := os.Remove(LockPath(m.path)); removeErr != nil && !os.IsNotExist(removeErr) {
			err = fmt.Errorf("removing lock file: %w", removeErr)
			return
		}

		prune()
	})

	return err
}
