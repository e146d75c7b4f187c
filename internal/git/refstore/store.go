package refstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"gitlab.com/gitlab-org/gitaly-refs/internal/git"
	"gitlab.com/gitlab-org/gitaly-refs/internal/safe"
)

// Store gives access to the loose references below a Git directory.
type Store struct {
	base    string
	metrics *metrics
}

// NewStore returns a store for the Git directory at base. It does not touch
// the filesystem.
func NewStore(base string) *Store {
	return &Store{
		base:    filepath.Clean(base),
		metrics: newMetrics(),
	}
}

// Base returns the directory the store operates on. Locks never clean up
// directories beyond it.
func (s *Store) Base() string {
	return s.base
}

// RefPath returns the path of the file backing the named reference.
func (s *Store) RefPath(name git.ReferenceName) string {
	return filepath.Join(s.base, name.Path())
}

// RefContents returns the raw content of the named reference. The boolean is
// false if the reference does not exist.
func (s *Store) RefContents(name git.ReferenceName) ([]byte, bool, error) {
	path := s.RefPath(name)

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}

		// A directory in place of the reference means that only references
		// nested below the name exist.
		if fi, statErr := os.Stat(path); statErr == nil && fi.IsDir() {
			return nil, false, nil
		}

		return nil, false, err
	}

	return content, true, nil
}

// readReference reads and decodes the named reference. It returns nil if the
// reference does not exist.
func (s *Store) readReference(name git.ReferenceName) (*git.Reference, error) {
	content, ok, err := s.RefContents(name)
	if err != nil {
		return nil, &IoError{Name: name, Op: "reading", Err: err}
	}
	if !ok {
		return nil, nil
	}

	reference, err := DecodeReference(name, content)
	if err != nil {
		return nil, &ReferenceDecodeError{Name: name, Err: err}
	}

	return &reference, nil
}

// FindReference reads the named reference. ErrReferenceNotFound is returned
// if it does not exist.
func (s *Store) FindReference(name git.ReferenceName) (git.Reference, error) {
	if err := name.Validate(); err != nil {
		return git.Reference{}, err
	}

	reference, err := s.readReference(name)
	if err != nil {
		return git.Reference{}, err
	}
	if reference == nil {
		return git.Reference{}, fmt.Errorf("%w: %q", ErrReferenceNotFound, name)
	}

	return *reference, nil
}

// ForEachReference calls fn for every loose reference below "refs/" whose
// name matches pattern, in lexical order. Patterns use glob syntax with "/"
// as separator, so "refs/heads/*" only matches top-level branches while
// "refs/heads/**" matches all of them. An empty pattern matches everything.
// Lock files are never reported.
func (s *Store) ForEachReference(pattern string, fn func(git.Reference) error) error {
	var matcher glob.Glob
	if pattern != "" {
		var err error
		if matcher, err = glob.Compile(pattern, '/'); err != nil {
			return fmt.Errorf("compiling pattern: %w", err)
		}
	}

	root := filepath.Join(s.base, "refs")

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return filepath.SkipDir
			}
			return err
		}

		if entry.IsDir() || strings.HasSuffix(entry.Name(), safe.LockFileSuffix) {
			return nil
		}

		relativePath, err := filepath.Rel(s.base, path)
		if err != nil {
			return err
		}

		name := git.ReferenceName(filepath.ToSlash(relativePath))
		if matcher != nil && !matcher.Match(name.String()) {
			return nil
		}

		reference, err := s.readReference(name)
		if err != nil {
			return err
		}
		// The reference may have been deleted concurrently.
		if reference == nil {
			return nil
		}

		return fn(*reference)
	})
	if err != nil && !errors.Is(err, filepath.SkipDir) {
		return err
	}

	return nil
}
