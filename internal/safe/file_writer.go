package safe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrAlreadyDone is returned when the safe file has already been closed
// or committed
var ErrAlreadyDone = errors.New("safe file was already committed or closed")

// FileWriter stages content in the lock file of its target. Content only
// becomes visible at the target path once Commit renames the lock file into
// place, which makes the update atomic for readers.
type FileWriter struct {
	lockFile      *os.File
	path          string
	commitOrClose sync.Once
}

// FileWriterConfig contains configuration for file writers.
type FileWriterConfig struct {
	// FileMode is the desired file mode of the committed target file. If left at its default
	// value, then no file mode will be explicitly set for the file.
	FileMode os.FileMode
}

// newFileWriter takes ownership of an already acquired lock file for path.
func newFileWriter(lockFile *os.File, path string, cfg FileWriterConfig) (*FileWriter, error) {
	writer := &FileWriter{lockFile: lockFile, path: path}

	if cfg.FileMode != 0 {
		if err := lockFile.Chmod(cfg.FileMode); err != nil {
			_ = writer.Close()
			return nil, err
		}
	}

	return writer, nil
}

// Write appends to the staged content.
func (fw *FileWriter) Write(p []byte) (int, error) {
	if fw.lockFile == nil {
		return 0, fmt.Errorf("staged content was already flushed")
	}
	return fw.lockFile.Write(p)
}

// flush syncs and closes the lock file. The staged content stays on disk.
func (fw *FileWriter) flush() error {
	if fw.lockFile == nil {
		return nil
	}

	lockFile := fw.lockFile
	fw.lockFile = nil

	if err := lockFile.Sync(); err != nil {
		_ = lockFile.Close()
		return fmt.Errorf("syncing lock file: %w", err)
	}

	if err := lockFile.Close(); err != nil {
		return fmt.Errorf("closing lock file: %w", err)
	}

	return nil
}

// Commit will flush the lock file and rename it to the target file name. The
// first call to Commit() or Close() consumes the writer, so subsequent calls
// to Commit() are guaranteed to return an error.
func (fw *FileWriter) Commit() error {
	err := ErrAlreadyDone

	fw.commitOrClose.Do(func() {
		if err = fw.flush(); err != nil {
			return
		}

		if err = os.Rename(LockPath(fw.path), fw.path); err != nil {
			err = fmt.Errorf("renaming lock file: %w", err)
			return
		}

		if err = fw.syncDir(); err != nil {
			err = fmt.Errorf("syncing dir: %w", err)
			return
		}
	})

	return err
}

func (fw *FileWriter) syncDir() error {
	f, err := os.Open(filepath.Dir(fw.path))
	if err != nil {
		return err
	}
	defer f.Close()

	return f.Sync()
}

// Close will close and remove the lock file if it exists. If the file was
// already committed, an ErrAlreadyDone error will be returned and no changes
// will be made to the filesystem.
func (fw *FileWriter) Close() error {
	err := ErrAlreadyDone

	fw.commitOrClose.Do(func() {
		err = nil
		if fw.lockFile != nil {
			err = fw.lockFile.Close()
			fw.lockFile = nil
		}

		if removeErr := os.Remove(LockPath(fw.path)); removeErr != nil && !os.IsNotExist(removeErr) && err == nil {
			err = removeErr
		}
	})

	return err
}
