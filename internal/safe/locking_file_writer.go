package safe

import (
	"context"
	"fmt"
	"os"
)

type lockingFileWriterState int

const (
	lockingFileWriterStateOpen = lockingFileWriterState(iota)
	lockingFileWriterStateSealed
	lockingFileWriterStateClosed
)

// LockingFileWriter holds the lock of a target file while staging its new
// contents. It is created via `NewLockingFileWriter()`, which acquires the
// lock, at which point it is open for writes. `Seal()` finishes staging,
// `Commit()` makes the staged contents visible and `Close()` discards them.
// Both of the latter release the lock.
//
// The writer remembers the target's size, modification time and mode at the
// time the lock was taken so that modifications by processes which are
// unaware of the locking protocol are detected on commit.
type LockingFileWriter struct {
	writer     *FileWriter
	fi         os.FileInfo
	createdDir string
	state      lockingFileWriterState
}

// LockingFileWriterConfig contains configuration for the `NewLockingFileWriter()` function.
type LockingFileWriterConfig struct {
	// FileWriterConfig is the configuration for the embedded FileWriter.
	FileWriterConfig
}

// NewLockingFileWriter acquires the lock for path according to mode and
// returns a writer staging the new contents of path.
func NewLockingFileWriter(ctx context.Context, path string, mode AcquireMode, optionalCfg ...LockingFileWriterConfig) (*LockingFileWriter, error) {
	var cfg LockingFileWriterConfig
	if len(optionalCfg) == 1 {
		cfg = optionalCfg[0]
	} else if len(optionalCfg) > 1 {
		return nil, fmt.Errorf("locking file writer created with more than one config")
	}

	file, err := mode.acquire(ctx, path)
	if err != nil {
		return nil, err
	}

	writer, err := newFileWriter(file.File, path, cfg.FileWriterConfig)
	if err != nil {
		removeCreatedDirs(path, file.createdDir)
		return nil, fmt.Errorf("creating file writer: %w", err)
	}

	fw := &LockingFileWriter{
		writer:     writer,
		createdDir: file.createdDir,
	}

	fi, err := os.Stat(path)
	if err != nil && !os.IsNotExist(err) {
		_ = fw.Close()
		return nil, fmt.Errorf("statting target file: %w", err)
	}
	if err == nil {
		fw.fi = fi
	}

	return fw, nil
}

// Write writes to the FileWriter. Must be called on an open LockingFileWriter.
func (fw *LockingFileWriter) Write(p []byte) (int, error) {
	if fw.state != lockingFileWriterStateOpen {
		return 0, fmt.Errorf("file writer not accepting writes")
	}

	return fw.writer.Write(p)
}

// Seal flushes the staged contents to disk and closes the underlying file
// descriptor. The lock stays held and the contents stay invisible until
// Commit is called. Must be called on an open LockingFileWriter.
func (fw *LockingFileWriter) Seal() error {
	if fw.state != lockingFileWriterStateOpen {
		return fmt.Errorf("file writer not sealable")
	}

	if err := fw.writer.flush(); err != nil {
		return err
	}

	fw.state = lockingFileWriterStateSealed

	return nil
}

// Close removes the lock and any staged contents without updating the target
// file. Leading directories created while acquiring the lock are removed
// again if they are empty. Does nothing if the writer has already been
// committed or closed.
func (fw *LockingFileWriter) Close() error {
	switch fw.state {
	case lockingFileWriterStateOpen, lockingFileWriterStateSealed:
	case lockingFileWriterStateClosed:
		return nil
	default:
		return fmt.Errorf("invalid state %d", fw.state)
	}

	fw.state = lockingFileWriterStateClosed

	if err := fw.writer.Close(); err != nil {
		return fmt.Errorf("closing writer: %w", err)
	}

	removeCreatedDirs(fw.writer.path, fw.createdDir)

	return nil
}

// Commit moves whatever has been written to the target file if and only if
// the target file has not been modified meanwhile. The lock is released
// afterwards, with no temporary files being left behind.
func (fw *LockingFileWriter) Commit() error {
	if fw.state == lockingFileWriterStateClosed {
		return fmt.Errorf("file writer already closed")
	}

	// Processes which are unaware of our lock files may have modified the
	// target while we held the lock.
	if err := fw.checkConcurrentModification(); err != nil {
		return err
	}

	fw.state = lockingFileWriterStateClosed

	if err := fw.writer.Commit(); err != nil {
		// The writer is consumed, so the lock file has to be cleaned up here.
		_ = os.Remove(fw.Path())
		return fmt.Errorf("committing file: %w", err)
	}

	return nil
}

func (fw *LockingFileWriter) checkConcurrentModification() error {
	fi, err := os.Stat(fw.writer.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("statting path: %w", err)
	}
	if err != nil {
		fi = nil
	}

	if fw.fi == nil && fi != nil {
		return fmt.Errorf("file concurrently created")
	}
	if fw.fi != nil && fi == nil {
		return fmt.Errorf("file concurrently deleted")
	}
	if fw.fi != nil && fi != nil {
		if fw.fi.Size() != fi.Size() || !fw.fi.ModTime().Equal(fi.ModTime()) || fw.fi.Mode() != fi.Mode() {
			return fmt.Errorf("file concurrently modified")
		}
	}

	return nil
}

// Path returns the path of the lock file the contents are staged in.
func (fw *LockingFileWriter) Path() string {
	return LockPath(fw.writer.path)
}
