package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// LogFileName is the name of the log file created below the log directory.
const LogFileName = "gitaly-refs.log"

// RedirectToDir makes all loggers append to LogFileName inside of dir. The
// returned closer must be closed once logging is done.
func RedirectToDir(loggers []*logrus.Logger, dir string) (io.Closer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(dir, LogFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	for _, l := range loggers {
		l.SetOutput(logFile)
	}

	return logFile, nil
}
