package testhelper

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	refslog "gitlab.com/gitlab-org/gitaly-refs/internal/log"
	"go.uber.org/goleak"
)

var testDirectory string

// Run sets up required testing state and executes the given test suite. Leaked goroutines fail
// an otherwise successful run.
func Run(m *testing.M) {
	// Run tests in a separate function such that we can use deferred statements and still
	// (indirectly) call `os.Exit()` in case the test setup failed.
	code, err := func() (int, error) {
		cleanup, err := configure()
		if err != nil {
			return 1, fmt.Errorf("test configuration: %w", err)
		}
		defer cleanup()

		code := m.Run()

		if code == 0 {
			if err := goleak.Find(); err != nil {
				return 1, fmt.Errorf("goroutines leaked: %w", err)
			}
		}

		return code, nil
	}()
	if err != nil {
		fmt.Printf("%s\n", err)
		os.Exit(1)
	}

	os.Exit(code)
}

// configure sets up the global test configuration.
func configure() (_ func(), returnedErr error) {
	refslog.Configure(refslog.Loggers, "json", "panic")

	if testDirectory != "" {
		return nil, errors.New("test directory has already been configured")
	}

	testDir, err := getTestTmpDir()
	if err != nil {
		return nil, err
	}
	testDirectory = testDir

	return func() {
		if err := os.RemoveAll(testDirectory); err != nil {
			log.Errorf("error removing test directory: %v", err)
		}
		testDirectory = ""
	}, nil
}

func getTestTmpDir() (string, error) {
	if testTmpDir := os.Getenv("TEST_TMP_DIR"); testTmpDir != "" {
		return testTmpDir, os.MkdirAll(testTmpDir, 0o755)
	}

	testTmpDir, err := os.MkdirTemp("", "gitaly-refs-")
	if err != nil {
		return "", err
	}

	// macOS symlinks /tmp/ to /private/tmp/ which can cause some check to fail
	return filepath.EvalSymlinks(testTmpDir)
}
