package testhelper

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// NewCapturingLogEntry creates a logrus entry at debug level whose output is
// discarded but whose entries are recorded by the returned hook.
func NewCapturingLogEntry(tb testing.TB) (*logrus.Entry, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(logger), hook
}
