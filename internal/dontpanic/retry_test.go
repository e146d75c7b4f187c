package dontpanic

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/gitaly-refs/internal/testhelper"
)

func TestMain(m *testing.M) {
	testhelper.Run(m)
}

func captureLogs(t *testing.T) func() []*logrus.Entry {
	entry, hook := testhelper.NewCapturingLogEntry(t)

	oldLogger := logger
	logger = entry
	t.Cleanup(func() { logger = oldLogger })

	return hook.AllEntries
}

func TestTry(t *testing.T) {
	entries := captureLogs(t)

	var called bool
	require.True(t, Try(func() { called = true }))
	require.True(t, called)
	require.Empty(t, entries())

	require.False(t, Try(func() { panic(errors.New("boom")) }))
	require.False(t, Try(func() { panic("bang") }))

	logged := entries()
	require.Len(t, logged, 2)
	require.Equal(t, "dontpanic: recovered from panic", logged[0].Message)
	require.Equal(t, logrus.ErrorLevel, logged[0].Level)
	require.EqualError(t, logged[0].Data[logrus.ErrorKey].(error), "boom")
	require.EqualError(t, logged[1].Data[logrus.ErrorKey].(error), "bang")
}

func TestGo(t *testing.T) {
	entries := captureLogs(t)

	done := make(chan struct{})
	Go(func() {
		defer close(done)
		panic("in goroutine")
	})
	<-done

	// The panic is recovered after the deferred close has run.
	require.Eventually(t, func() bool { return len(entries()) == 1 }, 5*time.Second, time.Millisecond)
}
