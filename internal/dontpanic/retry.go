// Package dontpanic provides function wrappers to ensure that wrapped code
// does not panic and cause program crashes.
package dontpanic

import (
	"fmt"

	sentry "github.com/getsentry/sentry-go"
	"gitlab.com/gitlab-org/gitaly-refs/internal/log"
)

// Try will wrap the provided function with a panic recovery. If a panic occurs,
// the recovered panic will be sent to Sentry and logged as an error.
// Returns `true` if no panic and `false` otherwise.
func Try(fn func()) bool { return catchAndLog(fn) }

// Go will run the provided function in a goroutine and recover from any
// panics. Go is best used in fire-and-forget goroutines where observability
// is lost.
func Go(fn func()) { go Try(fn) }

var logger = log.Default()

func catchAndLog(fn func()) bool {
	var recovered interface{}

	func() {
		defer func() {
			recovered = recover()
		}()
		fn()
	}()

	if recovered == nil {
		return true
	}

	err, ok := recovered.(error)
	if !ok {
		err = fmt.Errorf("%v", recovered)
	}

	entry := logger
	if id := sentry.CaptureException(err); id != nil && *id != "" {
		entry = entry.WithField("sentry_id", *id)
	}
	entry.WithError(err).Error("dontpanic: recovered from panic")

	return false
}
