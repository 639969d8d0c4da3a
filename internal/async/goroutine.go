// Package async runs post-commit work (search indexing, email, webhooks) off the
// request path without leaking goroutines or crashing the process on panic.
package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var inflight sync.WaitGroup

// SafeGo runs fn in a goroutine bounded by timeout. The work context keeps the
// parent's values but not its cancellation, so a finished request does not abort it.
// Panics and errors are logged under taskName.
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	inflight.Add(1)
	go func() {
		defer inflight.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logrus.WithFields(logrus.Fields{
					"task":  taskName,
					"panic": fmt.Sprint(r),
					"stack": string(debug.Stack()),
				}).Error("async task panicked")
			}
		}()

		if err := fn(ctx); err != nil {
			logrus.WithError(err).WithField("task", taskName).Warn("async task failed")
		}
	}()
}

// Wait blocks until every task started by SafeGo has returned or the deadline passes.
// It reports whether all tasks finished.
func Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
