package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pagedrift/pagedrift/internal/logging"
)

// QuitSignal turns interrupt signals into two-stage cooperative cancellation.
// The first interrupt cancels the Drain context: producers stop handing out
// new work and in-flight work finishes. A second interrupt cancels the Abort
// context, which in-flight work should honor promptly.
type QuitSignal struct {
	abort       context.Context
	abortCancel context.CancelFunc
	drain       context.Context
	drainCancel context.CancelFunc
	sigCh       chan os.Signal
}

func NewQuitSignal(parent context.Context, logger logging.Logger) *QuitSignal {
	abort, abortCancel := context.WithCancel(parent)
	drain, drainCancel := context.WithCancel(abort)

	q := &QuitSignal{
		abort:       abort,
		abortCancel: abortCancel,
		drain:       drain,
		drainCancel: drainCancel,
		sigCh:       make(chan os.Signal, 2),
	}
	signal.Notify(q.sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-q.sigCh:
			logger.Warn("interrupt received: draining in-flight work, interrupt again to abort")
			drainCancel()
		case <-abort.Done():
			return
		}
		select {
		case <-q.sigCh:
			logger.Warn("second interrupt: aborting")
			abortCancel()
		case <-abort.Done():
		}
	}()
	return q
}

// Drain is canceled on the first interrupt. Use it to gate new work.
func (q *QuitSignal) Drain() context.Context { return q.drain }

// Abort is canceled on the second interrupt. Use it for in-flight work.
func (q *QuitSignal) Abort() context.Context { return q.abort }

// Stop releases the signal handler and cancels both contexts.
func (q *QuitSignal) Stop() {
	signal.Stop(q.sigCh)
	q.drainCancel()
	q.abortCancel()
}
