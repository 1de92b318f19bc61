// Package sigctx ties a context lifetime to process termination signals.
package sigctx

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Signals stop the process gracefully.
var Signals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
	syscall.SIGQUIT,
}

// NotifyContext is WithSignals over [context.Background].
func NotifyContext() (context.Context, context.CancelFunc) {
	return WithSignals(context.Background())
}

// WithSignals returns a copy of parent that is done on the first of [Signals].
// A second signal is not caught, so it kills the process the default way.
func WithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, Signals...)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx, stop
}
