// Package cancellation coordinates cooperative cancellation of running jobs
// and the bounded drain performed at shutdown.
//
// A [Token] is a broadcast-once signal: cancelling it closes a channel that
// every holder observes, and it can never be reset. The [Manager] maps job
// ids to tokens, and the [ShutdownCoordinator] combines a global token with
// the manager to stop the system in order.
package cancellation

import (
	"context"
	"sync"

	"github.com/xraph/jobs"
)

// Token is a cooperative cancellation signal shared by everyone holding the
// pointer. The zero value is not usable; call NewToken.
type Token struct {
	done chan struct{}
	once sync.Once
}

// NewToken returns an uncancelled token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel signals every holder. Calling it again has no effect.
func (t *Token) Cancel() {
	t.once.Do(func() { close(t.done) })
}

// IsCancelled reports whether Cancel was called. It never blocks.
func (t *Token) IsCancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed on cancellation.
func (t *Token) Done() <-chan struct{} { return t.done }

// Wait blocks until the token is cancelled or ctx ends. It returns nil on
// cancellation and ctx.Err() otherwise.
func (t *Token) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Context derives a context from parent that carries t and is cancelled
// with cause jobs.ErrCancelled when t fires. The returned CancelFunc
// releases the watcher and must be called.
func (t *Token) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(NewContext(parent, t))
	go func() {
		select {
		case <-t.done:
			cancel(jobs.ErrCancelled)
		case <-ctx.Done():
		}
	}()
	return ctx, func() { cancel(context.Canceled) }
}

type tokenKey struct{}

// NewContext returns a copy of ctx carrying t.
func NewContext(ctx context.Context, t *Token) context.Context {
	return context.WithValue(ctx, tokenKey{}, t)
}

// FromContext returns the token carried by ctx. Handlers use it to poll
// for cancellation without watching ctx.Done.
func FromContext(ctx context.Context) (*Token, bool) {
	t, ok := ctx.Value(tokenKey{}).(*Token)
	return t, ok
}

// IsCancelled reports whether the token carried by ctx has fired. A context
// without a token is never cancelled.
func IsCancelled(ctx context.Context) bool {
	t, ok := FromContext(ctx)
	return ok && t.IsCancelled()
}
