package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrCancelled reports that a run stopped because its Signal was set.
var ErrCancelled = errors.New("collection cancelled")

// Signal is the stop request shared by every task of one fleet run.
// The zero value is not usable; create it with NewSignal.
type Signal struct {
	set  atomic.Bool
	once sync.Once
	done chan struct{}
}

func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Set requests a stop. Calling it more than once is harmless.
func (s *Signal) Set() {
	s.once.Do(func() {
		s.set.Store(true)
		close(s.done)
	})
}

// IsSet reports whether a stop was requested.
func (s *Signal) IsSet() bool {
	return s.set.Load()
}

// Done is closed once the signal is set, so sleeps can wake early.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Context returns a child of parent that is cancelled, with ErrCancelled as
// its cause, once the signal is set. The returned func releases it.
func (s *Signal) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancelCause := context.WithCancelCause(parent)
	go func() {
		select {
		case <-s.done:
			cancelCause(ErrCancelled)
		case <-ctx.Done():
		}
	}()
	return ctx, func() { cancelCause(context.Canceled) }
}
