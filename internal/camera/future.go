package camera

import (
	"context"
	"errors"
	"sync"
)

// ErrCancelled is returned by a Future that was cancelled before metadata
// arrived, typically because the capture session was torn down.
var ErrCancelled = errors.New("metadata future cancelled")

// MetadataFuture resolves to the capture metadata of one frame.
type MetadataFuture interface {
	// Get blocks until the metadata is available, the future fails, or ctx
	// ends.
	Get(ctx context.Context) (*Metadata, error)
}

// Future is a settable MetadataFuture. It settles at most once; later
// Complete, Fail or Cancel calls are ignored.
type Future struct {
	once sync.Once
	done chan struct{}
	md   *Metadata
	err  error
}

// NewFuture returns an unresolved future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// CompletedFuture returns a future already resolved to md.
func CompletedFuture(md *Metadata) *Future {
	f := NewFuture()
	f.Complete(md)
	return f
}

// FailedFuture returns a future already failed with err.
func FailedFuture(err error) *Future {
	f := NewFuture()
	f.Fail(err)
	return f
}

// Complete resolves the future. It reports whether this call settled it.
func (f *Future) Complete(md *Metadata) bool {
	return f.settle(md, nil)
}

// Fail settles the future with err.
func (f *Future) Fail(err error) bool {
	return f.settle(nil, err)
}

// Cancel settles the future with ErrCancelled.
func (f *Future) Cancel() bool {
	return f.settle(nil, ErrCancelled)
}

func (f *Future) settle(md *Metadata, err error) bool {
	settled := false
	f.once.Do(func() {
		f.md, f.err = md, err
		close(f.done)
		settled = true
	})
	return settled
}

// Done is closed once the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Get implements MetadataFuture.
func (f *Future) Get(ctx context.Context) (*Metadata, error) {
	// A settled future wins over an expired context.
	select {
	case <-f.done:
		return f.md, f.err
	default:
	}
	select {
	case <-f.done:
		return f.md, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
