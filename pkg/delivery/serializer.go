package delivery

import (
	"context"
	"errors"
)

// ErrSerializerStopped is returned by Do after the serializer's Run loop has
// exited.
var ErrSerializerStopped = errors.New("delivery: serializer stopped")

type job struct {
	fn  func(ctx context.Context) error
	res chan error
}

// Serializer is the single-writer execution boundary around the store. Every
// engine operation is submitted as a job and executed by one goroutine in
// arrival order, so concurrent triggers can never interleave mutations on
// the same records. Callers block until their job completes or their context
// is cancelled; a cancelled wait does not cancel a job that already started.
type Serializer struct {
	jobs chan job
	done chan struct{}
}

// NewSerializer creates a Serializer. Call Run to start the worker.
func NewSerializer() *Serializer {
	return &Serializer{
		jobs: make(chan job),
		done: make(chan struct{}),
	}
}

// Run executes submitted jobs until ctx is cancelled. It owns the single
// writer turn; there is exactly one Run per serializer.
func (s *Serializer) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.jobs:
			j.res <- j.fn(ctx)
		}
	}
}

// Do submits fn and waits for it to finish. If the serializer has stopped,
// or stops before the job is picked up, ErrSerializerStopped is returned.
func (s *Serializer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	j := job{fn: fn, res: make(chan error, 1)}

	select {
	case s.jobs <- j:
	case <-s.done:
		return ErrSerializerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-j.res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
