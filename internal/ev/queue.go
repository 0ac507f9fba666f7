// Package ev implements the event loop that every other part of the
// server runs on. Goroutines that read sockets or wait on file
// descriptors never touch server state themselves; they post closures
// to a Loop and the goroutine that owns the Loop runs them in order.
package ev

import (
	"context"
	"errors"
	"sync"

	"deedles.dev/xsync/cq"
)

type Queue = cq.BulkQueue[func() error, *Events]

func NewQueue() *Queue {
	return cq.New(func(v []func() error) *Events {
		return &Events{
			events: v,
		}
	})
}

// Events represents a batch of closures taken from a Queue.
type Events struct {
	events []func() error
}

// Flush processess all of the events represented by q.
func (q *Events) Flush() error {
	return errors.Join(Flush(q)...)
}

func Flush(queue *Events) (errs []error) {
	for _, ev := range queue.events {
		err := ev()
		if err != nil {
			errs = append(errs, err)
		}
	}
	queue.events = nil
	return errs
}

// Loop is a single-threaded event loop.
type Loop struct {
	done  chan struct{}
	close sync.Once
	queue *Queue
}

func NewLoop() *Loop {
	return &Loop{
		done:  make(chan struct{}),
		queue: NewQueue(),
	}
}

// Post schedules ev to run on the goroutine that flushes the loop. It
// may be called from any goroutine. It returns false if the loop has
// been stopped.
func (loop *Loop) Post(ev func() error) bool {
	select {
	case <-loop.done:
		return false
	case loop.queue.Add() <- ev:
		return true
	}
}

// Do is like Post but for closures that can't fail.
func (loop *Loop) Do(f func()) bool {
	return loop.Post(func() error { f(); return nil })
}

// Flush runs everything that has been posted since the last flush
// without blocking if nothing has.
func (loop *Loop) Flush() error {
	select {
	case events := <-loop.queue.Get():
		return events.Flush()
	default:
		return nil
	}
}

// Wait blocks until at least one closure has been posted and then
// runs the pending batch.
func (loop *Loop) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-loop.done:
		return nil
	case events := <-loop.queue.Get():
		return events.Flush()
	}
}

// Done is closed when the loop is stopped.
func (loop *Loop) Done() <-chan struct{} {
	return loop.done
}

func (loop *Loop) Stop() {
	loop.close.Do(func() {
		close(loop.done)
		loop.queue.Stop()
	})
}
