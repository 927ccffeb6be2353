package request

import (
	"context"
	"sync"
)

// Operation is a cancelable, progress-reporting asynchronous handle.
type Operation[T any] interface {
	// Result blocks until the operation settles.
	Result() (T, error)
	// Cancel asks the operation to stop. It is best-effort and idempotent.
	Cancel()
	// OnProgress registers a progress callback.
	OnProgress(fn ProgressFunc)
}

// Call starts an operation for the given arguments.
type Call[A, T any] func(ctx context.Context, args A) Operation[T]

// Handle is the stock Operation implementation.
type Handle[T any] struct {
	cancel context.CancelFunc
	done   chan struct{}

	res T
	err error

	mu        sync.Mutex
	listeners []ProgressFunc
	last      map[Direction]Progress
}

// Go runs fn in its own goroutine with a child context that Cancel cancels.
// fn reports progress through report; the latest event per direction is
// replayed to callbacks registered after it fired.
func Go[T any](ctx context.Context, fn func(ctx context.Context, report ProgressFunc) (T, error)) *Handle[T] {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle[T]{
		cancel: cancel,
		done:   make(chan struct{}),
		last:   make(map[Direction]Progress, 2),
	}

	go func() {
		defer close(h.done)
		defer cancel()
		h.res, h.err = fn(ctx, h.report)
	}()

	return h
}

// Resolved returns an already settled handle.
func Resolved[T any](v T, err error) *Handle[T] {
	h := &Handle[T]{
		cancel: func() {},
		done:   make(chan struct{}),
		res:    v,
		err:    err,
		last:   make(map[Direction]Progress, 2),
	}
	close(h.done)
	return h
}

func (h *Handle[T]) Result() (T, error) {
	<-h.done
	return h.res, h.err
}

// Done is closed once the operation settles.
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

func (h *Handle[T]) Cancel() {
	h.cancel()
}

func (h *Handle[T]) OnProgress(fn ProgressFunc) {
	if fn == nil {
		return
	}

	h.mu.Lock()
	h.listeners = append(h.listeners, fn)
	replay := make([]Progress, 0, len(h.last))
	for _, d := range []Direction{Upload, Download} {
		if p, ok := h.last[d]; ok {
			replay = append(replay, p)
		}
	}
	h.mu.Unlock()

	for _, p := range replay {
		fn(p)
	}
}

func (h *Handle[T]) report(p Progress) {
	p.Percent = ClampPercent(p.Percent)

	h.mu.Lock()
	h.last[p.Direction] = p
	listeners := append([]ProgressFunc(nil), h.listeners...)
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(p)
	}
}
