package request

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/uploadq/internal/logging"
	"github.com/dmitrijs2005/uploadq/internal/observe"
)

// ResponseHook may transform a raw result before it is committed, or reject
// it by returning an error.
type ResponseHook[T any] func(ctx context.Context, v T) (T, error)

// Options tune a Request. The zero value is usable.
type Options[T any] struct {
	// OnResponse runs on every successful, still-current result.
	OnResponse ResponseHook[T]
	// IsCancellation overrides the cancellation classifier (IsCancellation).
	IsCancellation func(error) bool
	Logger         logging.Logger
}

// Snapshot is an immutable copy of a Request's observable state.
type Snapshot[A, T any] struct {
	Name             string
	OperationID      uint64
	State            State
	Response         T
	HasResponse      bool
	Err              error
	UploadProgress   int
	DownloadProgress int
	LastPayload      A
}

// Request wraps one logical operation slot. It can be executed any number of
// times; only the latest invocation's result is ever committed.
type Request[A, T any] struct {
	name     string
	onResp   ResponseHook[T]
	isCancel func(error) bool
	log      logging.Logger

	mu          sync.Mutex
	state       State
	opID        uint64
	response    T
	hasResponse bool
	err         error
	upPct       int
	downPct     int
	lastPayload A
	inflight    Operation[T]
	aborted     map[uint64]struct{}

	hub observe.Hub[Snapshot[A, T]]
}

// New creates a Request in StateInitial.
func New[A, T any](name string, opts Options[T]) *Request[A, T] {
	isCancel := opts.IsCancellation
	if isCancel == nil {
		isCancel = IsCancellation
	}
	return &Request[A, T]{
		name:     name,
		onResp:   opts.OnResponse,
		isCancel: isCancel,
		log:      logging.OrNop(opts.Logger).With("request", name),
		aborted:  make(map[uint64]struct{}),
	}
}

// Execute invokes call(ctx, args) and waits for it. Any invocation still in
// flight on this request is canceled (best-effort) and fenced out.
//
// It returns ErrSuperseded when a newer Execute won, ErrCanceled when the
// invocation was aborted, and otherwise the committed result or failure.
func (r *Request[A, T]) Execute(ctx context.Context, call Call[A, T], args A) (T, error) {
	var zero T

	r.mu.Lock()
	prev := r.inflight
	r.opID++
	id := r.opID
	r.state = StateFetching
	r.err = nil
	r.upPct, r.downPct = 0, 0
	r.lastPayload = args
	r.inflight = nil
	r.mu.Unlock()

	if prev != nil {
		r.log.Debug(ctx, "canceling superseded invocation", "op_id", id-1)
		prev.Cancel()
	}
	r.publish()

	if call == nil {
		return r.commit(ctx, id, zero, ErrNilOperation)
	}

	op := call(ctx, args)
	if op == nil {
		return r.commit(ctx, id, zero, ErrNilOperation)
	}

	r.mu.Lock()
	current := r.currentLocked(id)
	if current {
		r.inflight = op
	}
	r.mu.Unlock()

	if !current {
		// Aborted or superseded while call was starting.
		op.Cancel()
	}

	op.OnProgress(func(p Progress) { r.progress(id, p) })

	res, err := op.Result()

	if err == nil && r.onResp != nil && r.isCurrent(id) {
		res, err = r.onResp(ctx, res)
	}

	return r.commit(ctx, id, res, err)
}

// Abort cancels the in-flight invocation, if any, and resets the request to
// StateInitial. The aborted invocation's eventual result is discarded even if
// the transport ignores cancellation. It reports whether anything was aborted.
func (r *Request[A, T]) Abort() bool {
	r.mu.Lock()
	if r.state != StateFetching {
		r.mu.Unlock()
		return false
	}
	op := r.inflight
	r.aborted[r.opID] = struct{}{}
	r.inflight = nil
	r.state = StateInitial
	r.err = nil
	r.clearResponseLocked()
	r.upPct, r.downPct = 0, 0
	r.mu.Unlock()

	if op != nil {
		op.Cancel()
	}
	r.publish()
	return true
}

func (r *Request[A, T]) commit(ctx context.Context, id uint64, res T, err error) (T, error) {
	var zero T

	r.mu.Lock()
	if !r.currentLocked(id) {
		_, wasAborted := r.aborted[id]
		delete(r.aborted, id)
		r.mu.Unlock()

		r.log.Debug(ctx, "discarding stale result", "op_id", id)
		if wasAborted {
			return zero, ErrCanceled
		}
		return zero, ErrSuperseded
	}

	r.inflight = nil
	canceled := false
	switch {
	case err == nil:
		r.state = StateSuccess
		r.response = res
		r.hasResponse = true
		r.err = nil
	case r.isCancel(err):
		canceled = true
		r.state = StateInitial
		r.err = nil
		r.clearResponseLocked()
	default:
		r.state = StateError
		r.err = err
		r.clearResponseLocked()
	}
	r.mu.Unlock()

	if canceled {
		r.log.Debug(ctx, "invocation canceled", "op_id", id)
	}
	r.publish()

	if err != nil {
		return zero, err
	}
	return res, nil
}

func (r *Request[A, T]) progress(id uint64, p Progress) {
	r.mu.Lock()
	if !r.currentLocked(id) || r.state != StateFetching {
		r.mu.Unlock()
		return
	}
	pct := ClampPercent(p.Percent)
	if p.Direction == Download {
		r.downPct = pct
	} else {
		r.upPct = pct
	}
	r.mu.Unlock()

	r.publish()
}

func (r *Request[A, T]) isCurrent(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentLocked(id)
}

func (r *Request[A, T]) currentLocked(id uint64) bool {
	if id != r.opID {
		return false
	}
	_, aborted := r.aborted[id]
	return !aborted
}

func (r *Request[A, T]) clearResponseLocked() {
	var zero T
	r.response = zero
	r.hasResponse = false
}

func (r *Request[A, T]) publish() {
	r.hub.Publish(r.Snapshot())
}

// Subscribe registers fn to receive a Snapshot after every state change.
func (r *Request[A, T]) Subscribe(fn func(Snapshot[A, T])) (unsubscribe func()) {
	return r.hub.Subscribe(fn)
}

// Snapshot returns a consistent copy of the current state.
func (r *Request[A, T]) Snapshot() Snapshot[A, T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot[A, T]{
		Name:             r.name,
		OperationID:      r.opID,
		State:            r.state,
		Response:         r.response,
		HasResponse:      r.hasResponse,
		Err:              r.err,
		UploadProgress:   r.upPct,
		DownloadProgress: r.downPct,
		LastPayload:      r.lastPayload,
	}
}

func (r *Request[A, T]) Name() string { return r.name }

func (r *Request[A, T]) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Response returns the last committed result and whether there is one.
func (r *Request[A, T]) Response() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.response, r.hasResponse
}

func (r *Request[A, T]) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Request[A, T]) UploadProgress() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upPct
}

func (r *Request[A, T]) DownloadProgress() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.downPct
}

// LastPayload returns the arguments of the most recent Execute.
func (r *Request[A, T]) LastPayload() A {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastPayload
}

// OperationID returns the fencing token of the most recent Execute.
func (r *Request[A, T]) OperationID() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opID
}

// InFlight reports whether an invocation is pending.
func (r *Request[A, T]) InFlight() bool {
	return r.State() == StateFetching
}
