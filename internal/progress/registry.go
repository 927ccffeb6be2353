// Package progress keeps transfer progress for transports that only emit
// global start/progress/end notifications instead of per-call callbacks.
//
// Each in-flight call is keyed by a correlation id (the upload's client file
// id). Interceptors (Transport for net/http, UnaryClientInterceptor for gRPC)
// feed the Registry; upload entries read it.
package progress

import (
	"net/http"
	"sync"
)

// Status is the last known state of one keyed call.
type Status struct {
	Percent    int
	StatusCode int
	Err        error
	Done       bool
}

type StartEvent struct {
	ID    string
	Total int64
}

type ProgressEvent struct {
	ID      string
	Percent int
}

type EndEvent struct {
	ID         string
	StatusCode int
	Err        error
}

// Registry maps correlation ids to Status. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	status map[string]*Status
}

func NewRegistry() *Registry {
	return &Registry{status: make(map[string]*Status)}
}

// NotifyStart resets the entry for e.ID.
func (r *Registry) NotifyStart(e StartEvent) {
	if e.ID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[e.ID] = &Status{}
}

// NotifyProgress records a percentage. Percentages never move backwards and
// updates for finished or unknown ids are ignored.
func (r *Registry) NotifyProgress(e ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.status[e.ID]
	if !ok || s.Done {
		return
	}
	p := clamp(e.Percent)
	if p > s.Percent {
		s.Percent = p
	}
}

// NotifyEnd marks the call finished. A successful end pins progress to 100.
func (r *Registry) NotifyEnd(e EndEvent) {
	if e.ID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.status[e.ID]
	if !ok {
		s = &Status{}
		r.status[e.ID] = s
	}
	s.Done = true
	s.StatusCode = e.StatusCode
	s.Err = e.Err
	if e.Err == nil && !isFailureStatus(e.StatusCode) {
		s.Percent = 100
	}
}

// Forget drops the entry for id.
func (r *Registry) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.status, id)
}

// Status returns a copy of the entry for id.
func (r *Registry) Status(id string) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.status[id]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

// PercentLoaded returns 0 for unknown ids.
func (r *Registry) PercentLoaded(id string) int {
	s, _ := r.Status(id)
	return s.Percent
}

// IsFileSizeValid is false once the server rejected the payload as too large.
func (r *Registry) IsFileSizeValid(id string) bool {
	s, _ := r.Status(id)
	return s.StatusCode != http.StatusRequestEntityTooLarge
}

// IsServerError reports a failed call other than a size rejection.
func (r *Registry) IsServerError(id string) bool {
	s, ok := r.Status(id)
	if !ok || !s.Done {
		return false
	}
	if s.StatusCode == http.StatusRequestEntityTooLarge {
		return false
	}
	return s.Err != nil || isFailureStatus(s.StatusCode)
}

func isFailureStatus(code int) bool {
	return code >= http.StatusBadRequest
}

func clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
