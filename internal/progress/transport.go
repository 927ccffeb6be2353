package progress

import (
	"net/http"
)

// HeaderID carries the correlation id on outgoing HTTP requests.
const HeaderID = "X-Progress-Id"

// Transport is an http.RoundTripper that reports request body upload progress
// to a Registry for requests carrying HeaderID. Others pass through untouched.
type Transport struct {
	Base     http.RoundTripper
	Registry *Registry
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	id := req.Header.Get(HeaderID)
	if id == "" || t.Registry == nil {
		return base.RoundTrip(req)
	}

	t.Registry.NotifyStart(StartEvent{ID: id, Total: req.ContentLength})

	if req.Body != nil && req.Body != http.NoBody {
		req = req.Clone(req.Context())
		req.Body = NewReader(req.Body, req.ContentLength, func(p int) {
			t.Registry.NotifyProgress(ProgressEvent{ID: id, Percent: p})
		})
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		t.Registry.NotifyEnd(EndEvent{ID: id, Err: err})
		return nil, err
	}

	t.Registry.NotifyEnd(EndEvent{ID: id, StatusCode: resp.StatusCode})
	return resp, nil
}
