package response

import (
	"bytes"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/pkg/errors"
)

// SharedResponse is a buffered response handed to every waiter of a collapsed origin fetch
// Waiters get views over one body buffer; the source is closed when the last reference is released
type SharedResponse struct {
	src     *Response
	refs    atomic.Int32
	body    []byte
	headers http.Header
}

// NewSharedResponse buffers res and returns it with one reference held by the caller
func NewSharedResponse(res *Response) (*SharedResponse, error) {
	if res == nil {
		return nil, errors.New("nil response can't be shared")
	}

	body, err := res.Body()
	if err != nil {
		return nil, errors.Wrap(err, "unable to buffer shared response")
	}

	sr := &SharedResponse{src: res, body: body, headers: res.Headers.Clone()}
	sr.refs.Store(1)
	return sr, nil
}

// Acquire takes a reference and returns read only view of response
// Every Acquire has to be paired with Release
func (sr *SharedResponse) Acquire() *Response {
	sr.refs.Add(1)

	view := &Response{
		StatusCode:    sr.src.StatusCode,
		Headers:       sr.headers.Clone(),
		ContentLength: sr.src.ContentLength,
		body:          sr.body,
		debug:         sr.src.debug,
		errorValue:    sr.src.errorValue,
		ttl:           sr.src.ttl,
	}
	view.bodySeeker = bytes.NewReader(sr.body)
	view.reader = io.NopCloser(view.bodySeeker)

	return view
}

// Release drops a reference, it is safe on nil
func (sr *SharedResponse) Release() {
	if sr == nil {
		return
	}

	if sr.refs.Add(-1) == 0 && sr.src != nil {
		sr.src.Close()
	}
}

// RefCount returns number of held references
func (sr *SharedResponse) RefCount() int32 {
	return sr.refs.Load()
}
