package response

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"

	"github.com/imgedge/imgedge/pkg/helpers"
)

const (
	// HeaderContentType name of Content-Type header
	HeaderContentType = "content-type"
	// HeaderCacheStatus name of header marking responses served from edge cache
	HeaderCacheStatus = "x-edge-cache"
)

type bodyTransformFnc func(writer io.Writer) io.WriteCloser

// Response is helper struct for wrapping different backend response
type Response struct {
	StatusCode    int         // status code of response
	Headers       http.Header // headers for response
	ContentLength int64       // if buffered response contains length of buffer, for streams it equal to -1
	debug         bool        // debug flag
	errorValue    error       // error value

	reader     io.ReadCloser // reader for response body
	body       []byte        // response body for buffered value
	bodySeeker io.ReadSeeker

	transformer bodyTransformFnc // function that can transform body writer
	ttl         int              // time to live in edge cache in seconds
}

// New create response object with io.ReadCloser
func New(statusCode int, body io.ReadCloser) *Response {
	res := Response{StatusCode: statusCode, reader: body}
	res.ContentLength = 0
	if body != nil {
		seeker, ok := body.(io.ReadSeeker)
		if ok {
			res.bodySeeker = seeker
		}
		res.ContentLength = -1
	}
	res.Headers = make(http.Header)

	return &res
}

// NewNoContent create response object without content
func NewNoContent(statusCode int) *Response {
	res := New(statusCode, nil)
	res.ContentLength = 0
	return res
}

// NewString create response object from string
func NewString(statusCode int, body string) *Response {
	res := Response{StatusCode: statusCode}
	res.setBodyBytes([]byte(body))
	res.Headers = make(http.Header)
	res.Headers.Set(HeaderContentType, "text/plain")
	return &res
}

// NewBuf create response object from []byte
func NewBuf(statusCode int, body []byte) *Response {
	res := Response{StatusCode: statusCode}
	res.Headers = make(http.Header)
	res.setBodyBytes(body)
	return &res
}

// NewError create response object from error
func NewError(statusCode int, err error) *Response {
	res := Response{StatusCode: statusCode, errorValue: err}
	res.Headers = make(http.Header)
	res.Headers.Set(HeaderContentType, "application/json")
	res.setBodyBytes([]byte(`{"message": "error"}`))
	return &res
}

// SetContentType update content type header of response
func (r *Response) SetContentType(contentType string) *Response {
	r.Headers.Set(HeaderContentType, contentType)
	return r
}

// Set update response headers
func (r *Response) Set(headerName string, headerValue string) {
	r.Headers.Set(headerName, headerValue)
}

func (r *Response) setBodyBytes(body []byte) {
	r.bodySeeker = bytes.NewReader(body)
	r.reader = io.NopCloser(r.bodySeeker)
	r.ContentLength = int64(len(body))
	r.body = body
}

// Body reads all content of response and returns []byte
// Content of the response is changed
// Such response shouldn't be Send to client
func (r *Response) Body() ([]byte, error) {
	if r.body != nil {
		return r.body, nil
	}

	if r.reader == nil {
		return nil, errors.New("empty body")
	}

	body, err := io.ReadAll(r.reader)
	r.reader.Close()
	r.reader = nil
	r.setBodyBytes(body)
	return r.body, err
}

// Buffer reads body to memory if it is not longer than limit
// When body is longer, response stays streamed and false is returned
func (r *Response) Buffer(limit int64) (bool, error) {
	if r.body != nil {
		return int64(len(r.body)) <= limit, nil
	}

	if r.reader == nil {
		return false, nil
	}

	if r.ContentLength > limit {
		return false, nil
	}

	head, err := io.ReadAll(io.LimitReader(r.reader, limit+1))
	if err != nil {
		return false, errors.Wrap(err, "unable to buffer body")
	}

	if int64(len(head)) > limit {
		r.reader = readCloser{Reader: io.MultiReader(bytes.NewReader(head), r.reader), Closer: r.reader}
		r.ContentLength = -1
		return false, nil
	}

	r.reader.Close()
	r.reader = nil
	r.setBodyBytes(head)
	return true, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// CopyBody returns a copy of Body in []byte
func (r *Response) CopyBody() ([]byte, error) {
	var err error
	src := r.body
	if src == nil {
		src, err = r.Body()
		if err != nil {
			return nil, err
		}
	}
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst, nil
}

// Close response reader
func (r *Response) Close() {
	if r.reader != nil {
		io.Copy(io.Discard, r.reader)
		r.reader.Close()
		r.reader = nil
	}
}

// SetDebug set flag indicating that response can include debug information
func (r *Response) SetDebug(debug bool) *Response {
	r.debug = debug
	if debug {
		r.Headers.Set("Cache-Control", "no-cache")
		r.writeDebug()
	}

	return r
}

// HasError check if response contains error
func (r *Response) HasError() bool {
	return r.errorValue != nil
}

// Error returns error instance
func (r *Response) Error() error {
	return r.errorValue
}

// Send write response to client using streaming
func (r *Response) Send(w http.ResponseWriter) error {
	for headerName, headerValue := range r.Headers {
		w.Header()[headerName] = headerValue
	}

	defer r.Close()

	if r.ContentLength == 0 {
		w.WriteHeader(r.StatusCode)
		return nil
	}

	if r.ContentLength > 0 && r.transformer == nil {
		w.Header().Set("content-length", strconv.FormatInt(r.ContentLength, 10))
	}

	w.WriteHeader(r.StatusCode)
	resStream := r.Stream()
	if resStream == nil {
		return nil
	}

	var err error
	if r.transformer != nil {
		tW := r.transformer(w)
		_, err = io.Copy(tW, resStream)
		tW.Close()
	} else {
		_, err = io.Copy(w, resStream)
	}

	resStream.Close()
	return err
}

// SendContent use http.ServeContent to return response to client
// It can handle range and condition requests
// In this function we don't need to use transformer because it don't serve whole body
func (r *Response) SendContent(req *http.Request, w http.ResponseWriter) error {
	// ServeContent will modify status code so to it we should pass only 200 response
	if r.StatusCode != 200 || r.body == nil || !helpers.IsRangeOrCondition(req) {
		return r.Send(w)
	}

	defer r.Close()
	for headerName, headerValue := range r.Headers {
		w.Header()[headerName] = headerValue
	}

	lastMod, err := time.Parse(http.TimeFormat, r.Headers.Get("Last-Modified"))
	if err != nil {
		lastMod = time.Time{}
	}

	http.ServeContent(w, req, "", lastMod, bytes.NewReader(r.body))
	return nil
}

// IsCacheable returns true when response can be stored in edge cache
func (r *Response) IsCacheable() bool {
	return r.StatusCode > 199 && r.StatusCode < 300 && r.ttl > 0 && !r.HasError()
}

// IsFromCache returns true when response was served from edge cache
func (r *Response) IsFromCache() bool {
	return r.Headers.Get(HeaderCacheStatus) == "hit"
}

// SetCacheHit mark response as served from edge cache
func (r *Response) SetCacheHit() {
	r.Headers.Set(HeaderCacheStatus, "hit")
}

// SetTTL sets edge cache time to live
func (r *Response) SetTTL(ttl time.Duration) {
	r.ttl = int(ttl / time.Second)
}

// GetTTL returns edge cache time to live in seconds
func (r *Response) GetTTL() int {
	return r.ttl
}

// EncodeMsgpack encodes buffered response
func (r *Response) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeMulti(r.StatusCode, r.Headers, r.ttl, r.ContentLength, r.body)
}

// DecodeMsgpack decodes response encoded with EncodeMsgpack
func (r *Response) DecodeMsgpack(dec *msgpack.Decoder) error {
	if err := dec.DecodeMulti(&r.StatusCode, &r.Headers, &r.ttl, &r.ContentLength, &r.body); err != nil {
		return err
	}
	if r.Headers == nil {
		r.Headers = make(http.Header)
	}
	if r.body == nil {
		r.body = []byte{}
	}
	r.setBodyBytes(r.body)
	return nil
}

// Copy create complete response copy with headers and body
func (r *Response) Copy() (*Response, error) {
	if r == nil {
		return nil, nil
	}

	c := Response{StatusCode: r.StatusCode, ContentLength: r.ContentLength, debug: r.debug, errorValue: r.errorValue, ttl: r.ttl}
	c.Headers = r.Headers.Clone()
	if r.reader == nil && r.body == nil {
		c.ContentLength = 0
		return &c, nil
	}

	body, err := r.CopyBody()
	if err != nil {
		return nil, err
	}
	c.setBodyBytes(body)
	return &c, nil
}

// Stream return io.Reader interface from correct response content
func (r *Response) Stream() io.ReadCloser {
	if r.body != nil {
		return io.NopCloser(bytes.NewReader(r.body))
	}

	if r.reader != nil {
		return r.reader
	}

	return nil
}

// BodyTransformer add function that will transform body before send to client
func (r *Response) BodyTransformer(w bodyTransformFnc) {
	r.transformer = w
}

// IsBuffered check if response has access to original buffer
func (r *Response) IsBuffered() bool {
	return r.body != nil
}

func (r *Response) writeDebug() {
	if !r.debug || r.errorValue == nil {
		return
	}

	body := map[string]string{"message": r.errorValue.Error()}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return
	}
	r.Close()
	r.setBodyBytes(jsonBody)
	r.SetContentType("application/json")
}
