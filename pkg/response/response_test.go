package response

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vmihailenco/msgpack"
)

func TestResponse_Copy(t *testing.T) {
	buf := make([]byte, 1000)
	res := NewBuf(200, buf)
	res.SetTTL(time.Minute)
	resCpy, err := res.Copy()
	assert.Nil(t, err, "Should not return error when copying")

	assert.Equal(t, res.StatusCode, resCpy.StatusCode, "status code should be equal")
	assert.Equal(t, res.ContentLength, resCpy.ContentLength, "content length should be equal")
	assert.Equal(t, 60, resCpy.GetTTL())

	buf1, err := res.Body()
	assert.Nil(t, err, "Should not return error when reading body")
	buf2, err := resCpy.Body()
	assert.Nil(t, err, "Should not return error when reading body")
	assert.Equal(t, len(buf1), len(buf2), "buffers from response should have equal length")
}

func TestNew(t *testing.T) {
	buf := make([]byte, 1000)
	reader := io.NopCloser(bytes.NewReader(buf))

	res := New(200, reader)
	res.Headers.Set("x-header", "1")
	res.SetContentType("text/plain")

	assert.Equal(t, res.StatusCode, 200)
	assert.Equal(t, int64(-1), res.ContentLength)
	assert.Equal(t, res.Headers.Get(HeaderContentType), "text/plain")
	assert.Equal(t, res.Headers["X-Header"][0], "1")

	buf2, err := res.Body()
	assert.Nil(t, err, "Should not return error when reading body")
	assert.Equal(t, len(buf), len(buf2), "buffers from response should have equal length")
}

func TestNewNoContent(t *testing.T) {
	res := NewNoContent(400)
	res.Set("x-header", "1")

	assert.Equal(t, res.StatusCode, 400)
	assert.Equal(t, res.Headers["X-Header"][0], "1")

	buf, err := res.Body()
	assert.NotNil(t, err, "Should return error when reading body")
	assert.Nil(t, buf)
}

func TestNewError(t *testing.T) {
	err := errors.New("store unreachable")
	res := NewError(503, err)

	assert.Equal(t, res.StatusCode, 503)
	assert.True(t, res.HasError())
	assert.Equal(t, res.Error(), err)
	assert.Equal(t, res.Headers.Get(HeaderContentType), "application/json")

	res.SetDebug(true)
	buf, errBody := res.Body()
	assert.Nil(t, errBody)
	assert.Equal(t, `{"message":"store unreachable"}`, string(buf))
	assert.Equal(t, "no-cache", res.Headers.Get("Cache-Control"))
}

func TestResponse_Buffer(t *testing.T) {
	buf := make([]byte, 100)
	res := New(200, io.NopCloser(bytes.NewReader(buf)))

	ok, err := res.Buffer(100)
	assert.Nil(t, err)
	assert.True(t, ok)
	assert.True(t, res.IsBuffered())
	assert.Equal(t, int64(100), res.ContentLength)
}

func TestResponse_BufferTooLarge(t *testing.T) {
	buf := make([]byte, 100)
	res := New(200, io.NopCloser(bytes.NewReader(buf)))

	ok, err := res.Buffer(10)
	assert.Nil(t, err)
	assert.False(t, ok)
	assert.False(t, res.IsBuffered())

	recorder := httptest.NewRecorder()
	res.Send(recorder)

	assert.Equal(t, 100, recorder.Body.Len(), "whole body should be streamed")
}

func TestResponse_Send(t *testing.T) {
	buf := make([]byte, 1000)
	res := NewBuf(200, buf)
	res.Headers.Set("X-Header", "1")
	res.SetContentType("text/html")

	recorder := httptest.NewRecorder()
	res.Send(recorder)

	result := recorder.Result()
	assert.True(t, res.IsBuffered())
	assert.Equal(t, result.StatusCode, 200)
	assert.Equal(t, result.Header.Get("X-Header"), "1")
	assert.Equal(t, result.Header.Get("Content-Type"), "text/html")
	assert.Equal(t, result.Header.Get("Content-Length"), "1000")
}

func TestResponse_Send_and_Copy(t *testing.T) {
	buf := make([]byte, 1000)
	res := New(200, io.NopCloser(bytes.NewReader(buf)))
	res.Headers.Set("X-Header", "1")
	res.SetContentType("text/html")

	resCpy, err := res.Copy()
	assert.Nil(t, err)
	recorder := httptest.NewRecorder()
	res.Send(recorder)

	result := recorder.Result()
	assert.Equal(t, result.StatusCode, 200)
	assert.Equal(t, result.Header.Get("X-Header"), "1")
	assert.Equal(t, recorder.Body.Len(), 1000)

	body, err := resCpy.Body()
	assert.Nil(t, err, "Shouldn't return error when reading body")
	assert.Equal(t, len(body), 1000)
}

func TestResponse_SendContentRange(t *testing.T) {
	res := NewString(200, "0123456789")

	req, _ := http.NewRequest("GET", "/cat.jpg", nil)
	req.Header.Set("Range", "bytes=0-3")
	recorder := httptest.NewRecorder()
	res.SendContent(req, recorder)

	assert.Equal(t, 206, recorder.Code)
	assert.Equal(t, "0123", recorder.Body.String())
}

func TestResponse_SendContentNotRangeOrCondition(t *testing.T) {
	buf := make([]byte, 1000)
	res := New(200, io.NopCloser(bytes.NewReader(buf)))

	req, _ := http.NewRequest("GET", "/cat.jpg", nil)
	recorder := httptest.NewRecorder()
	res.SendContent(req, recorder)

	assert.Equal(t, 200, recorder.Code)
	assert.Equal(t, 1000, recorder.Body.Len())
}

func TestResponse_BodyTransformer(t *testing.T) {
	buf := make([]byte, 1000)
	res := New(200, io.NopCloser(bytes.NewReader(buf)))

	var writerCalled bool
	res.BodyTransformer(func(writer io.Writer) io.WriteCloser {
		writerCalled = true
		return gzip.NewWriter(writer)
	})

	recorder := httptest.NewRecorder()
	res.Send(recorder)

	assert.True(t, writerCalled)
	assert.Equal(t, "", recorder.Header().Get("Content-Length"))
}

func TestResponse_IsCacheable(t *testing.T) {
	res := NewString(200, "body")
	assert.False(t, res.IsCacheable())

	res.SetTTL(10 * time.Minute)
	assert.True(t, res.IsCacheable())
	assert.Equal(t, 600, res.GetTTL())

	res = NewString(404, "body")
	res.SetTTL(10 * time.Minute)
	assert.False(t, res.IsCacheable())
}

func TestResponse_CacheHit(t *testing.T) {
	res := NewString(200, "body")
	assert.False(t, res.IsFromCache())

	res.SetCacheHit()
	assert.True(t, res.IsFromCache())
}

func TestResponse_DecodeMsgpack(t *testing.T) {
	res := NewString(200, "image-bytes")
	res.Headers.Set("etag", "md5")
	res.SetTTL(time.Hour)
	buf, err := msgpack.Marshal(res)
	assert.Nil(t, err)

	var resMsg Response
	err = msgpack.Unmarshal(buf, &resMsg)
	assert.Nil(t, err)

	b, err := resMsg.Body()
	assert.Nil(t, err)

	assert.Equal(t, resMsg.StatusCode, 200)
	assert.Equal(t, resMsg.Headers.Get("etag"), "md5")
	assert.Equal(t, resMsg.GetTTL(), 3600)
	assert.Equal(t, string(b), "image-bytes")
}

func BenchmarkNewCopy(b *testing.B) {
	buf := make([]byte, 1024*1024*4)
	for i := 0; i < b.N; i++ {
		res := New(200, io.NopCloser(bytes.NewReader(buf)))
		res.Headers.Set("X-Header", "1")
		resCpy, _ := res.Copy()

		body, err := resCpy.Body()
		if err != nil {
			b.Fatalf("Errors %s", err)
		}

		if len(body) != len(buf) {
			b.Fatalf("Invalid body len %d != %d %d", len(body), len(buf), i)
		}
	}
}
