package origin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/h2non/gock.v1"

	"github.com/imgedge/imgedge/pkg/access"
	"github.com/imgedge/imgedge/pkg/config"
)

const sourceArn = "arn:aws:cloudfront::123456789012:distribution/EDGE1"

func signingConfig(secret string) *config.Signing {
	return &config.Signing{
		Name:            "oac-images",
		OriginType:      "lambda",
		Behavior:        "always",
		Protocol:        "sigv4",
		Region:          "eu-west-1",
		Service:         "lambda",
		AccessKey:       "acc",
		SecretAccessKey: secret,
		SourceArn:       sourceArn,
	}
}

func newComputeBackend(t *testing.T, url string, signer Signer) *ComputeBackend {
	cfg := config.Compute{URL: url, Timeout: 1, Concurrency: 10}
	b, err := NewComputeBackend("compute", cfg, "eu-west-1", "x-meta-original-url", signer)
	require.Nil(t, err)
	return b
}

func TestComputeBackend_Fetch(t *testing.T) {
	var received *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r
		w.Header().Set("Content-Type", "image/webp")
		w.Header().Set("Cache-Control", "max-age=600")
		w.Write([]byte("webp"))
	}))
	defer srv.Close()

	b := newComputeBackend(t, srv.URL+"/", nil)
	header := make(http.Header)
	header.Set("Accept", "image/webp")
	header.Set("x-meta-original-url", "https://a.com/cat.jpg")
	header.Set("Cookie", "secret")

	res := b.Fetch(context.Background(), &Request{Method: "GET", Path: "/img/cat.jpg?format=webp&width=100", Header: header, RequestID: "req-1"})

	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, "image/webp", res.Headers.Get("Content-Type"))
	assert.Equal(t, int64(4), res.ContentLength)
	body, err := res.Body()
	assert.Nil(t, err)
	assert.Equal(t, "webp", string(body))

	require.NotNil(t, received)
	assert.Equal(t, "/img/cat.jpg", received.URL.Path)
	assert.Equal(t, "format=webp&width=100", received.URL.RawQuery)
	assert.Equal(t, "image/webp", received.Header.Get("Accept"))
	assert.Equal(t, "https://a.com/cat.jpg", received.Header.Get("x-meta-original-url"))
	assert.Equal(t, "req-1", received.Header.Get(HeaderRequestID))
	assert.Equal(t, "eu-west-1", received.Header.Get(HeaderShieldRegion))
	assert.Equal(t, "", received.Header.Get("Cookie"), "only allowed headers are forwarded")
}

func TestComputeBackend_URL(t *testing.T) {
	b := newComputeBackend(t, "https://compute.example.com/prod/", nil)

	assert.Equal(t, "https://compute.example.com/prod/cat.jpg", b.URL("/cat.jpg"))
	assert.Equal(t, "https://compute.example.com/prod/cat.jpg?format=webp", b.URL("/cat.jpg?format=webp"))
	assert.Equal(t, "https://compute.example.com/prod/my%20cat.jpg?width=100", b.URL("/my%20cat.jpg?width=100"))
	assert.Equal(t, "https://compute.example.com/prod/zdj%C4%99cie.png", b.URL("/zdj%C4%99cie.png"))
	assert.Equal(t, KindCompute, b.Kind())
	assert.False(t, b.RequiresWrite())
	assert.Equal(t, "eu-west-1", b.ShieldRegion())
}

func TestComputeBackend_RequestIDGenerated(t *testing.T) {
	var requestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID = r.Header.Get(HeaderRequestID)
	}))
	defer srv.Close()

	b := newComputeBackend(t, srv.URL, nil)
	res := b.Fetch(context.Background(), &Request{Path: "/cat.jpg"})
	res.Close()

	assert.Len(t, requestID, 36)
}

func TestComputeBackend_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(1500 * time.Millisecond)
	}))
	defer srv.Close()

	b := newComputeBackend(t, srv.URL, nil)
	res := b.Fetch(context.Background(), &Request{Path: "/cat.jpg"})

	assert.Equal(t, 504, res.StatusCode)
	assert.True(t, res.HasError())
}

func TestComputeBackend_Unreachable(t *testing.T) {
	b := newComputeBackend(t, "http://127.0.0.1:1", nil)
	res := b.Fetch(context.Background(), &Request{Path: "/cat.jpg"})

	assert.Equal(t, 502, res.StatusCode)
}

func TestComputeBackend_Head(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.Header().Set("Content-Type", "image/jpeg")
	}))
	defer srv.Close()

	b := newComputeBackend(t, srv.URL, nil)
	res := b.Fetch(context.Background(), &Request{Method: "HEAD", Path: "/cat.jpg"})

	assert.Equal(t, "HEAD", method)
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, int64(0), res.ContentLength)
}

func TestComputeBackend_Signed(t *testing.T) {
	verifier := access.NewVerifier("eu-west-1", "lambda").AllowKey("acc", "sec").AllowSource(sourceArn)
	srv := httptest.NewServer(verifier.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("img"))
	})))
	defer srv.Close()

	signed := newComputeBackend(t, srv.URL, access.NewSigner(signingConfig("sec")))
	res := signed.Fetch(context.Background(), &Request{Path: "/cat.jpg?format=webp"})
	assert.Equal(t, 200, res.StatusCode)
	res.Close()

	unsigned := newComputeBackend(t, srv.URL, nil)
	res = unsigned.Fetch(context.Background(), &Request{Path: "/cat.jpg"})
	assert.Equal(t, 403, res.StatusCode, "compute should refuse unsigned invocation")
	res.Close()

	wrong := newComputeBackend(t, srv.URL, access.NewSigner(signingConfig("other")))
	res = wrong.Fetch(context.Background(), &Request{Path: "/cat.jpg"})
	assert.Equal(t, 403, res.StatusCode, "compute should refuse invocation with wrong signature")
	res.Close()
}

func TestComputeBackend_InvalidURL(t *testing.T) {
	_, err := NewComputeBackend("compute", config.Compute{URL: "://bad"}, "", "", nil)
	assert.NotNil(t, err)
}

func TestComputeBackend_ErrorStatusPassthrough(t *testing.T) {
	defer gock.Off()

	gock.New("https://compute.example.com").
		Get("/prod/cat.jpg").
		MatchParam("width", "100").
		MatchHeader(HeaderShieldRegion, "eu-west-1").
		Reply(503).
		SetHeader("Content-Type", "text/plain").
		BodyString("busy")

	b := newComputeBackend(t, "https://compute.example.com/prod/", nil)
	res := b.Fetch(context.Background(), &Request{Path: "/cat.jpg?width=100"})

	assert.Equal(t, 503, res.StatusCode)
	assert.Equal(t, "text/plain", res.Headers.Get("Content-Type"))
	body, err := res.Body()
	assert.Nil(t, err)
	assert.Equal(t, "busy", string(body))
	assert.True(t, gock.IsDone())
}
