package access

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aldor007/go-aws-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imgedge/imgedge/pkg/config"
	"github.com/imgedge/imgedge/pkg/response"
)

const sourceArn = "arn:aws:cloudfront::123456789012:distribution/EDGE1"

type nextHandler struct {
	called bool
}

func (n *nextHandler) ServeHTTP(_ http.ResponseWriter, _ *http.Request) {
	n.called = true
}

func signingConfig() *config.Signing {
	return &config.Signing{
		Name:            "oac-images",
		OriginType:      "lambda",
		Behavior:        "always",
		Protocol:        "sigv4",
		Region:          "eu-west-1",
		Service:         "lambda",
		AccessKey:       "acc",
		SecretAccessKey: "sec",
		SourceArn:       sourceArn,
	}
}

func newVerifier() *Verifier {
	return NewVerifier("eu-west-1", "lambda").AllowKey("acc", "sec").AllowSource(sourceArn)
}

func TestNewSigner_Nil(t *testing.T) {
	s := NewSigner(nil)
	assert.Nil(t, s)

	req, _ := http.NewRequest("GET", "http://compute/cat.jpg", nil)
	assert.Nil(t, s.Sign(req))
	assert.Equal(t, "", req.Header.Get("Authorization"))
}

func TestSigner_Sign(t *testing.T) {
	s := NewSigner(signingConfig())

	req, _ := http.NewRequest("GET", "http://compute/cat.jpg?format=webp", nil)
	require.Nil(t, s.Sign(req))

	assert.Contains(t, req.Header.Get("Authorization"), "Credential=acc/")
	assert.Equal(t, sourceArn, req.Header.Get(HeaderSourceArn))
	assert.Equal(t, ActionInvoke, s.Scope().Action)
	assert.Equal(t, "lambda", s.Scope().Service)
}

func TestSigner_SignNever(t *testing.T) {
	cfg := signingConfig()
	cfg.Behavior = "never"
	s := NewSigner(cfg)

	req, _ := http.NewRequest("GET", "http://compute/cat.jpg", nil)
	require.Nil(t, s.Sign(req))
	assert.Equal(t, "", req.Header.Get("Authorization"))
}

func TestSigner_SignOnlyInvoke(t *testing.T) {
	s := NewSigner(signingConfig())

	req, _ := http.NewRequest("PUT", "http://compute/cat.jpg", nil)
	assert.NotNil(t, s.Sign(req))
}

func TestVerifier_Signed(t *testing.T) {
	next := nextHandler{}
	fn := newVerifier().Handler(&next)

	req, _ := http.NewRequest("GET", "http://compute/cat.jpg", nil)
	require.Nil(t, NewSigner(signingConfig()).Sign(req))

	recorder := httptest.NewRecorder()
	fn.ServeHTTP(recorder, req)

	assert.True(t, next.called)
	assert.Equal(t, 200, recorder.Code)
}

func TestVerifier_Unsigned(t *testing.T) {
	next := nextHandler{}
	fn := newVerifier().Handler(&next)

	req, _ := http.NewRequest("GET", "http://compute/cat.jpg", nil)
	recorder := httptest.NewRecorder()
	fn.ServeHTTP(recorder, req)

	assert.False(t, next.called)
	assert.Equal(t, 403, recorder.Code)
}

func TestVerifier_UnknownKey(t *testing.T) {
	next := nextHandler{}
	fn := newVerifier().Handler(&next)

	cfg := signingConfig()
	cfg.AccessKey = "other"
	req, _ := http.NewRequest("GET", "http://compute/cat.jpg", nil)
	require.Nil(t, NewSigner(cfg).Sign(req))

	recorder := httptest.NewRecorder()
	fn.ServeHTTP(recorder, req)

	assert.False(t, next.called)
	assert.Equal(t, 401, recorder.Code)
}

func TestVerifier_WrongSecret(t *testing.T) {
	next := nextHandler{}
	fn := newVerifier().Handler(&next)

	cfg := signingConfig()
	cfg.SecretAccessKey = "other"
	req, _ := http.NewRequest("GET", "http://compute/cat.jpg", nil)
	require.Nil(t, NewSigner(cfg).Sign(req))

	recorder := httptest.NewRecorder()
	fn.ServeHTTP(recorder, req)

	assert.False(t, next.called)
	assert.Equal(t, 403, recorder.Code)
}

func TestVerifier_WrongScope(t *testing.T) {
	next := nextHandler{}
	fn := newVerifier().Handler(&next)

	cfg := signingConfig()
	cfg.SourceArn = "arn:aws:cloudfront::123456789012:distribution/OTHER"
	req, _ := http.NewRequest("GET", "http://compute/cat.jpg", nil)
	require.Nil(t, NewSigner(cfg).Sign(req))

	recorder := httptest.NewRecorder()
	fn.ServeHTTP(recorder, req)

	assert.False(t, next.called)
	assert.Equal(t, 403, recorder.Code)
}

func TestVerifier_TamperedPath(t *testing.T) {
	next := nextHandler{}
	fn := newVerifier().Handler(&next)

	req, _ := http.NewRequest("GET", "http://compute/cat.jpg", nil)
	require.Nil(t, NewSigner(signingConfig()).Sign(req))
	req.URL.Path = "/dog.jpg"

	recorder := httptest.NewRecorder()
	fn.ServeHTTP(recorder, req)

	assert.False(t, next.called)
	assert.Equal(t, 403, recorder.Code)
}

func TestVerifier_OnlyInvoke(t *testing.T) {
	next := nextHandler{}
	fn := newVerifier().Handler(&next)

	req, _ := http.NewRequest("PUT", "http://compute/cat.jpg", nil)
	awsauth.Sign4ForRegion(req, "eu-west-1", "lambda", []string{}, awsauth.Credentials{AccessKeyID: "acc", SecretAccessKey: "sec"})

	recorder := httptest.NewRecorder()
	fn.ServeHTTP(recorder, req)

	assert.False(t, next.called)
	assert.Equal(t, 403, recorder.Code)
}

func TestImageHeaderSet_Apply(t *testing.T) {
	h := ImageHeaderSet(true)

	req, _ := http.NewRequest("GET", "http://edge/cat.jpg", nil)
	req.Header.Set("Origin", "https://example.com")
	res := response.NewString(200, "img")
	res.Set("Vary", "Accept-Encoding")
	res.Set("Access-Control-Allow-Origin", "https://other.com")

	h.Apply(req, res)

	assert.Equal(t, "v1.0", res.Headers.Get("x-edge-image-optimization"))
	assert.Equal(t, "accept", res.Headers.Get("Vary"), "edge value should override origin value")
	assert.Equal(t, "*", res.Headers.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "", res.Headers.Get("Access-Control-Allow-Credentials"))
}

func TestImageHeaderSet_ApplyWithoutOrigin(t *testing.T) {
	h := ImageHeaderSet(true)

	req, _ := http.NewRequest("GET", "http://edge/cat.jpg", nil)
	res := response.NewString(200, "img")

	h.Apply(req, res)

	assert.Equal(t, "v1.0", res.Headers.Get("x-edge-image-optimization"))
	assert.Equal(t, "", res.Headers.Get("Access-Control-Allow-Origin"))
}

func TestImageHeaderSet_CORSDisabled(t *testing.T) {
	h := ImageHeaderSet(false)

	req, _ := http.NewRequest("GET", "http://edge/cat.jpg", nil)
	req.Header.Set("Origin", "https://example.com")
	res := response.NewString(200, "img")

	h.Apply(req, res)

	assert.Equal(t, "accept", res.Headers.Get("Vary"))
	assert.Equal(t, "", res.Headers.Get("Access-Control-Allow-Origin"))
	assert.False(t, h.IsPreflight(req))
}

func TestResponseHeaderSet_NoOverride(t *testing.T) {
	h := &ResponseHeaderSet{
		Custom: []CustomHeader{{Name: "x-custom", Value: "edge", Override: false}},
		CORS:   &CORS{AllowOrigins: []string{"https://example.com"}, AllowCredentials: true},
	}

	req, _ := http.NewRequest("GET", "http://edge/cat.jpg", nil)
	req.Header.Set("Origin", "https://example.com")
	res := response.NewString(200, "img")
	res.Set("x-custom", "origin")
	res.Set("Access-Control-Allow-Origin", "https://origin.com")

	h.Apply(req, res)

	assert.Equal(t, "origin", res.Headers.Get("x-custom"))
	assert.Equal(t, "https://origin.com", res.Headers.Get("Access-Control-Allow-Origin"))

	var nilSet *ResponseHeaderSet
	nilSet.Apply(req, res)
}

func TestImageHeaderSet_Preflight(t *testing.T) {
	h := ImageHeaderSet(true)

	req, _ := http.NewRequest("OPTIONS", "http://edge/cat.jpg", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")

	assert.True(t, h.IsPreflight(req))
	res := h.Preflight(req)

	assert.Equal(t, 204, res.StatusCode)
	assert.Equal(t, "*", res.Headers.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET", res.Headers.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "*", res.Headers.Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "600", res.Headers.Get("Access-Control-Max-Age"))
}

func TestPreflight_OriginNotAllowed(t *testing.T) {
	h := &ResponseHeaderSet{CORS: &CORS{AllowOrigins: []string{"https://example.com"}}}

	req, _ := http.NewRequest("OPTIONS", "http://edge/cat.jpg", nil)
	req.Header.Set("Origin", "https://evil.com")
	req.Header.Set("Access-Control-Request-Method", "GET")

	res := h.Preflight(req)
	assert.Equal(t, 403, res.StatusCode)
}
