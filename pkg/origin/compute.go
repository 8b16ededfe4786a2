package origin

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/imgedge/imgedge/pkg/config"
	"github.com/imgedge/imgedge/pkg/monitoring"
	"github.com/imgedge/imgedge/pkg/response"
	"github.com/imgedge/imgedge/pkg/throttler"
)

const (
	// HeaderRequestID is header with id of request forwarded to transformation service
	HeaderRequestID = "X-Request-Id"
	// HeaderShieldRegion is header with locality hint forwarded to transformation service
	HeaderShieldRegion = "X-Edge-Origin-Shield"
)

// Signer signs requests sent to transformation service
type Signer interface {
	Sign(req *http.Request) error
}

// ComputeBackend invokes transformation service over HTTP
type ComputeBackend struct {
	name         string
	baseURL      *url.URL
	client       *http.Client
	signer       Signer
	throttler    throttler.Throttler
	shieldRegion string
	keyHeader    string
}

// NewComputeBackend create backend for transformation service
// signer can be nil, then requests are sent unsigned
func NewComputeBackend(name string, cfg config.Compute, shieldRegion string, keyHeader string, signer Signer) (*ComputeBackend, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid compute url %s", cfg.URL)
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	return &ComputeBackend{
		name:         name,
		baseURL:      u,
		client:       &http.Client{Timeout: timeout},
		signer:       signer,
		throttler:    throttler.New(cfg.Concurrency, timeout),
		shieldRegion: shieldRegion,
		keyHeader:    keyHeader,
	}, nil
}

// Name returns backend name
func (b *ComputeBackend) Name() string {
	return b.name
}

// Kind returns KindCompute
func (b *ComputeBackend) Kind() string {
	return KindCompute
}

// ShieldRegion returns locality hint
func (b *ComputeBackend) ShieldRegion() string {
	return b.shieldRegion
}

// RequiresWrite is always false, transformation service is not filled by anyone
func (b *ComputeBackend) RequiresWrite() bool {
	return false
}

// URL returns address of transformation service for canonical path
func (b *ComputeBackend) URL(canonical string) string {
	u := *b.baseURL
	p := canonical
	q := ""
	if i := strings.IndexByte(canonical, '?'); i != -1 {
		p, q = canonical[:i], canonical[i+1:]
	}

	escaped := strings.TrimSuffix(b.baseURL.EscapedPath(), "/") + p
	u.Path = escaped
	if unescaped, err := url.PathUnescape(escaped); err == nil {
		u.Path = unescaped
	}
	u.RawPath = escaped
	u.RawQuery = q
	return u.String()
}

// Fetch invokes transformation service with canonical path
func (b *ComputeBackend) Fetch(ctx context.Context, req *Request) *response.Response {
	t := monitoring.Report().Timer("backend_time;backend:" + b.name)
	defer t.Done()

	if !b.throttler.Take(ctx) {
		monitoring.Report().Inc("throttled_count")
		monitoring.Log().Warn("ComputeBackend/Fetch throttled", zap.String("backend", b.name), zap.String("path", req.Path))
		return response.NewError(503, errors.New("compute throttled"))
	}
	defer b.throttler.Release()

	httpReq, err := http.NewRequestWithContext(ctx, req.method(), b.URL(req.Path), nil)
	if err != nil {
		return response.NewError(500, errors.Wrap(err, "unable to create compute request"))
	}

	b.prepareHeaders(httpReq, req)
	if b.signer != nil {
		if err := b.signer.Sign(httpReq); err != nil {
			monitoring.Log().Error("ComputeBackend/Fetch sign error", zap.String("backend", b.name), zap.Error(err))
			return response.NewError(500, errors.Wrap(err, "unable to sign compute request"))
		}
	}

	httpRes, err := b.client.Do(httpReq)
	if err != nil {
		sc := errorStatus(ctx, err)
		monitoring.Log().Warn("ComputeBackend/Fetch error", zap.String("backend", b.name), zap.String("path", req.Path),
			zap.Int("sc", sc), zap.Error(err))
		return response.NewError(sc, errors.Wrap(err, "compute invocation failed"))
	}

	res := response.New(httpRes.StatusCode, httpRes.Body)
	res.Headers = httpRes.Header.Clone()
	res.Headers.Del("Content-Length")
	res.Headers.Del("Connection")
	res.Headers.Del("Transfer-Encoding")
	if httpRes.ContentLength >= 0 {
		res.ContentLength = httpRes.ContentLength
	}

	if req.method() == http.MethodHead {
		res.Close()
		res.ContentLength = 0
	}

	return res
}

func (b *ComputeBackend) prepareHeaders(httpReq *http.Request, req *Request) {
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}
	httpReq.Header.Set(HeaderRequestID, requestID)

	if b.shieldRegion != "" {
		httpReq.Header.Set(HeaderShieldRegion, b.shieldRegion)
	}

	if req.Header == nil {
		return
	}

	if accept := req.Header.Get("Accept"); accept != "" {
		httpReq.Header.Set("Accept", accept)
	}

	if b.keyHeader != "" {
		if v := req.Header.Get(b.keyHeader); v != "" {
			httpReq.Header.Set(b.keyHeader, v)
		}
	}
}

// errorStatus maps transport error to status code
// timeouts are 504, cancelled requests 503 and other errors 502
func errorStatus(ctx context.Context, err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return 504
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return 504
	}

	if ctx.Err() != nil {
		return 503
	}

	return 502
}
