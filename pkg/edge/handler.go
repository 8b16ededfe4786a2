package edge

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/imgedge/imgedge/pkg/cache"
	"github.com/imgedge/imgedge/pkg/helpers"
	"github.com/imgedge/imgedge/pkg/monitoring"
	"github.com/imgedge/imgedge/pkg/origin"
	"github.com/imgedge/imgedge/pkg/response"
	"github.com/imgedge/imgedge/pkg/rewrite"
	"github.com/imgedge/imgedge/pkg/route"
)

var (
	// ErrMethodNotAllowed is returned for methods other than GET and HEAD
	ErrMethodNotAllowed = errors.New("method not allowed")
	// ErrRateLimited is returned when client exceeded its request rate
	ErrRateLimited = errors.New("rate limited")
)

// ServeHTTP handles viewer request
func (d *Distribution) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if d.cfg.Server.RedirectToHTTPS && !helpers.IsHTTPS(req) {
		http.Redirect(w, req, "https://"+req.Host+req.URL.RequestURI(), http.StatusMovedPermanently)
		return
	}

	if !d.limiter.Allow(helpers.ClientIP(req)) {
		monitoring.Log().Warn("Distribution/ServeHTTP rate limited", zap.String("client", helpers.ClientIP(req)))
		response.NewError(429, ErrRateLimited).Send(w)
		return
	}

	if d.requestTimeout > 0 {
		ctx, cancel := context.WithTimeout(req.Context(), d.requestTimeout)
		defer cancel()
		req = req.WithContext(ctx)
	}

	res := d.Process(req)
	if err := res.SendContent(req, w); err != nil {
		monitoring.Log().Warn("Distribution/ServeHTTP send error", zap.String("path", req.URL.Path), zap.Error(err))
	}
}

// Process resolves route of request and returns response of edge cache or origin
func (d *Distribution) Process(req *http.Request) *response.Response {
	canonical := d.Rewrite(req.URL.RequestURI())
	r := d.Route(canonical)

	t := monitoring.Report().Timer("request_time;route:" + r.Name)
	defer t.Done()

	res := d.process(req, r, canonical)
	monitoring.Report().Inc("request_count;route:" + r.Name + ",sc:" + strconv.Itoa(res.StatusCode))
	if res.HasError() {
		monitoring.Log().Warn("Distribution/Process error", zap.String("route", r.Name), zap.String("path", canonical),
			zap.Int("sc", res.StatusCode), zap.Error(res.Error()))
		res.SetDebug(d.cfg.Server.Debug)
	}

	return res
}

func (d *Distribution) process(req *http.Request, r *route.Route, canonical string) *response.Response {
	if r.Headers.IsPreflight(req) {
		return r.Headers.Preflight(req)
	}

	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		res := response.NewError(405, ErrMethodNotAllowed)
		res.Set("Allow", "GET, HEAD")
		return res
	}

	if r.Transformable {
		canonical = rewrite.ResolveFormat(canonical, req.Header.Get("Accept"))
	}

	ctx := req.Context()
	p := d.Policy(r)
	key := p.CacheKey(canonical, req.Header)

	res, err := d.cache.Get(ctx, key)
	switch {
	case err == nil:
		monitoring.Log().Info("Distribution/process cache hit", zap.String("route", r.Name), zap.String("path", canonical))
	case err != cache.ErrNotFound:
		monitoring.Log().Warn("Distribution/process cache error", zap.String("route", r.Name), zap.String("key", key), zap.Error(err))
		fallthrough
	default:
		res = d.fetch(req, r, canonical, key)
	}

	r.Headers.Apply(req, res)
	if p.Compress {
		compress(req, res)
	}

	return res
}

// fetch asks origin of route and stores cacheable response in edge cache
func (d *Distribution) fetch(req *http.Request, r *route.Route, canonical string, key string) *response.Response {
	ctx := req.Context()
	res, servedBy := r.Origin.Fetch(ctx, &origin.Request{
		Method:    req.Method,
		Path:      canonical,
		Header:    req.Header,
		RequestID: middleware.GetReqID(ctx),
	})

	monitoring.Log().Info("Distribution/fetch", zap.String("route", r.Name), zap.String("path", canonical),
		zap.String("backend", servedBy.Name()), zap.Int("sc", res.StatusCode))
	res.Set(response.HeaderCacheStatus, "miss")

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return res
	}

	if r.Transformable && res.Headers.Get("Cache-Control") == "" && d.cfg.Distribution.TransformedImageCacheControl != "" {
		res.Set("Cache-Control", d.cfg.Distribution.TransformedImageCacheControl)
	}

	res.SetTTL(d.Policy(r).TTL(res.Headers))
	if req.Method != http.MethodGet || !res.IsCacheable() {
		return res
	}

	buffered, err := res.Buffer(d.cfg.Distribution.MaxImageSize)
	if err != nil {
		monitoring.Log().Warn("Distribution/fetch buffer error", zap.String("path", canonical), zap.Error(err))
		res.Close()
		return response.NewError(502, err)
	}

	if !buffered {
		return res
	}

	if err := d.cache.Set(ctx, key, res); err != nil {
		monitoring.Log().Warn("Distribution/fetch cache set error", zap.String("key", key), zap.Error(err))
	}

	return res
}
