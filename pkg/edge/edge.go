// Package edge assembles the distribution from configuration and serves requests through it.
package edge

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/imgedge/imgedge/pkg/access"
	"github.com/imgedge/imgedge/pkg/cache"
	"github.com/imgedge/imgedge/pkg/config"
	"github.com/imgedge/imgedge/pkg/lock"
	"github.com/imgedge/imgedge/pkg/monitoring"
	"github.com/imgedge/imgedge/pkg/origin"
	"github.com/imgedge/imgedge/pkg/policy"
	"github.com/imgedge/imgedge/pkg/rewrite"
	"github.com/imgedge/imgedge/pkg/route"
	"github.com/imgedge/imgedge/pkg/storage"
)

const (
	// ImageRouteName is name of route for transformable images
	ImageRouteName = "images"
	// DefaultRouteName is name of route for all other paths
	DefaultRouteName = "default"
)

// Distribution is edge in front of original store, transformed store and transformation service
// It is built once by New and it is read-only afterwards
type Distribution struct {
	cfg            *config.Config
	rewriter       *rewrite.Rewriter
	table          *route.Table
	policies       *policy.Engine
	signer         *access.Signer
	cache          cache.ResponseCache
	limiter        *clientLimiter
	requestTimeout time.Duration
}

// New creates distribution for configuration
func New(cfg *config.Config) (*Distribution, error) {
	if cfg == nil {
		return nil, errors.New("missing configuration")
	}

	dist := cfg.Distribution
	d := &Distribution{
		cfg:            cfg,
		rewriter:       rewrite.Default(dist.MaxImageWidth),
		signer:         access.NewSigner(cfg.Compute.Signing),
		cache:          cache.Create(cfg.Server.Cache),
		limiter:        newClientLimiter(cfg.Server.RateLimit),
		requestTimeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
	}

	var signer origin.Signer
	if d.signer != nil {
		signer = d.signer
	}

	compute, err := origin.NewComputeBackend("compute", cfg.Compute, dist.OriginShieldRegion, dist.CacheKeyHeader, signer)
	if err != nil {
		return nil, err
	}

	if dist.CustomFallback() {
		monitoring.Log().Warn("Distribution/New fallback status codes differ from default", zap.Ints("codes", dist.FallbackStatusCodes),
			zap.Ints("default", config.DefaultFallbackStatusCodes))
	}

	var images *origin.Group
	if dist.StoreTransformedImages {
		expiration := time.Duration(dist.TransformedImageExpirationDays) * 24 * time.Hour
		transformed := storage.New("transformed", cfg.Stores.Transformed, expiration)
		images = origin.NewGroup(ImageRouteName, origin.NewTransformedBackend(transformed, dist.OriginShieldRegion), compute, dist.FallbackStatusCodes)
	} else {
		images = origin.NewGroup(ImageRouteName, compute, nil, dist.FallbackStatusCodes)
	}

	if collapse := lock.Create(cfg.Server.Collapse); collapse != nil {
		images.WithCollapse(collapse, dist.MaxImageSize)
	}

	original := storage.New("original", cfg.Stores.Original, 0)
	defaultGroup := origin.NewGroup(DefaultRouteName, origin.NewOriginalBackend(original, dist.OriginShieldRegion), nil, nil)

	d.policies, err = policy.NewEngine(policy.ImagePolicy(dist.CacheKeyHeader), policy.CachingOptimized())
	if err != nil {
		return nil, err
	}

	imageRoute := &route.Route{
		Name:          ImageRouteName,
		Patterns:      dist.ImagePatterns,
		Origin:        images,
		Policy:        policy.ImagePolicyName,
		Headers:       access.ImageHeaderSet(dist.CORSEnabled),
		Transformable: true,
	}
	defaultRoute := &route.Route{
		Name:   DefaultRouteName,
		Origin: defaultGroup,
		Policy: policy.CachingOptimizedName,
	}

	d.table, err = route.NewTable(defaultRoute, imageRoute)
	if err != nil {
		return nil, err
	}

	for _, r := range d.table.Routes() {
		if _, ok := d.policies.Get(r.Policy); !ok {
			return nil, errors.Errorf("route %s refers to unknown cache policy %s", r.Name, r.Policy)
		}
	}

	monitoring.Log().Info("Distribution created", zap.String("name", dist.Name), zap.Bool("storeTransformed", dist.StoreTransformedImages),
		zap.Strings("imagePatterns", dist.ImagePatterns), zap.String("collapse", cfg.Server.Collapse.Type), zap.String("cache", cfg.Server.Cache.Type))
	return d, nil
}

// Route returns route serving canonical path
func (d *Distribution) Route(canonical string) *route.Route {
	p, _ := rewrite.Split(canonical)
	return d.table.Match(p)
}

// Policy returns cache policy of route
func (d *Distribution) Policy(r *route.Route) policy.CachePolicy {
	p, _ := d.policies.Get(r.Policy)
	return p
}

// Rewrite returns canonical path for request uri
func (d *Distribution) Rewrite(uri string) string {
	return d.rewriter.Rewrite(uri)
}
