// Package policy assigns edge cache TTL and cache key rules to routes.
package policy

import (
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pquerna/cachecontrol/cacheobject"
	"github.com/spaolacci/murmur3"
)

const (
	// ImagePolicyName is name of policy for transformable images
	ImagePolicyName = "image-cache-policy"
	// CachingOptimizedName is name of policy for pass-through content
	CachingOptimizedName = "caching-optimized"
)

// CachePolicy describe how long responses are kept in edge cache and what makes cache key
type CachePolicy struct {
	Name            string        `json:"name"`
	MinTTL          time.Duration `json:"minTTL"`
	DefaultTTL      time.Duration `json:"defaultTTL"`
	MaxTTL          time.Duration `json:"maxTTL"`
	HeaderAllowList []string      `json:"headerAllowList"`
	Compress        bool          `json:"compress"`
}

// ImagePolicy returns policy for transformable images
// cache key varies only by header carrying original url hint
func ImagePolicy(keyHeader string) CachePolicy {
	return CachePolicy{
		Name:            ImagePolicyName,
		MinTTL:          0,
		DefaultTTL:      24 * time.Hour,
		MaxTTL:          365 * 24 * time.Hour,
		HeaderAllowList: []string{keyHeader},
		Compress:        false,
	}
}

// CachingOptimized returns policy for static originals without header based key variance
func CachingOptimized() CachePolicy {
	return CachePolicy{
		Name:       CachingOptimizedName,
		MinTTL:     time.Second,
		DefaultTTL: 24 * time.Hour,
		MaxTTL:     365 * 24 * time.Hour,
		Compress:   true,
	}
}

// Validate check TTL ordering
func (p CachePolicy) Validate() error {
	if p.Name == "" {
		return errors.New("cache policy without name")
	}

	if p.MinTTL < 0 || p.DefaultTTL < 0 || p.MaxTTL < 0 {
		return errors.Errorf("cache policy %s has negative TTL", p.Name)
	}

	if p.MinTTL > p.DefaultTTL || p.DefaultTTL > p.MaxTTL {
		return errors.Errorf("cache policy %s has invalid TTL order min %s default %s max %s", p.Name, p.MinTTL, p.DefaultTTL, p.MaxTTL)
	}

	return nil
}

// TTL returns edge cache time to live for response
// TTL from origin Cache-Control is clamped to policy bounds, default TTL is used when origin sends none
func (p CachePolicy) TTL(headers http.Header) time.Duration {
	value := headers.Get("Cache-Control")
	if value == "" {
		return p.DefaultTTL
	}

	dir, err := cacheobject.ParseResponseCacheControl(value)
	if err != nil {
		return p.DefaultTTL
	}

	if dir.NoStore || dir.NoCachePresent || dir.PrivatePresent {
		return p.MinTTL
	}

	var ttl time.Duration
	switch {
	case dir.SMaxAge >= 0:
		ttl = time.Duration(dir.SMaxAge) * time.Second
	case dir.MaxAge >= 0:
		ttl = time.Duration(dir.MaxAge) * time.Second
	default:
		return p.DefaultTTL
	}

	if ttl < p.MinTTL {
		return p.MinTTL
	}

	if ttl > p.MaxTTL {
		return p.MaxTTL
	}

	return ttl
}

// CacheKey returns key identifying cached response
// only headers from allow list vary the key
func (p CachePolicy) CacheKey(canonical string, headers http.Header) string {
	if len(p.HeaderAllowList) == 0 {
		return canonical
	}

	hash := murmur3.New128()
	hash.Write([]byte(canonical))
	for _, name := range p.HeaderAllowList {
		hash.Write([]byte{0})
		hash.Write([]byte(strings.ToLower(name)))
		hash.Write([]byte{'='})
		hash.Write([]byte(strings.Join(headers.Values(name), ",")))
	}

	return canonical + "#" + hex.EncodeToString(hash.Sum(nil))
}

// Engine holds policies assigned to routes
type Engine struct {
	policies map[string]CachePolicy
}

// NewEngine validates policies and create Engine
func NewEngine(policies ...CachePolicy) (*Engine, error) {
	e := &Engine{policies: make(map[string]CachePolicy, len(policies))}
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, err
		}

		if _, ok := e.policies[p.Name]; ok {
			return nil, errors.Errorf("duplicated cache policy %s", p.Name)
		}

		e.policies[p.Name] = p
	}

	return e, nil
}

// Get returns policy by name
func (e *Engine) Get(name string) (CachePolicy, bool) {
	p, ok := e.policies[name]
	return p, ok
}

// Policies returns all policies sorted by name
func (e *Engine) Policies() []CachePolicy {
	result := make([]CachePolicy, 0, len(e.policies))
	for _, p := range e.policies {
		result = append(result, p)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result
}
