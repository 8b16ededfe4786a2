// Package route resolves request path to the route serving it.
package route

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/imgedge/imgedge/pkg/access"
	"github.com/imgedge/imgedge/pkg/origin"
)

// Route maps request path patterns to backends and policies
type Route struct {
	Name          string                    `json:"name"`
	Patterns      []string                  `json:"patterns"`
	Origin        *origin.Group             `json:"origin"`
	Policy        string                    `json:"cachePolicy"`
	Headers       *access.ResponseHeaderSet `json:"responseHeaders,omitempty"`
	Transformable bool                      `json:"transformable"`

	matchers []*regexp.Regexp
}

// Backends returns ordered list of route backends, primary first
func (r *Route) Backends() []origin.Backend {
	return r.Origin.Backends()
}

// Match check if path matches any of route patterns
func (r *Route) Match(p string) bool {
	for _, m := range r.matchers {
		if m.MatchString(p) {
			return true
		}
	}

	return false
}

func (r *Route) compile() error {
	r.matchers = make([]*regexp.Regexp, 0, len(r.Patterns))
	for _, pattern := range r.Patterns {
		m, err := CompilePattern(pattern)
		if err != nil {
			return errors.Wrapf(err, "route %s has invalid pattern %s", r.Name, pattern)
		}
		r.matchers = append(r.matchers, m)
	}

	return nil
}

// CompilePattern converts path pattern into regexp
// '*' matches any sequence of characters including '/', '?' matches exactly one character
// Matching is case sensitive
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, errors.New("empty pattern")
	}

	var b strings.Builder
	b.WriteString("^")
	if !strings.HasPrefix(pattern, "/") && !strings.HasPrefix(pattern, "*") {
		b.WriteString("/")
	}

	for _, c := range pattern {
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")

	return regexp.Compile(b.String())
}
