// Package rewrite normalizes request paths into canonical cache keys.
//
// A canonical path has a cleaned, absolute path and an optional query built only
// from known image operations, validated and sorted by name. Rewriting a canonical
// path returns it unchanged. Paths which can't be parsed are passed through.
package rewrite

import (
	"net/url"
	"path"
	"strconv"
	"strings"
)

// Rule maps request path to canonical path
type Rule func(p string) string

// Rewriter applies ordered list of rules to request path
type Rewriter struct {
	rules []Rule
}

// New create Rewriter from rules
func New(rules ...Rule) *Rewriter {
	return &Rewriter{rules: rules}
}

// Default returns rewriter which cleans path and canonicalizes image operations
func Default(maxWidth int) *Rewriter {
	return New(CleanPath, CanonicalOperations(maxWidth))
}

// Rewrite returns canonical form of p
func (r *Rewriter) Rewrite(p string) string {
	for _, rule := range r.rules {
		p = rule(p)
	}

	return p
}

// CleanPath removes duplicated slashes and dot segments from path
func CleanPath(p string) string {
	u, err := url.ParseRequestURI(p)
	if err != nil || u.IsAbs() {
		return p
	}

	cleaned := path.Clean("/" + u.Path)
	return join((&url.URL{Path: cleaned}).EscapedPath(), u.RawQuery)
}

var formats = map[string]string{
	"auto": "auto",
	"jpeg": "jpeg",
	"jpg":  "jpeg",
	"png":  "png",
	"webp": "webp",
	"avif": "avif",
	"gif":  "gif",
}

// CanonicalOperations keeps only valid image operations in query and orders them by name
func CanonicalOperations(maxWidth int) Rule {
	dimension := func(v string) (string, bool) {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || (maxWidth > 0 && n > maxWidth) {
			return "", false
		}
		return strconv.Itoa(n), true
	}

	validators := map[string]func(string) (string, bool){
		"format": func(v string) (string, bool) {
			f, ok := formats[strings.ToLower(v)]
			return f, ok
		},
		"width":  dimension,
		"height": dimension,
		"quality": func(v string) (string, bool) {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 100 {
				return "", false
			}
			return strconv.Itoa(n), true
		},
	}

	return func(p string) string {
		u, err := url.ParseRequestURI(p)
		if err != nil || u.IsAbs() {
			return p
		}

		if u.RawQuery == "" {
			return p
		}

		query, err := url.ParseQuery(u.RawQuery)
		if err != nil {
			return p
		}

		ops := make(Operations, 0, len(validators))
		for name, validate := range validators {
			values, ok := query[name]
			if !ok || len(values) == 0 {
				continue
			}

			if v, ok := validate(values[0]); ok {
				ops = append(ops, Operation{Name: name, Value: v})
			}
		}

		return join(u.EscapedPath(), ops.Query())
	}
}

func join(p, rawQuery string) string {
	if rawQuery == "" {
		return p
	}

	return p + "?" + rawQuery
}
