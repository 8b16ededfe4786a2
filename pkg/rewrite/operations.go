package rewrite

import (
	"net/url"
	"sort"
	"strings"
)

// Operation is single image transformation requested in query
type Operation struct {
	Name  string
	Value string
}

// Operations is list of image operations
type Operations []Operation

// Query returns operations encoded as query sorted by name
func (o Operations) Query() string {
	if len(o) == 0 {
		return ""
	}

	sorted := make(Operations, len(o))
	copy(sorted, o)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	parts := make([]string, 0, len(sorted))
	for _, op := range sorted {
		parts = append(parts, url.QueryEscape(op.Name)+"="+url.QueryEscape(op.Value))
	}

	return strings.Join(parts, "&")
}

// Get returns value of operation
func (o Operations) Get(name string) (string, bool) {
	for _, op := range o {
		if op.Name == name {
			return op.Value, true
		}
	}

	return "", false
}

// Split divides canonical path into path and operations
func Split(canonical string) (string, Operations) {
	p, rawQuery, found := strings.Cut(canonical, "?")
	if !found || rawQuery == "" {
		return p, nil
	}

	var ops Operations
	for _, pair := range strings.Split(rawQuery, "&") {
		name, value, _ := strings.Cut(pair, "=")
		name, errName := url.QueryUnescape(name)
		value, errValue := url.QueryUnescape(value)
		if errName != nil || errValue != nil || name == "" {
			continue
		}
		ops = append(ops, Operation{Name: name, Value: value})
	}

	return p, ops
}

// ObjectPath returns unescaped path of canonical path, it is key of original object in blob store
func ObjectPath(canonical string) string {
	p, _, _ := strings.Cut(canonical, "?")
	if unescaped, err := url.PathUnescape(p); err == nil {
		return unescaped
	}

	return p
}

// StoreKey returns key of transformed object in blob store
// operations are encoded as last path segment, e.g. /cat.jpg/format=webp,width=100
func StoreKey(canonical string) string {
	_, ops := Split(canonical)
	p := ObjectPath(canonical)
	if len(ops) == 0 {
		return p
	}

	return p + "/" + strings.ReplaceAll(ops.Query(), "&", ",")
}

// ResolveFormat replaces format=auto with best format accepted by client
// avif is preferred over webp, jpeg is used when client accepts none of them
func ResolveFormat(canonical string, accept string) string {
	p, ops := Split(canonical)
	format, ok := ops.Get("format")
	if !ok || format != "auto" {
		return canonical
	}

	resolved := "jpeg"
	accept = strings.ToLower(accept)
	switch {
	case strings.Contains(accept, "image/avif"):
		resolved = "avif"
	case strings.Contains(accept, "image/webp"):
		resolved = "webp"
	}

	for i := range ops {
		if ops[i].Name == "format" {
			ops[i].Value = resolved
		}
	}

	return join(p, ops.Query())
}
