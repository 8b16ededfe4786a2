// Package origin contains backends answering edge requests and the primary/fallback group composing them.
package origin

import (
	"context"
	"net/http"

	"github.com/imgedge/imgedge/pkg/response"
)

const (
	// KindStore is kind of blob store backend
	KindStore = "store"
	// KindCompute is kind of transformation service backend
	KindCompute = "compute"
)

// Request is backend request built from canonical path
type Request struct {
	Method    string      // GET or HEAD
	Path      string      // canonical path with canonical query
	Header    http.Header // inbound request headers
	RequestID string
}

// Backend is addressable origin capable of answering request
// Errors are never returned, they are converted to response with status code
type Backend interface {
	Name() string
	Kind() string
	// Fetch returns response of backend, caller must close it
	Fetch(ctx context.Context, req *Request) *response.Response
	// ShieldRegion returns locality hint, empty when not set
	ShieldRegion() string
	// RequiresWrite is true when backend is filled lazily by the transformation service
	RequiresWrite() bool
}

// BackendInfo is description of backend
type BackendInfo struct {
	Name          string `json:"name"`
	Kind          string `json:"kind"`
	ShieldRegion  string `json:"shieldRegion,omitempty"`
	RequiresWrite bool   `json:"requiresWrite"`
}

// Describe returns description of backend
func Describe(b Backend) BackendInfo {
	return BackendInfo{
		Name:          b.Name(),
		Kind:          b.Kind(),
		ShieldRegion:  b.ShieldRegion(),
		RequiresWrite: b.RequiresWrite(),
	}
}

func (r *Request) method() string {
	if r.Method == http.MethodHead {
		return http.MethodHead
	}

	return http.MethodGet
}
