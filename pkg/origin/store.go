package origin

import (
	"context"
	"net/http"

	"github.com/imgedge/imgedge/pkg/response"
	"github.com/imgedge/imgedge/pkg/rewrite"
	"github.com/imgedge/imgedge/pkg/storage"
)

// StoreBackend serves objects from blob store
type StoreBackend struct {
	store         *storage.Store
	transformed   bool
	shieldRegion  string
	requiresWrite bool
}

// NewOriginalBackend create backend for store with original assets
// object key is canonical path without operations
func NewOriginalBackend(store *storage.Store, shieldRegion string) *StoreBackend {
	return &StoreBackend{store: store, shieldRegion: shieldRegion}
}

// NewTransformedBackend create backend for store with transformed assets
// object key contains operations, store is filled by transformation service
func NewTransformedBackend(store *storage.Store, shieldRegion string) *StoreBackend {
	return &StoreBackend{store: store, transformed: true, shieldRegion: shieldRegion, requiresWrite: true}
}

// Name returns store name
func (b *StoreBackend) Name() string {
	return b.store.Name()
}

// Kind returns KindStore
func (b *StoreBackend) Kind() string {
	return KindStore
}

// ShieldRegion returns locality hint
func (b *StoreBackend) ShieldRegion() string {
	return b.shieldRegion
}

// RequiresWrite is true for transformed store
func (b *StoreBackend) RequiresWrite() bool {
	return b.requiresWrite
}

// Key returns object key for canonical path
func (b *StoreBackend) Key(canonical string) string {
	if b.transformed {
		return rewrite.StoreKey(canonical)
	}

	return rewrite.ObjectPath(canonical)
}

// Fetch reads object from store
func (b *StoreBackend) Fetch(ctx context.Context, req *Request) *response.Response {
	key := b.Key(req.Path)
	if req.method() == http.MethodHead {
		return b.store.Head(ctx, key)
	}

	return b.store.Get(ctx, key)
}
