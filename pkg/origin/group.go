package origin

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/imgedge/imgedge/pkg/lock"
	"github.com/imgedge/imgedge/pkg/monitoring"
	"github.com/imgedge/imgedge/pkg/response"
)

// Group is ordered pair of backends, fallback is invoked only for qualifying status codes of primary
type Group struct {
	name       string
	primary    Backend
	fallback   Backend
	fallbackOn map[int]bool

	collapse  lock.Lock
	maxBuffer int64
}

// NewGroup create origin group
// fallback can be nil, then primary response is always returned
func NewGroup(name string, primary Backend, fallback Backend, fallbackOn []int) *Group {
	g := &Group{name: name, primary: primary, fallback: fallback, fallbackOn: make(map[int]bool, len(fallbackOn))}
	for _, sc := range fallbackOn {
		g.fallbackOn[sc] = true
	}

	return g
}

// WithCollapse installs coordinator collapsing concurrent invocations of terminal backend for the same path
// responses larger than maxBuffer are not shared
func (g *Group) WithCollapse(l lock.Lock, maxBuffer int64) *Group {
	g.collapse = l
	g.maxBuffer = maxBuffer
	return g
}

// Name returns group name
func (g *Group) Name() string {
	return g.name
}

// Primary returns primary backend
func (g *Group) Primary() Backend {
	return g.primary
}

// Fallback returns fallback backend, nil when group has none
func (g *Group) Fallback() Backend {
	return g.fallback
}

// Backends returns backends in invocation order
func (g *Group) Backends() []Backend {
	if g.fallback == nil {
		return []Backend{g.primary}
	}

	return []Backend{g.primary, g.fallback}
}

// FallbackOn returns sorted list of status codes triggering fallback
func (g *Group) FallbackOn() []int {
	if g.fallback == nil {
		return []int{}
	}

	codes := make([]int, 0, len(g.fallbackOn))
	for sc := range g.fallbackOn {
		codes = append(codes, sc)
	}
	sort.Ints(codes)
	return codes
}

// ShouldFallback check if primary status code triggers fallback
func (g *Group) ShouldFallback(statusCode int) bool {
	return g.fallback != nil && g.fallbackOn[statusCode]
}

// Fetch returns response of primary or, when primary failed with qualifying code, response of fallback
// Second value is backend which produced response
func (g *Group) Fetch(ctx context.Context, req *Request) (*response.Response, Backend) {
	if g.fallback == nil {
		return g.fetchTerminal(ctx, req, g.primary), g.primary
	}

	res := g.primary.Fetch(ctx, req)
	if !g.ShouldFallback(res.StatusCode) {
		return res, g.primary
	}

	monitoring.Report().Inc("fallback_count;route:" + g.name + ",sc:" + strconv.Itoa(res.StatusCode))
	monitoring.Log().Info("Group/Fetch fallback", zap.String("group", g.name), zap.String("path", req.Path),
		zap.String("primary", g.primary.Name()), zap.Int("sc", res.StatusCode))
	res.Close()

	return g.fetchTerminal(ctx, req, g.fallback), g.fallback
}

// fetchTerminal invokes last backend of group, collapsing concurrent calls when coordinator is set
func (g *Group) fetchTerminal(ctx context.Context, req *Request, b Backend) *response.Response {
	if g.collapse == nil {
		return b.Fetch(ctx, req)
	}

	key := g.name + ":" + req.method() + ":" + req.Path
	result, acquired := g.collapse.Lock(ctx, key)
	if result.Error != nil {
		return b.Fetch(ctx, req)
	}

	if acquired {
		return g.share(ctx, key, b.Fetch(ctx, req))
	}

	monitoring.Report().Inc("collapsed_count")
	select {
	case res, ok := <-result.ResponseChan:
		if ok && res != nil {
			return res
		}

		return g.refetch(ctx, req)
	case <-ctx.Done():
		result.Cancel <- true
		return response.NewError(504, errors.Wrap(ctx.Err(), "waiting for collapsed request"))
	}
}

// share hands response of leader to waiting requests
func (g *Group) share(ctx context.Context, key string, res *response.Response) *response.Response {
	if res.StatusCode != 200 || res.HasError() {
		g.collapse.Release(ctx, key)
		return res
	}

	buffered, err := res.Buffer(g.maxBuffer)
	if err != nil {
		g.collapse.Release(ctx, key)
		res.Close()
		return response.NewError(502, err)
	}

	if !buffered {
		g.collapse.Release(ctx, key)
		return res
	}

	shared, err := response.NewSharedResponse(res)
	if err != nil {
		g.collapse.Release(ctx, key)
		return res
	}
	defer shared.Release()

	g.collapse.NotifyAndRelease(ctx, key, shared)
	return shared.Acquire()
}

// refetch is used by waiter when leader had nothing to share
// primary is read again since transformation service fills it
func (g *Group) refetch(ctx context.Context, req *Request) *response.Response {
	if g.fallback == nil {
		return g.primary.Fetch(ctx, req)
	}

	res := g.primary.Fetch(ctx, req)
	if !g.ShouldFallback(res.StatusCode) {
		return res
	}

	res.Close()
	return g.fallback.Fetch(ctx, req)
}

type groupJSON struct {
	Name       string       `json:"name"`
	Primary    BackendInfo  `json:"primary"`
	Fallback   *BackendInfo `json:"fallback,omitempty"`
	FallbackOn []int        `json:"fallbackOn"`
	Collapse   bool         `json:"collapse"`
}

// MarshalJSON returns description of group
func (g *Group) MarshalJSON() ([]byte, error) {
	out := groupJSON{
		Name:       g.name,
		Primary:    Describe(g.primary),
		FallbackOn: g.FallbackOn(),
		Collapse:   g.collapse != nil,
	}

	if g.fallback != nil {
		info := Describe(g.fallback)
		out.Fallback = &info
	}

	return json.Marshal(out)
}
