package route

import (
	"github.com/pkg/errors"
)

// Table is ordered list of routes evaluated first-match with default route at the end
type Table struct {
	routes []*Route
	def    *Route
}

// NewTable create route table
// default route is mandatory and it matches every path
func NewTable(def *Route, routes ...*Route) (*Table, error) {
	if def == nil {
		return nil, errors.New("route table requires default route")
	}

	if def.Origin == nil {
		return nil, errors.Errorf("default route %s has no origin", def.Name)
	}

	names := map[string]bool{def.Name: true}
	for _, r := range routes {
		if r.Origin == nil {
			return nil, errors.Errorf("route %s has no origin", r.Name)
		}

		if len(r.Patterns) == 0 {
			return nil, errors.Errorf("route %s has no patterns", r.Name)
		}

		if names[r.Name] {
			return nil, errors.Errorf("duplicated route name %s", r.Name)
		}
		names[r.Name] = true

		if err := r.compile(); err != nil {
			return nil, err
		}
	}

	return &Table{routes: routes, def: def}, nil
}

// Match returns first route which pattern matches path
// path must not contain query
func (t *Table) Match(p string) *Route {
	for _, r := range t.routes {
		if r.Match(p) {
			return r
		}
	}

	return t.def
}

// Default returns default route
func (t *Table) Default() *Route {
	return t.def
}

// Routes returns all routes in evaluation order, default route is last
func (t *Table) Routes() []*Route {
	all := make([]*Route, 0, len(t.routes)+1)
	all = append(all, t.routes...)
	return append(all, t.def)
}
