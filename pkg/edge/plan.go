package edge

import (
	"github.com/imgedge/imgedge/pkg/access"
	"github.com/imgedge/imgedge/pkg/origin"
	"github.com/imgedge/imgedge/pkg/policy"
	"github.com/imgedge/imgedge/pkg/route"
)

// ComputePlan describes transformation service
type ComputePlan struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	MemoryMB       int    `json:"memoryMB"`
	Concurrency    int    `json:"concurrency"`
}

// Plan is description of assembled distribution
type Plan struct {
	Distribution string               `json:"distribution"`
	Routes       []*route.Route       `json:"routes"`
	Policies     []policy.CachePolicy `json:"cachePolicies"`
	Compute      ComputePlan          `json:"compute"`
	Signing      *access.Scope        `json:"signing,omitempty"`
	// WriteGrants lists backends transformation service must be able to write to
	WriteGrants []origin.BackendInfo `json:"writeGrants"`
}

// Plan returns description of routes, backends, policies and signing scope
func (d *Distribution) Plan() Plan {
	p := Plan{
		Distribution: d.cfg.Distribution.Name,
		Routes:       d.table.Routes(),
		Policies:     d.policies.Policies(),
		Compute: ComputePlan{
			URL:            d.cfg.Compute.URL,
			TimeoutSeconds: d.cfg.Compute.Timeout,
			MemoryMB:       d.cfg.Compute.MemoryMB,
			Concurrency:    d.cfg.Compute.Concurrency,
		},
		WriteGrants: []origin.BackendInfo{},
	}

	if d.signer != nil {
		scope := d.signer.Scope()
		p.Signing = &scope
	}

	seen := map[string]bool{}
	for _, r := range p.Routes {
		for _, b := range r.Backends() {
			if b.RequiresWrite() && !seen[b.Name()] {
				seen[b.Name()] = true
				p.WriteGrants = append(p.WriteGrants, origin.Describe(b))
			}
		}
	}

	return p
}
