package access

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/imgedge/imgedge/pkg/response"
)

// CORS contains cross origin allow rules
type CORS struct {
	AllowOrigins     []string      `json:"allowOrigins"`
	AllowMethods     []string      `json:"allowMethods"`
	AllowHeaders     []string      `json:"allowHeaders"`
	AllowCredentials bool          `json:"allowCredentials"`
	MaxAge           time.Duration `json:"maxAge"`
	OriginOverride   bool          `json:"originOverride"`
}

// CustomHeader is header added to every response
type CustomHeader struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Override bool   `json:"override"`
}

// ResponseHeaderSet contains headers attached to responses of route
type ResponseHeaderSet struct {
	Name   string         `json:"name"`
	CORS   *CORS          `json:"cors,omitempty"`
	Custom []CustomHeader `json:"custom"`
}

// ImageHeaderSet returns headers for responses of transformable images
// CORS allows all origins with GET only and without credentials
func ImageHeaderSet(corsEnabled bool) *ResponseHeaderSet {
	h := &ResponseHeaderSet{
		Name: "image-response-headers",
		Custom: []CustomHeader{
			{Name: "x-edge-image-optimization", Value: "v1.0", Override: true},
			{Name: "vary", Value: "accept", Override: true},
		},
	}

	if corsEnabled {
		h.CORS = &CORS{
			AllowOrigins:     []string{"*"},
			AllowMethods:     []string{http.MethodGet},
			AllowHeaders:     []string{"*"},
			AllowCredentials: false,
			MaxAge:           600 * time.Second,
			OriginOverride:   true,
		}
	}

	return h
}

// Apply sets header set on response
// CORS headers are added only to cross origin requests
func (h *ResponseHeaderSet) Apply(req *http.Request, res *response.Response) {
	if h == nil {
		return
	}

	for _, custom := range h.Custom {
		if custom.Override || res.Headers.Get(custom.Name) == "" {
			res.Set(custom.Name, custom.Value)
		}
	}

	if h.CORS == nil {
		return
	}

	origin := req.Header.Get("Origin")
	if origin == "" {
		return
	}

	h.CORS.apply(origin, res)
}

// IsPreflight check if request is CORS preflight handled by header set
func (h *ResponseHeaderSet) IsPreflight(req *http.Request) bool {
	return h != nil && h.CORS != nil && req.Method == http.MethodOptions &&
		req.Header.Get("Origin") != "" && req.Header.Get("Access-Control-Request-Method") != ""
}

// Preflight returns response for CORS preflight request
func (h *ResponseHeaderSet) Preflight(req *http.Request) *response.Response {
	res := response.NewNoContent(204)
	origin := req.Header.Get("Origin")
	if !h.CORS.originAllowed(origin) {
		res.StatusCode = 403
		return res
	}

	h.CORS.apply(origin, res)
	res.Set("Access-Control-Allow-Methods", strings.Join(h.CORS.AllowMethods, ", "))
	res.Set("Access-Control-Allow-Headers", strings.Join(h.CORS.AllowHeaders, ", "))
	if h.CORS.MaxAge > 0 {
		res.Set("Access-Control-Max-Age", strconv.Itoa(int(h.CORS.MaxAge/time.Second)))
	}

	return res
}

func (c *CORS) originAllowed(origin string) bool {
	for _, o := range c.AllowOrigins {
		if o == "*" || o == origin {
			return true
		}
	}

	return false
}

func (c *CORS) apply(origin string, res *response.Response) {
	if !c.originAllowed(origin) {
		return
	}

	if !c.OriginOverride && res.Headers.Get("Access-Control-Allow-Origin") != "" {
		return
	}

	allowOrigin := origin
	if len(c.AllowOrigins) == 1 && c.AllowOrigins[0] == "*" && !c.AllowCredentials {
		allowOrigin = "*"
	}

	res.Set("Access-Control-Allow-Origin", allowOrigin)
	if c.AllowCredentials {
		res.Set("Access-Control-Allow-Credentials", "true")
	} else {
		res.Headers.Del("Access-Control-Allow-Credentials")
	}
}
