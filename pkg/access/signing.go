package access

import (
	"net/http"

	"github.com/aldor007/go-aws-auth"
	"github.com/pkg/errors"

	"github.com/imgedge/imgedge/pkg/config"
)

// HeaderSourceArn carries identity of distribution which invoke compute
const HeaderSourceArn = "X-Amz-Source-Arn"

// ActionInvoke is the only action granted by signing scope
const ActionInvoke = "invoke"

// Scope describe signed identity used on edge to compute hop
type Scope struct {
	Name       string `json:"name"`
	OriginType string `json:"originType"`
	Behavior   string `json:"behavior"`
	Protocol   string `json:"protocol"`
	Region     string `json:"region"`
	Service    string `json:"service"`
	SourceArn  string `json:"sourceArn"`
	Action     string `json:"action"`
}

// Signer sign requests forwarded to compute with AWS v4 signature
type Signer struct {
	scope       Scope
	credentials awsauth.Credentials
}

// NewSigner create signer from configuration
// it returns nil when signing is not configured
func NewSigner(cfg *config.Signing) *Signer {
	if cfg == nil {
		return nil
	}

	return &Signer{
		scope: Scope{
			Name:       cfg.Name,
			OriginType: cfg.OriginType,
			Behavior:   cfg.Behavior,
			Protocol:   cfg.Protocol,
			Region:     cfg.Region,
			Service:    cfg.Service,
			SourceArn:  cfg.SourceArn,
			Action:     ActionInvoke,
		},
		credentials: awsauth.Credentials{AccessKeyID: cfg.AccessKey, SecretAccessKey: cfg.SecretAccessKey},
	}
}

// Scope returns signing scope
func (s *Signer) Scope() Scope {
	return s.scope
}

// Sign adds source identity and signature to request
func (s *Signer) Sign(req *http.Request) error {
	if s == nil || s.scope.Behavior == "never" {
		return nil
	}

	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return errors.Errorf("signing scope %s allows only %s with GET or HEAD, got %s", s.scope.Name, ActionInvoke, req.Method)
	}

	if s.scope.SourceArn != "" {
		req.Header.Set(HeaderSourceArn, s.scope.SourceArn)
	}

	awsauth.Sign4ForRegion(req, s.scope.Region, s.scope.Service, []string{}, s.credentials)
	if req.Header.Get("Authorization") == "" {
		return errors.New("unable to sign request")
	}

	return nil
}
