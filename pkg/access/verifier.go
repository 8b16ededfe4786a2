package access

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/aldor007/go-aws-auth"
	"go.uber.org/zap"

	"github.com/imgedge/imgedge/pkg/monitoring"
	"github.com/imgedge/imgedge/pkg/response"
)

// authHeaderRegexpv4 regular expression for AWS Auth v4 header mode
var authHeaderRegexpv4 = regexp.MustCompile("^(:?[A-Za-z0-9-]+) Credential=(:?.+),\\s*SignedHeaders=(:?[a-zA-Z0-9;-]+),\\s*Signature=(:?[a-zA-Z0-9]+)$")

// Verifier is middleware guarding compute endpoint
// It accepts only requests signed by known key and scoped to allowed source
type Verifier struct {
	region     string
	service    string
	keys       map[string]string
	sourceArns map[string]bool
}

// NewVerifier create verifier for region and service
func NewVerifier(region, service string) *Verifier {
	return &Verifier{region: region, service: service, keys: make(map[string]string), sourceArns: make(map[string]bool)}
}

// AllowKey register credential which can invoke compute
func (v *Verifier) AllowKey(accessKey, secretAccessKey string) *Verifier {
	v.keys[accessKey] = secretAccessKey
	return v
}

// AllowSource register distribution which can invoke compute
func (v *Verifier) AllowSource(sourceArn string) *Verifier {
	v.sourceArns[sourceArn] = true
	return v
}

func reject(w http.ResponseWriter, req *http.Request, sc int, reason string) {
	monitoring.Log().Warn("Verifier reject", zap.String("req.path", req.URL.Path), zap.String("req.method", req.Method), zap.Int("sc", sc), zap.String("reason", reason))
	response.NewNoContent(sc).Send(w)
}

// Handler check signature of request by signing its copy and comparing result
func (v *Verifier) Handler(next http.Handler) http.Handler {
	fn := func(resWriter http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet && req.Method != http.MethodHead {
			reject(resWriter, req, 403, "action not allowed")
			return
		}

		auth := req.Header.Get("Authorization")
		matches := authHeaderRegexpv4.FindStringSubmatch(auth)
		if len(matches) != 5 {
			reject(resWriter, req, 403, "missing signature")
			return
		}

		credField := strings.Split(matches[2], "/")
		accessKey := credField[0]
		signedHeaders := strings.Split(matches[3], ";")

		secret, ok := v.keys[accessKey]
		if !ok {
			reject(resWriter, req, 401, "unknown access key")
			return
		}

		if len(v.sourceArns) != 0 && !v.sourceArns[req.Header.Get(HeaderSourceArn)] {
			reject(resWriter, req, 403, "source not allowed")
			return
		}

		if !signedHeader(signedHeaders, HeaderSourceArn) && len(v.sourceArns) != 0 {
			reject(resWriter, req, 403, "source is not signed")
			return
		}

		validationReq, err := http.NewRequest(req.Method, req.RequestURI, nil)
		if err != nil {
			monitoring.Log().Error("Verifier unable to create validation req", zap.Error(err))
			reject(resWriter, req, 401, "invalid request")
			return
		}

		for h, values := range req.Header {
			if strings.HasPrefix(strings.ToLower(h), "x-amz") {
				validationReq.Header.Set(h, values[0])
			}

			switch h {
			case "Content-Type", "Content-Md5", "Date":
				validationReq.Header.Set(h, values[0])
			}
		}

		for _, h := range signedHeaders {
			if strings.EqualFold(h, "host") {
				continue
			}
			validationReq.Header.Set(h, req.Header.Get(h))
		}

		validationReq.URL = req.URL
		validationReq.Host = req.Host

		awsauth.Sign4ForRegion(validationReq, v.region, v.service, signedHeaders, awsauth.Credentials{AccessKeyID: accessKey, SecretAccessKey: secret})

		if auth != validationReq.Header.Get("Authorization") {
			reject(resWriter, req, 403, "signature mismatch")
			return
		}

		next.ServeHTTP(resWriter, req)
	}

	return http.HandlerFunc(fn)
}

func signedHeader(signedHeaders []string, name string) bool {
	for _, h := range signedHeaders {
		if strings.EqualFold(h, name) {
			return true
		}
	}

	return false
}
