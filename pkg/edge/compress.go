package edge

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	brEnc "github.com/google/brotli/go/cbrotli"

	"github.com/imgedge/imgedge/pkg/helpers"
	"github.com/imgedge/imgedge/pkg/response"
)

const (
	compressMinSize = 1000
	brotliQuality   = 4
)

var compressibleTypes = []string{
	"text/",
	"application/json",
	"application/javascript",
	"application/xml",
	"image/svg+xml",
}

// compress encodes body with brotli or gzip when client accepts it
// images other than svg are never compressed
func compress(req *http.Request, res *response.Response) {
	if res.StatusCode != 200 || res.Headers.Get("Content-Encoding") != "" || helpers.IsRangeOrCondition(req) {
		return
	}

	if res.ContentLength < compressMinSize && res.ContentLength != -1 {
		return
	}

	if !compressible(res.Headers.Get(response.HeaderContentType)) {
		return
	}

	if helpers.AcceptsEncoding(req, "br") {
		res.Headers.Set("Content-Encoding", "br")
		res.Headers.Add("Vary", "Accept-Encoding")
		res.BodyTransformer(func(w io.Writer) io.WriteCloser {
			return brEnc.NewWriter(w, brEnc.WriterOptions{Quality: brotliQuality})
		})
		return
	}

	if helpers.AcceptsEncoding(req, "gzip") {
		res.Headers.Set("Content-Encoding", "gzip")
		res.Headers.Add("Vary", "Accept-Encoding")
		res.BodyTransformer(func(w io.Writer) io.WriteCloser {
			return gzip.NewWriter(w)
		})
	}
}

func compressible(contentType string) bool {
	contentType = strings.ToLower(contentType)
	for _, t := range compressibleTypes {
		if strings.HasPrefix(contentType, t) {
			return true
		}
	}

	return false
}
