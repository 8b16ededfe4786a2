package helpers

import (
	"net"
	"net/http"
	"strconv"
	"strings"
)

// IsRangeOrCondition check if request is range or condition
func IsRangeOrCondition(req *http.Request) bool {
	if req.Header.Get("Range") != "" || req.Header.Get("If-Range") != "" {
		return true
	}

	if req.Header.Get("If-Match") != "" || req.Header.Get("If-None-Match") != "" {
		return true
	}

	if req.Header.Get("If-Unmodified-Since") != "" || req.Header.Get("If-Modified-Since") != "" {
		return true
	}

	return false
}

// AcceptsEncoding check if client declared given content encoding in Accept-Encoding header
func AcceptsEncoding(req *http.Request, encoding string) bool {
	for _, part := range strings.Split(req.Header.Get("Accept-Encoding"), ",") {
		params := strings.Split(part, ";")
		if !strings.EqualFold(strings.TrimSpace(params[0]), encoding) {
			continue
		}

		for _, param := range params[1:] {
			param = strings.TrimSpace(param)
			if strings.HasPrefix(param, "q=") {
				q, err := strconv.ParseFloat(param[2:], 64)
				return err == nil && q > 0
			}
		}

		return true
	}

	return false
}

// IsHTTPS check if request was received using TLS, directly or behind proxy
func IsHTTPS(req *http.Request) bool {
	if req.TLS != nil {
		return true
	}

	return strings.EqualFold(req.Header.Get("X-Forwarded-Proto"), "https")
}

// ClientIP returns ip of client without port
func ClientIP(req *http.Request) string {
	ip, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}

	return ip
}
