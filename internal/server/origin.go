package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/samber/lo"
)

// OriginChecker decides which browser origins may open a WebSocket. With no
// allowed origins configured only same-host requests are accepted; "*" allows
// any origin.
type OriginChecker struct {
	allowedOrigins []string
}

func NewOriginChecker(allowedOrigins []string) *OriginChecker {
	normalized := lo.FilterMap(allowedOrigins, func(origin string, _ int) (string, bool) {
		origin = strings.TrimRight(strings.ToLower(strings.TrimSpace(origin)), "/")
		return origin, origin != ""
	})

	return &OriginChecker{
		allowedOrigins: lo.Uniq(normalized),
	}
}

func (c *OriginChecker) Check(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// not a browser
		return true
	}

	if lo.Contains(c.allowedOrigins, "*") {
		return true
	}

	if len(c.allowedOrigins) > 0 {
		return lo.Contains(c.allowedOrigins, strings.TrimRight(strings.ToLower(origin), "/"))
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	return strings.EqualFold(originURL.Host, r.Host)
}
