package handlers

import (
	"net/http"
	"net/url"
	"strings"
)

// originChecker allows requests with no Origin (non-browser clients), any
// origin when "*" is configured, or an exact scheme://host match.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	allowAll := len(allowed) == 0
	for _, o := range allowed {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
			continue
		}
		if n, ok := normalizeOrigin(o); ok {
			set[n] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		n, ok := normalizeOrigin(origin)
		if !ok {
			return false
		}
		_, ok = set[n]
		return ok
	}
}

func normalizeOrigin(origin string) (string, bool) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), true
}
