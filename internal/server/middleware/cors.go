package middleware

import (
	"net/http"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization, X-Request-ID"
)

// CORS allows cross-origin requests from origins matching any pattern.
//
// A pattern is "*", an exact origin, or a doublestar glob such as
// "https://*.example.com". Preflight requests are answered here.
func CORS(patterns []string) func(http.Handler) http.Handler {
	allowAll := false
	var globs []string
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
		case p == "*":
			allowAll = true
		default:
			globs = append(globs, strings.ToLower(strings.TrimSuffix(p, "/")))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				if allowAll {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else if originAllowed(globs, origin) {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if w.Header().Get("Access-Control-Allow-Origin") != "" {
					w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
					w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
					w.Header().Set("Access-Control-Max-Age", "600")
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(globs []string, origin string) bool {
	origin = strings.ToLower(origin)
	for _, g := range globs {
		if g == origin {
			return true
		}
		if ok, err := doublestar.Match(g, origin); err == nil && ok {
			return true
		}
	}
	return false
}
