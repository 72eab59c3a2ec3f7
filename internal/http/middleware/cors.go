package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	corsAllowedHeaders = "Authorization, Content-Type, X-Org-Id, X-Request-ID"
	corsAllowedMethods = "GET, POST, PUT, OPTIONS"
)

// originPolicy matches Origin headers against the configured list. Entries are
// exact origins, "*" for any origin, or "https://*.clinic.example" for every
// subdomain of a clinic's own domain (front-desk tablets per location).
type originPolicy struct {
	any      bool
	exact    map[string]bool
	suffixes []wildcardOrigin
}

type wildcardOrigin struct {
	scheme string
	suffix string // ".clinic.example"
}

func newOriginPolicy(origins []string) originPolicy {
	p := originPolicy{exact: map[string]bool{}}
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch {
		case origin == "":
		case origin == "*":
			p.any = true
		case strings.Contains(origin, "://*."):
			scheme, host, _ := strings.Cut(origin, "://*")
			p.suffixes = append(p.suffixes, wildcardOrigin{scheme: scheme, suffix: strings.ToLower(host)})
		default:
			p.exact[origin] = true
		}
	}
	return p
}

func (p originPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.any || p.exact[origin] {
		return true
	}
	if len(p.suffixes) == 0 {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, w := range p.suffixes {
		if u.Scheme == w.scheme && strings.HasSuffix(host, w.suffix) && len(host) > len(w.suffix) {
			return true
		}
	}
	return false
}

// CORS lets the front-desk calendar call the API from its own origin.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := newOriginPolicy(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			allowed := policy.allows(origin)
			if allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
				h.Set("Access-Control-Allow-Methods", corsAllowedMethods)
				h.Set("Access-Control-Expose-Headers", "X-Request-ID")
				h.Set("Access-Control-Max-Age", "600")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if !allowed {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
