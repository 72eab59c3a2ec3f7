package router

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/wolfman30/clinic-ops-platform/internal/tenancy"
)

const (
	orgHeader   = "X-Org-Id"
	maxOrgIDLen = 64
)

func writeOrgError(w http.ResponseWriter, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}

// validOrgID accepts ids made of letters, digits, '-', '_' and '.'.
func validOrgID(id string) bool {
	if len(id) > maxOrgIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

// requireOrgID scopes every tenant request to the clinic named in X-Org-Id.
func requireOrgID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := strings.TrimSpace(r.Header.Get(orgHeader))
		switch {
		case orgID == "":
			writeOrgError(w, "missing X-Org-Id", "missing_org")
		case !validOrgID(orgID):
			writeOrgError(w, "malformed X-Org-Id", "invalid_org")
		default:
			next.ServeHTTP(w, r.WithContext(tenancy.WithOrgID(r.Context(), orgID)))
		}
	})
}
