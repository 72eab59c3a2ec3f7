package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const adminClaimsKey contextKey = "adminClaims"

// Admin roles. A missing role is treated as RoleAdmin.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// AdminClaims are carried by admin tokens. An empty OrgID grants access to
// every clinic; otherwise the token is scoped to that clinic.
type AdminClaims struct {
	OrgID string `json:"org_id,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// CanWrite reports whether the token may change clinic data.
func (c AdminClaims) CanWrite() bool {
	return c.Role == "" || c.Role == RoleAdmin
}

// MintAdminToken signs an HS256 admin token valid for ttl.
func MintAdminToken(secret, subject, orgID, role string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("middleware: admin secret required")
	}
	now := time.Now()
	claims := AdminClaims{
		OrgID: orgID,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// AdminJWT enforces an HMAC-signed, expiring JWT for admin endpoints.
func AdminJWT(secret string) func(http.Handler) http.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	)
	keyFunc := func(*jwt.Token) (any, error) { return []byte(secret), nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeAuthError(w, http.StatusUnauthorized, "admin auth disabled")
				return
			}
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			var claims AdminClaims
			if _, err := parser.ParseWithClaims(strings.TrimSpace(raw), &claims, keyFunc); err != nil {
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), adminClaimsKey, claims)))
		})
	}
}

// AdminClaimsFromContext returns admin JWT claims if present.
func AdminClaimsFromContext(ctx context.Context) (AdminClaims, bool) {
	claims, ok := ctx.Value(adminClaimsKey).(AdminClaims)
	return claims, ok
}

// RequireClinicScope rejects clinic-scoped tokens used against another
// clinic's {orgID} route, and viewer tokens on anything but reads.
// Must run after AdminJWT.
func RequireClinicScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := AdminClaimsFromContext(r.Context())
		if !ok {
			writeAuthError(w, http.StatusUnauthorized, "missing admin claims")
			return
		}
		if claims.OrgID != "" && claims.OrgID != chi.URLParam(r, "orgID") {
			writeAuthError(w, http.StatusForbidden, "token not valid for this clinic")
			return
		}
		if !claims.CanWrite() && r.Method != http.MethodGet && r.Method != http.MethodHead {
			writeAuthError(w, http.StatusForbidden, "token is read-only")
			return
		}
		next.ServeHTTP(w, r)
	})
}
