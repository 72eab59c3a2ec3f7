// Package tenancy carries the clinic (org) identity through request contexts.
package tenancy

import (
	"context"
	"errors"
	"strings"
)

type ctxKey string

const orgKey ctxKey = "clinicops.org_id"

// ErrMissingOrg is returned when a tenant-scoped operation runs without an org.
var ErrMissingOrg = errors.New("tenancy: org id required")

// WithOrgID stores the org id in context.
func WithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgKey, strings.TrimSpace(orgID))
}

// OrgIDFromContext extracts the org id if present.
func OrgIDFromContext(ctx context.Context) (string, bool) {
	orgID, ok := ctx.Value(orgKey).(string)
	return orgID, ok && orgID != ""
}

// RequireOrgID is OrgIDFromContext for callers that want an error.
func RequireOrgID(ctx context.Context) (string, error) {
	orgID, ok := OrgIDFromContext(ctx)
	if !ok {
		return "", ErrMissingOrg
	}
	return orgID, nil
}
