package tenancy

import (
	"context"
	"errors"
	"testing"
)

func TestWithOrgIDAndOrgIDFromContext(t *testing.T) {
	ctx := WithOrgID(context.Background(), " org-123 ")

	got, ok := OrgIDFromContext(ctx)
	if !ok {
		t.Fatalf("expected org id to be present")
	}
	if got != "org-123" {
		t.Fatalf("expected trimmed org-123, got %q", got)
	}
}

func TestOrgIDFromContext_EmptyOrMissing(t *testing.T) {
	ctx := context.Background()
	if _, ok := OrgIDFromContext(ctx); ok {
		t.Fatalf("expected missing org id to return false")
	}

	ctx = context.WithValue(ctx, orgKey, 42)
	if _, ok := OrgIDFromContext(ctx); ok {
		t.Fatalf("expected non-string org id to return false")
	}

	ctx = WithOrgID(context.Background(), "   ")
	if _, ok := OrgIDFromContext(ctx); ok {
		t.Fatalf("expected blank org id to return false")
	}
}

func TestRequireOrgID(t *testing.T) {
	if _, err := RequireOrgID(context.Background()); !errors.Is(err, ErrMissingOrg) {
		t.Fatalf("expected ErrMissingOrg, got %v", err)
	}
	orgID, err := RequireOrgID(WithOrgID(context.Background(), "org-9"))
	if err != nil || orgID != "org-9" {
		t.Fatalf("unexpected result %q / %v", orgID, err)
	}
}
