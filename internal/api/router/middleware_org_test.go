package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wolfman30/clinic-ops-platform/internal/tenancy"
)

func TestRequireOrgIDPassesThrough(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := tenancy.OrgIDFromContext(r.Context())
		if !ok || orgID != "org-abc" {
			t.Fatalf("expected org id propagated, got %s / %v", orgID, ok)
		}
		w.WriteHeader(http.StatusTeapot)
	})

	handler := requireOrgID(next)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(orgHeader, "org-abc")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected downstream status, got %d", rr.Code)
	}
}

func TestRequireOrgIDMissingHeader(t *testing.T) {
	handler := requireOrgID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing org, got %d", rr.Code)
	}
}

func TestRequireOrgIDRejectsBlankHeaderWithJSON(t *testing.T) {
	handler := requireOrgID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodPost, "/appointments", nil)
	req.Header.Set(orgHeader, "   ")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json content type, got %q", ct)
	}
	if !strings.Contains(rr.Body.String(), `"code":"missing_org"`) {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestRequireOrgIDRejectsMalformed(t *testing.T) {
	handler := requireOrgID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	for _, id := range []string{"org 1", "org/../x", strings.Repeat("a", maxOrgIDLen+1), "org;drop"} {
		req := httptest.NewRequest(http.MethodGet, "/patients", nil)
		req.Header.Set(orgHeader, id)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), `"code":"invalid_org"`) {
			t.Errorf("%q: expected invalid_org, got %d %s", id, rr.Code, rr.Body.String())
		}
	}
}

func TestValidOrgID(t *testing.T) {
	for _, id := range []string{"org-1", "harbor_wellness", "clinic.7", "9f1c2a"} {
		if !validOrgID(id) {
			t.Errorf("expected %q to be valid", id)
		}
	}
}
