package catalog

import (
	"context"
	"errors"
	"testing"
)

func TestInMemoryGetSubServiceSkipsInactive(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	svc, err := repo.CreateService(ctx, &CreateServiceRequest{OrgID: "org-1", Name: "IV Therapy", ServiceLine: "drips"})
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	sub, err := repo.CreateSubService(ctx, &CreateSubServiceRequest{OrgID: "org-1", ServiceID: svc.ID, Name: "Hydration", DurationMinutes: 30})
	if err != nil {
		t.Fatalf("create sub-service: %v", err)
	}
	if _, err := repo.GetSubService(ctx, "org-1", sub.ID); err != nil {
		t.Fatalf("expected active sub-service, got %v", err)
	}

	repo.services[svc.ID].Active = false
	if _, err := repo.GetSubService(ctx, "org-1", sub.ID); !errors.Is(err, ErrSubServiceNotFound) {
		t.Fatalf("expected retired service to hide sub-service, got %v", err)
	}

	repo.services[svc.ID].Active = true
	repo.subServices[sub.ID].Active = false
	if _, err := repo.GetSubService(ctx, "org-1", sub.ID); !errors.Is(err, ErrSubServiceNotFound) {
		t.Fatalf("expected ErrSubServiceNotFound, got %v", err)
	}
}
