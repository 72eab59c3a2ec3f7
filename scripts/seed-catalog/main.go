package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/wolfman30/clinic-ops-platform/internal/catalog"
	"github.com/wolfman30/clinic-ops-platform/internal/http/middleware"
)

// CatalogFile is the seed format. Sub-services reference their parent by name.
type CatalogFile struct {
	OrgID    string `json:"org_id"`
	Services []struct {
		Name        string `json:"name"`
		ServiceLine string `json:"service_line"`
		SubServices []struct {
			Name            string `json:"name"`
			DurationMinutes int    `json:"duration_minutes"`
			PriceCents      int64  `json:"price_cents"`
		} `json:"sub_services"`
	} `json:"services"`
	Professionals []catalog.CreateProfessionalRequest `json:"professionals"`
	Resources     []catalog.CreateResourceRequest     `json:"resources"`
}

type seeder struct {
	client  *http.Client
	baseURL string
	token   string
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/seed-catalog <catalog-file.json>")
		fmt.Println("Example: go run ./scripts/seed-catalog testdata/sample-clinic-catalog.json")
		os.Exit(1)
	}

	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Printf("error reading file: %v\n", err)
		os.Exit(1)
	}
	var file CatalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		fmt.Printf("error parsing JSON: %v\n", err)
		os.Exit(1)
	}
	if strings.TrimSpace(file.OrgID) == "" {
		fmt.Println("org_id is required in the catalog file")
		os.Exit(1)
	}

	token := strings.TrimSpace(os.Getenv("ADMIN_TOKEN"))
	if token == "" {
		// Mint a short-lived token scoped to this clinic when the signing secret is at hand.
		token, err = middleware.MintAdminToken(os.Getenv("ADMIN_JWT_SECRET"), "seed-catalog", file.OrgID, middleware.RoleAdmin, 15*time.Minute)
		if err != nil {
			fmt.Println("ADMIN_TOKEN or ADMIN_JWT_SECRET is required")
			os.Exit(1)
		}
	}

	s := &seeder{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(apiURL, "/") + "/admin/clinics/" + file.OrgID,
		token:   token,
	}
	ctx := context.Background()

	fmt.Printf("Seeding catalog for %s via %s\n", file.OrgID, apiURL)

	for _, svc := range file.Services {
		var created catalog.Service
		if err := s.post(ctx, "/services", catalog.CreateServiceRequest{Name: svc.Name, ServiceLine: svc.ServiceLine}, &created); err != nil {
			fmt.Printf("service %q: %v\n", svc.Name, err)
			os.Exit(1)
		}
		fmt.Printf("  service %s (%s)\n", created.Name, created.ID)
		for _, sub := range svc.SubServices {
			req := catalog.CreateSubServiceRequest{
				ServiceID:       created.ID,
				Name:            sub.Name,
				DurationMinutes: sub.DurationMinutes,
				PriceCents:      sub.PriceCents,
			}
			if err := s.post(ctx, "/sub-services", req, nil); err != nil {
				fmt.Printf("sub-service %q: %v\n", sub.Name, err)
				os.Exit(1)
			}
			fmt.Printf("    sub-service %s (%d min)\n", sub.Name, sub.DurationMinutes)
		}
	}
	for _, pro := range file.Professionals {
		if err := s.post(ctx, "/professionals", pro, nil); err != nil {
			fmt.Printf("professional %q: %v\n", pro.Name, err)
			os.Exit(1)
		}
		fmt.Printf("  professional %s\n", pro.Name)
	}
	for _, res := range file.Resources {
		if err := s.post(ctx, "/resources", res, nil); err != nil {
			fmt.Printf("resource %q: %v\n", res.Name, err)
			os.Exit(1)
		}
		fmt.Printf("  resource %s (%s)\n", res.Name, res.Kind)
	}

	fmt.Println("catalog seeded")
}

func (s *seeder) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}
