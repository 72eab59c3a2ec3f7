package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wolfman30/clinic-ops-platform/pkg/logging"
)

func TestRequestLoggerRecordsStatusAndOrg(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter("info", &buf)

	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	req := httptest.NewRequest(http.MethodPost, "/appointments", nil)
	req.Header.Set("X-Org-Id", "org-7")
	req.Header.Set("X-Request-ID", "req-123")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{"request completed", `"status":409`, `"org_id":"org-7"`, `"request_id":"req-123"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in log output %q", want, out)
		}
	}
}
