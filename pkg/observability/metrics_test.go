package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewMetrics(t *testing.T) {
	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	if m.HTTPRequests == nil || m.HTTPDuration == nil {
		t.Fatal("instruments not created")
	}
}

func TestHTTPMiddleware(t *testing.T) {
	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	handler := HTTPMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orgs", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
}
