package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func serve(h http.Handler, method, path string) {
	req := httptest.NewRequest(method, path, http.NoBody)
	h.ServeHTTP(httptest.NewRecorder(), req)
}

func TestMetricsMiddleware_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/profiles/{uid}/quota", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	serve(r, "GET", "/profiles/alice/quota")
	serve(r, "GET", "/profiles/bob/quota")

	val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/profiles/{uid}/quota", "200"))
	if val < 2 {
		t.Errorf("expected both uids under one label, got %f", val)
	}
	if testutil.CollectAndCount(httpRequestDuration) == 0 {
		t.Error("expected http_request_duration_seconds to have observations")
	}
}

func TestMetricsMiddleware_SubrouterIndex(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Route("/profiles/{uid}", func(r chi.Router) {
		r.Put("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})
	})

	serve(r, "PUT", "/profiles/alice")

	val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("PUT", "/profiles/{uid}", "201"))
	if val < 1 {
		t.Errorf("expected requests_total for /profiles/{uid} >= 1, got %f", val)
	}
}

func TestMetricsMiddleware_StatusCodes(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Post("/holds", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("case") {
		case "over":
			w.WriteHeader(http.StatusPaymentRequired)
		case "busy":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			_, _ = w.Write([]byte("ok"))
		}
	})

	tests := []struct {
		query  string
		status string
	}{
		{"", "200"},
		{"?case=over", "402"},
		{"?case=busy", "503"},
	}
	for _, tc := range tests {
		serve(r, "POST", "/holds"+tc.query)
		if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "/holds", tc.status)); val < 1 {
			t.Errorf("expected requests_total with status %s >= 1, got %f", tc.status, val)
		}
	}
}

func TestMetricsMiddleware_WithoutChi(t *testing.T) {
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	serve(h, "GET", "/anything")

	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "unknown", "418")); val < 1 {
		t.Errorf("expected unknown label >= 1, got %f", val)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "unknown"},
		{"/", "/"},
		{"/profiles/{uid}/", "/profiles/{uid}"},
		{"/profiles/{uid}/holds", "/profiles/{uid}/holds"},
		{"/health", "/health"},
	}

	for _, tc := range tests {
		result := normalizePath(tc.input)
		if result != tc.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tc.input, result, tc.expected)
		}
	}
}
