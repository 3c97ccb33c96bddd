package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/triage/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeStore struct {
	total      int64
	severities map[string]int64
	services   []model.DimensionCount
	namespaces []model.DimensionCount
	criticals  []model.DimensionCount
}

func (f *fakeStore) TotalEntryCount() (int64, error) { return f.total, nil }
func (f *fakeStore) SeverityCounts() (map[string]int64, error) {
	return f.severities, nil
}
func (f *fakeStore) TopServices(limit int) ([]model.DimensionCount, error) {
	if len(f.services) > limit {
		return f.services[:limit], nil
	}
	return f.services, nil
}
func (f *fakeStore) NamespaceCounts() ([]model.DimensionCount, error) {
	return f.namespaces, nil
}
func (f *fakeStore) CriticalServiceCounts() ([]model.DimensionCount, error) {
	return f.criticals, nil
}

func newTestServer(t *testing.T, store model.StoreQuerier) (*Server, *gin.Engine) {
	t.Helper()
	srv := NewServer("", store)
	srv.startTime = time.Now()

	r := gin.New()
	r.Use(gin.Recovery())
	srv.register(r)
	return srv, r
}

func get(t *testing.T, r *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	_, r := newTestServer(t, &fakeStore{total: 42})

	w := get(t, r, "/api/health")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("health status = %v, want ok", body["status"])
	}
	if body["entry_count"] != float64(42) {
		t.Errorf("entry_count = %v, want 42", body["entry_count"])
	}
}

func TestReportEndpoint(t *testing.T) {
	srv, r := newTestServer(t, nil)

	if w := get(t, r, "/api/report"); w.Code != http.StatusNotFound {
		t.Errorf("report before publish = %d, want %d", w.Code, http.StatusNotFound)
	}

	srv.SetReport(&model.RankedReport{
		TotalCount:    10,
		CriticalCount: 2,
		Services:      []model.ServiceReport{{Service: "api", TotalCount: 10}},
	})

	w := get(t, r, "/api/report")
	if w.Code != http.StatusOK {
		t.Fatalf("report status = %d, want %d", w.Code, http.StatusOK)
	}
	var report model.RankedReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if report.TotalCount != 10 || len(report.Services) != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	srv, r := newTestServer(t, nil)

	if w := get(t, r, "/api/summary"); w.Code != http.StatusNotFound {
		t.Errorf("summary before publish = %d, want %d", w.Code, http.StatusNotFound)
	}

	srv.SetSummary("upstream latency is the root cause")
	w := get(t, r, "/api/summary")
	if w.Code != http.StatusOK {
		t.Fatalf("summary status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if body["summary"] != "upstream latency is the root cause" {
		t.Errorf("summary = %q", body["summary"])
	}
}

func TestServicesEndpoint(t *testing.T) {
	_, r := newTestServer(t, &fakeStore{
		services: []model.DimensionCount{{Value: "api", Count: 30}, {Value: "web", Count: 12}},
	})

	w := get(t, r, "/api/services")
	if w.Code != http.StatusOK {
		t.Fatalf("services status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		Services []model.DimensionCount `json:"services"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal services: %v", err)
	}
	if len(body.Services) != 2 || body.Services[0].Value != "api" {
		t.Errorf("services = %+v", body.Services)
	}
}

func TestSeverityEndpoint(t *testing.T) {
	_, r := newTestServer(t, &fakeStore{
		severities: map[string]int64{model.LevelError: 5, model.LevelInfo: 2},
	})

	w := get(t, r, "/api/severity")
	if w.Code != http.StatusOK {
		t.Fatalf("severity status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		Severity map[string]int64 `json:"severity"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal severity: %v", err)
	}
	if body.Severity[model.LevelError] != 5 {
		t.Errorf("severity = %+v", body.Severity)
	}
}

func TestCriticalEndpoint(t *testing.T) {
	_, r := newTestServer(t, &fakeStore{
		criticals: []model.DimensionCount{{Value: "payments", Count: 7}},
	})

	w := get(t, r, "/api/critical")
	if w.Code != http.StatusOK {
		t.Fatalf("critical status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		Critical []model.DimensionCount `json:"critical"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal critical: %v", err)
	}
	if len(body.Critical) != 1 || body.Critical[0].Value != "payments" || body.Critical[0].Count != 7 {
		t.Errorf("critical = %+v", body.Critical)
	}
}

func TestStoreBackedEndpointsWithoutStore(t *testing.T) {
	_, r := newTestServer(t, nil)

	for _, path := range []string{"/api/services", "/api/severity", "/api/namespaces", "/api/critical"} {
		if w := get(t, r, path); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want %d", path, w.Code, http.StatusServiceUnavailable)
		}
	}
}
