package loki

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const rangeResponse = `{
  "status": "success",
  "data": {
    "resultType": "streams",
    "result": [
      {
        "stream": {"app": "api", "namespace": "prod", "pod": "api-0"},
        "values": [
          ["1705314600000000000", "timeout calling billing"],
          ["1705314660000000000", "{\"message\":\"connection refused\",\"level\":\"error\"}"]
        ]
      },
      {
        "stream": {"app": "web", "namespace": "prod"},
        "values": [
          ["1705314700000000000", "render failed"]
        ]
      }
    ]
  }
}`

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()
	if _, err := NewClient(ClientConfig{Query: `{namespace="prod"}`}); err == nil {
		t.Error("want error for missing base URL")
	}
	if _, err := NewClient(ClientConfig{BaseURL: "http://localhost:3100"}); err == nil {
		t.Error("want error for missing query")
	}
}

func TestClient_Fetch(t *testing.T) {
	t.Parallel()
	var gotQuery, gotOrgID, gotDirection string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/query_range" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("query")
		gotDirection = r.URL.Query().Get("direction")
		gotOrgID = r.Header.Get("X-Scope-OrgID")
		w.Write([]byte(rangeResponse))
	}))
	defer server.Close()

	c, err := NewClient(ClientConfig{
		BaseURL: server.URL,
		OrgID:   "tenant-1",
		Query:   `{namespace="prod"} |~ "error"`,
		Limit:   500,
	})
	if err != nil {
		t.Fatal(err)
	}

	records, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if gotQuery != `{namespace="prod"} |~ "error"` {
		t.Errorf("query param = %q", gotQuery)
	}
	if gotOrgID != "tenant-1" {
		t.Errorf("org id header = %q", gotOrgID)
	}
	if gotDirection != "forward" {
		t.Errorf("direction = %q", gotDirection)
	}

	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	if records[0]["line"] != "timeout calling billing" {
		t.Errorf("records[0].line = %v", records[0]["line"])
	}
	labels, ok := records[0]["labels"].(map[string]interface{})
	if !ok || labels["app"] != "api" || labels["pod"] != "api-0" {
		t.Errorf("records[0].labels = %v", records[0]["labels"])
	}
	if records[2]["line"] != "render failed" {
		t.Errorf("records[2].line = %v", records[2]["line"])
	}
	if records[0]["timestamp"] != "1705314600000000000" {
		t.Errorf("records[0].timestamp = %v", records[0]["timestamp"])
	}
}

func TestClient_Fetch_ServerError(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many outstanding requests", http.StatusTooManyRequests)
	}))
	defer server.Close()

	c, err := NewClient(ClientConfig{BaseURL: server.URL, Query: `{app="x"}`})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Fetch(context.Background()); err == nil {
		t.Error("want error for non-200 response")
	}
}

func TestClient_Fetch_FailureStatus(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","data":{}}`))
	}))
	defer server.Close()

	c, err := NewClient(ClientConfig{BaseURL: server.URL, Query: `{app="x"}`})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Fetch(context.Background()); err == nil {
		t.Error("want error for failure status in body")
	}
}
