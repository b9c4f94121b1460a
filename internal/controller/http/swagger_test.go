package http

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
)

const testSpec = `
openapi: 3.0.3
info:
  title: Test
  version: 1.0.0
paths:
  /accounts:
    get:
      responses:
        "200":
          description: ok
`

func TestSwaggerHandler_SpecJSON(t *testing.T) {
	sh, err := NewSwaggerHandler("Test", []byte(testSpec))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := chi.NewRouter()
	sh.RegisterRoutes(r)

	rec := doRequest(r, http.MethodGet, "/docs/openapi.json", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("spec is not JSON: %v", err)
	}
	if doc["openapi"] != "3.0.3" {
		t.Errorf("unexpected openapi version %v", doc["openapi"])
	}

	rec = doRequest(r, http.MethodGet, "/docs", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "text/html; charset=utf-8" {
		t.Errorf("unexpected UI response %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
}

func TestSwaggerHandler_InvalidSpec(t *testing.T) {
	if _, err := NewSwaggerHandler("Test", []byte("openapi: [unterminated")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}
