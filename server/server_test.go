// ABOUTME: Tests for the HTTP API's healthz and analyze endpoints

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prateek/heaplens/graph"
)

func TestHandleHealthz(t *testing.T) {
	srv := New(nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "ok" {
		t.Errorf("expected body %q, got %q", "ok", got)
	}
}

func TestHandleAnalyze(t *testing.T) {
	srv := New(nil)

	dump := []byte(`{
		"objects": [
			{"id": 1, "kind": "instance", "class": "Root", "size": 32, "fields": {"leak": 2}},
			{"id": 2, "kind": "instance", "class": "Leaky", "size": 64}
		],
		"roots": [1],
		"weakRefs": [{"referent": 2, "key": "cache-entry", "className": "Leaky"}]
	}`)

	body, err := json.Marshal(analyzeRequest{Dump: dump, ComputeRetainedHeapSize: true})
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var results []graph.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].WeakReference.Referent != 2 {
		t.Errorf("expected result for referent 2, got %d", results[0].WeakReference.Referent)
	}
}

func TestHandleAnalyzeBadDump(t *testing.T) {
	srv := New(nil)

	body, err := json.Marshal(analyzeRequest{Dump: []byte(`{}`)})
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}
