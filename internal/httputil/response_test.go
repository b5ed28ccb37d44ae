package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteJSONError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONError(rec, http.StatusBadRequest, "unknown scenario type")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %s, want application/json", ct)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["error"] != "unknown scenario type" {
		t.Errorf("error = %s", resp["error"])
	}
}

func TestStatusHelpers(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		fn   func(http.ResponseWriter)
		want int
	}{
		{"method", MethodNotAllowed, http.StatusMethodNotAllowed},
		{"bad", func(w http.ResponseWriter) { BadRequest(w, "x") }, http.StatusBadRequest},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "x") }, http.StatusInternalServerError},
		{"notfound", func(w http.ResponseWriter) { NotFound(w, "x") }, http.StatusNotFound},
		{"ok", func(w http.ResponseWriter) { WriteJSONOK(w, map[string]int{"n": 1}) }, http.StatusOK},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		tc.fn(rec)
		if rec.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
}

func TestRequireMethod(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/selection", nil)
	if RequireMethod(rec, req, http.MethodGet, http.MethodPost) {
		t.Fatal("DELETE should be rejected")
	}
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/selection", nil)
	if !RequireMethod(rec, req, http.MethodGet, http.MethodPost) {
		t.Fatal("POST should be accepted")
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	var body struct {
		Field string `json:"field"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"field":"log_name"}`))
	if err := DecodeJSON(req, &body); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if body.Field != "log_name" {
		t.Errorf("field = %q", body.Field)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"unexpected":1}`))
	if err := DecodeJSON(req, &body); err == nil {
		t.Error("expected error for unknown field")
	}
}
