package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSPAHandlerServesIndex(t *testing.T) {
	h := SPAHandler()

	for _, p := range []string{"/", "/interview", "/some/client/route"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", p, w.Code)
		}
		if !strings.Contains(w.Body.String(), "<title>Symptom Intake</title>") {
			t.Fatalf("%s: expected index.html", p)
		}
	}
}

func TestSPAHandlerServesAssets(t *testing.T) {
	w := httptest.NewRecorder()
	SPAHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/app.js", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "continue_interview") {
		t.Fatal("expected app.js content")
	}
}

func TestSPAHandlerMissingAssetIs404(t *testing.T) {
	w := httptest.NewRecorder()
	SPAHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing.css", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
