package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })

func TestForceHTTPS(t *testing.T) {
	h := ForceHTTPS(true, ok)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "http://forms.example.com/forms/contact?x=1", nil))
	if rec.Code != http.StatusPermanentRedirect || rec.Header().Get("Location") != "https://forms.example.com/forms/contact?x=1" {
		t.Fatalf("redirect = %d %s", rec.Code, rec.Header().Get("Location"))
	}

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "http://localhost:8080/healthz", nil),
		func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "http://forms.example.com/", nil)
			r.Header.Set("X-Forwarded-Proto", "https")
			return r
		}(),
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusTeapot {
			t.Errorf("%s: code = %d, want passthrough", req.Host, rec.Code)
		}
	}

	rec = httptest.NewRecorder()
	ForceHTTPS(false, ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://forms.example.com/", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("disabled wrapper redirected: %d", rec.Code)
	}
}

func TestSecurity(t *testing.T) {
	rec := httptest.NewRecorder()
	Security(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	for _, h := range []string{"Strict-Transport-Security", "Content-Security-Policy", "X-Frame-Options", "X-Content-Type-Options", "Referrer-Policy"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("missing %s", h)
		}
	}
}

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := AccessLog(zap.New(core).Sugar())(ok)

	req := httptest.NewRequest(http.MethodPost, "/forms/contact", nil)
	req.Header.Set("X-Forwarded-For", "bogus, 203.0.113.9")
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	f := entries[0].ContextMap()
	if f["ip"] != "203.0.113.9" || f["status"] != int64(http.StatusTeapot) || f["path"] != "/forms/contact" {
		t.Fatalf("fields = %v", f)
	}
}
