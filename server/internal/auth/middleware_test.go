package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func call(h http.Handler, header, value string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", nil)
	if value != "" {
		req.Header.Set(header, value)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestAPIKeyMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		mode   string
		key    string
		header string
		sent   string
		want   int
	}{
		{"mode none passes through", "none", "secret", "X-API-Key", "", http.StatusNoContent},
		{"empty mode passes through", "", "", "X-API-Key", "", http.StatusNoContent},
		{"correct key", "apikey", "secret", "X-API-Key", "secret", http.StatusNoContent},
		{"wrong key", "apikey", "secret", "X-API-Key", "nope", http.StatusUnauthorized},
		{"missing key", "apikey", "secret", "X-API-Key", "", http.StatusUnauthorized},
		{"prefix of key", "apikey", "secret", "X-API-Key", "secr", http.StatusUnauthorized},
		{"unconfigured key rejects", "apikey", "", "X-API-Key", "anything", http.StatusUnauthorized},
		{"custom header", "apikey", "secret", "X-Hydro-Key", "secret", http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := APIKeyMiddleware(tc.mode, tc.header, tc.key)(okHandler)
			if got := call(h, tc.header, tc.sent); got != tc.want {
				t.Errorf("status: got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestAPIKeyMiddleware_HeaderCaseInsensitive(t *testing.T) {
	h := APIKeyMiddleware("apikey", "x-api-key", "secret")(okHandler)
	if got := call(h, "X-Api-Key", "secret"); got != http.StatusNoContent {
		t.Errorf("status: got %d, want %d", got, http.StatusNoContent)
	}
}

func TestAPIKeyMiddleware_ErrorBody(t *testing.T) {
	h := APIKeyMiddleware("apikey", "X-API-Key", "secret")(okHandler)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	if body := rec.Body.String(); body != "{\"error\":\"invalid api key\"}\n" {
		t.Errorf("body: got %q", body)
	}
}
