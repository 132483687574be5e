package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testSecret = "test-secret"

func authProbe(t *testing.T, header string) (*httptest.ResponseRecorder, string, string) {
	t.Helper()
	var userID, locale string
	handler := Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID = UserIDFromContext(r.Context())
		locale = LocaleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, userID, locale
}

func TestAuthAcceptsValidToken(t *testing.T) {
	token, err := SignToken(testSecret, "user-1", "id", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	rec, userID, locale := authProbe(t, "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if userID != "user-1" {
		t.Fatalf("user id = %q", userID)
	}
	if locale != "id" {
		t.Fatalf("locale = %q, want claim locale", locale)
	}
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	rec, _, _ := authProbe(t, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthRejectsWrongSecret(t *testing.T) {
	token, err := SignToken("other-secret", "user-1", "", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	rec, _, _ := authProbe(t, "Bearer "+token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	token, err := SignToken(testSecret, "user-1", "", -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	rec, _, _ := authProbe(t, "Bearer "+token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthRejectsMalformedScheme(t *testing.T) {
	rec, _, _ := authProbe(t, "Token abc")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func optionalAuthProbe(t *testing.T, header string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var userID string
	handler := OptionalAuth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, userID
}

func TestOptionalAuthResolvesValidToken(t *testing.T) {
	token, err := SignToken(testSecret, "user-1", "", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	rec, userID := optionalAuthProbe(t, "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if userID != "user-1" {
		t.Fatalf("user id = %q", userID)
	}
}

func TestOptionalAuthPassesAnonymousThrough(t *testing.T) {
	rec, userID := optionalAuthProbe(t, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if userID != "" {
		t.Fatalf("user id = %q, want empty", userID)
	}
}

func TestOptionalAuthDropsInvalidTokenIdentity(t *testing.T) {
	token, err := SignToken("other-secret", "user-1", "", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	rec, userID := optionalAuthProbe(t, "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if userID != "" {
		t.Fatalf("user id = %q, want empty for a bad token", userID)
	}
}
