package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestFileServeWithValidSignature(t *testing.T) {
	store := newHandlerStore(t)
	ctx := context.Background()
	if _, err := store.Write(ctx, "u1/p1/a.png", []byte("png-bytes")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	signed, err := store.SignedURL("u1/p1/a.png", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	parsed, _ := url.Parse(signed)

	app := &App{Logger: zerolog.Nop(), Store: store}
	req := httptest.NewRequest(http.MethodGet, "/v1/files/u1/p1/a.png?"+parsed.RawQuery, nil)
	req = withURLParam(req, "*", "u1/p1/a.png")
	rr := httptest.NewRecorder()
	app.FileServe(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
	if rr.Body.String() != "png-bytes" {
		t.Fatalf("body = %q", rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
}

func TestFileServeRejectsBadSignature(t *testing.T) {
	store := newHandlerStore(t)
	if _, err := store.Write(context.Background(), "u1/p1/a.png", []byte("x")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	app := &App{Logger: zerolog.Nop(), Store: store}
	req := httptest.NewRequest(http.MethodGet, "/v1/files/u1/p1/a.png?exp=9999999999&sig=bogus", nil)
	req = withURLParam(req, "*", "u1/p1/a.png")
	rr := httptest.NewRecorder()
	app.FileServe(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
}

func TestFileServeUnsignedRequiresAuth(t *testing.T) {
	store := newHandlerStore(t)
	if _, err := store.Write(context.Background(), "u1/p1/a.png", []byte("x")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	app := &App{Logger: zerolog.Nop(), Store: store}

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/v1/files/u1/p1/a.png", nil), "*", "u1/p1/a.png")
	rr := httptest.NewRecorder()
	app.FileServe(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}

	authed := withURLParam(authedRequest(http.MethodGet, "/v1/files/u1/p1/a.png", ""), "*", "u1/p1/a.png")
	rr = httptest.NewRecorder()
	app.FileServe(rr, authed)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for authenticated caller", rr.Code)
	}
}

func TestFileServeMissingObject(t *testing.T) {
	app := &App{Logger: zerolog.Nop(), Store: newHandlerStore(t)}
	req := withURLParam(authedRequest(http.MethodGet, "/v1/files/u1/missing.png", ""), "*", "u1/missing.png")
	rr := httptest.NewRecorder()
	app.FileServe(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}
