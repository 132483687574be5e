package materialize

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type stubStore struct {
	written  map[string][]byte
	writeErr error
}

func newStubStore() *stubStore {
	return &stubStore{written: map[string][]byte{}}
}

func (s *stubStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	if s.writeErr != nil {
		return "", s.writeErr
	}
	s.written[key] = data
	return key, nil
}

type stubTransport struct {
	status      int
	contentType string
	body        []byte
	err         error
}

func (t *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.err != nil {
		return nil, t.err
	}
	header := http.Header{}
	if t.contentType != "" {
		header.Set("Content-Type", t.contentType)
	}
	return &http.Response{
		StatusCode: t.status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(t.body)),
	}, nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func testMaterializer(store ObjectStore, transport http.RoundTripper) *Materializer {
	m := New(store, zerolog.Nop())
	m.HTTPClient = &http.Client{Transport: transport}
	m.Now = func() time.Time { return time.UnixMilli(1700000000000) }
	return m
}

func TestMaterializeImageMeasuresFetchedBytes(t *testing.T) {
	store := newStubStore()
	m := testMaterializer(store, &stubTransport{
		status:      http.StatusOK,
		contentType: "image/png",
		body:        pngBytes(t, 640, 480),
	})

	res, err := m.MaterializeImage(context.Background(), "https://cdn.example.com/out.png", "owner-1", "proj-1")
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if res.Width != 640 || res.Height != 480 {
		t.Fatalf("dimensions = %dx%d, want 640x480", res.Width, res.Height)
	}
	if res.StorageKey != "owner-1/proj-1/1700000000000-image.png" {
		t.Fatalf("key = %q", res.StorageKey)
	}
	if _, ok := store.written[res.StorageKey]; !ok {
		t.Fatalf("bytes were not written under the returned key")
	}
	if res.MIME != "image/png" {
		t.Fatalf("mime = %q", res.MIME)
	}
}

func TestMaterializeImageFetchFailure(t *testing.T) {
	m := testMaterializer(newStubStore(), &stubTransport{err: errors.New("connection reset")})
	_, err := m.MaterializeImage(context.Background(), "https://cdn.example.com/out.png", "o", "p")
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("err = %v, want ErrFetch", err)
	}
}

func TestMaterializeImageFetchBadStatus(t *testing.T) {
	m := testMaterializer(newStubStore(), &stubTransport{status: http.StatusForbidden})
	_, err := m.MaterializeImage(context.Background(), "https://cdn.example.com/out.png", "o", "p")
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("err = %v, want ErrFetch", err)
	}
}

func TestMaterializeImageUndecodableBytes(t *testing.T) {
	store := newStubStore()
	m := testMaterializer(store, &stubTransport{
		status:      http.StatusOK,
		contentType: "image/png",
		body:        []byte("definitely not an image"),
	})
	_, err := m.MaterializeImage(context.Background(), "https://cdn.example.com/out.png", "o", "p")
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
	if len(store.written) != 0 {
		t.Fatalf("undecodable bytes were persisted")
	}
}

func TestMaterializeImageStoreFailure(t *testing.T) {
	store := newStubStore()
	store.writeErr = errors.New("disk full")
	m := testMaterializer(store, &stubTransport{
		status:      http.StatusOK,
		contentType: "image/png",
		body:        pngBytes(t, 8, 8),
	})
	_, err := m.MaterializeImage(context.Background(), "https://cdn.example.com/out.png", "o", "p")
	if !errors.Is(err, ErrStore) {
		t.Fatalf("err = %v, want ErrStore", err)
	}
}

func TestMaterializeImageRejectsInvalidURL(t *testing.T) {
	m := testMaterializer(newStubStore(), &stubTransport{status: http.StatusOK})
	_, err := m.MaterializeImage(context.Background(), "not-a-url", "o", "p")
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("err = %v, want ErrFetch", err)
	}
}

func TestMaterializeVideoUsesProviderDurationWithFloor(t *testing.T) {
	store := newStubStore()
	m := testMaterializer(store, &stubTransport{
		status:      http.StatusOK,
		contentType: "video/mp4",
		body:        []byte("mp4-bytes"),
	})

	res, err := m.MaterializeVideo(context.Background(), "https://cdn.example.com/out.mp4", "o", "p", 5.2)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if res.DurationSeconds != 5.2 {
		t.Fatalf("duration = %v, want 5.2", res.DurationSeconds)
	}
	if !strings.HasSuffix(res.StorageKey, "-video.mp4") {
		t.Fatalf("key = %q", res.StorageKey)
	}

	res, err = m.MaterializeVideo(context.Background(), "https://cdn.example.com/out.mp4", "o", "p", -3)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if res.DurationSeconds != 0 {
		t.Fatalf("duration = %v, want floor at 0", res.DurationSeconds)
	}
}

func TestMaterializeVideoRejectsEmptyPayload(t *testing.T) {
	m := testMaterializer(newStubStore(), &stubTransport{
		status:      http.StatusOK,
		contentType: "video/mp4",
	})
	_, err := m.MaterializeVideo(context.Background(), "https://cdn.example.com/out.mp4", "o", "p", 5)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
}
