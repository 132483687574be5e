package materialize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog"
)

// The three failure stages stay distinguishable because they carry different
// user-facing recovery stories: a fetch or store failure after a successful
// generation is "generated but not saved, retry possible", never "generation
// failed".
var (
	ErrFetch  = errors.New("materialize: fetch output failed")
	ErrStore  = errors.New("materialize: store output failed")
	ErrDecode = errors.New("materialize: unreadable media")
)

// ObjectStore is the durable-storage contract consumed here.
type ObjectStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// Result reports where the artifact landed and what was measured from the
// actual bytes.
type Result struct {
	StorageKey      string
	Width           int
	Height          int
	DurationSeconds float64
	Bytes           int64
	MIME            string
}

// Materializer downloads a provider output URL, persists the bytes under a
// deterministic key and measures the media.
type Materializer struct {
	HTTPClient *http.Client
	Store      ObjectStore
	Logger     zerolog.Logger
	Now        func() time.Time
}

// New builds a materializer with a bounded download client.
func New(store ObjectStore, logger zerolog.Logger) *Materializer {
	return &Materializer{
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
		Store:      store,
		Logger:     logger,
		Now:        time.Now,
	}
}

// MaterializeImage fetches the output, measures its dimensions from the
// decoded bytes and writes it to storage. Provider-reported metadata is never
// trusted blindly; dimensions come from the fetched asset itself.
func (m *Materializer) MaterializeImage(ctx context.Context, outputURL, ownerID, projectID string) (*Result, error) {
	data, mime, err := m.fetch(ctx, outputURL)
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	key := m.storageKey(ownerID, projectID, "image", extensionForMIME(mime, ".png"))
	savedKey, err := m.Store.Write(ctx, key, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	m.Logger.Debug().Str("key", savedKey).Int("width", cfg.Width).Int("height", cfg.Height).Msg("materialize: image persisted")
	return &Result{
		StorageKey: savedKey,
		Width:      cfg.Width,
		Height:     cfg.Height,
		Bytes:      int64(len(data)),
		MIME:       mime,
	}, nil
}

// MaterializeVideo fetches and stores the output. Container parsing is out of
// scope, so the duration comes from the provider with a floor at zero and a
// non-empty-payload sanity check stands in for a decode.
func (m *Materializer) MaterializeVideo(ctx context.Context, outputURL, ownerID, projectID string, providerDuration float64) (*Result, error) {
	data, mime, err := m.fetch(ctx, outputURL)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	if providerDuration < 0 {
		providerDuration = 0
	}
	key := m.storageKey(ownerID, projectID, "video", extensionForMIME(mime, ".mp4"))
	savedKey, err := m.Store.Write(ctx, key, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	m.Logger.Debug().Str("key", savedKey).Int64("bytes", int64(len(data))).Msg("materialize: video persisted")
	return &Result{
		StorageKey:      savedKey,
		DurationSeconds: providerDuration,
		Bytes:           int64(len(data)),
		MIME:            mime,
	}, nil
}

func (m *Materializer) fetch(ctx context.Context, outputURL string) ([]byte, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(outputURL))
	if err != nil || parsed.Scheme == "" {
		return nil, "", fmt.Errorf("%w: invalid url %q", ErrFetch, outputURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("%w: status %d", ErrFetch, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	mime := resp.Header.Get("Content-Type")
	if idx := strings.Index(mime, ";"); idx > 0 {
		mime = mime[:idx]
	}
	return data, strings.TrimSpace(mime), nil
}

// storageKey derives the deterministic {owner}/{project}/{timestamp}-{kind}.{ext} path.
func (m *Materializer) storageKey(ownerID, projectID, kind, ext string) string {
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	return fmt.Sprintf("%s/%s/%d-%s%s", ownerID, projectID, now().UnixMilli(), kind, ext)
}

func extensionForMIME(mime, fallback string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	default:
		return fallback
	}
}
