package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FileStore persists assets onto the local filesystem behind the object-store
// contract the rest of the system consumes: write, read, delete, public URL
// and time-limited signed URL.
type FileStore struct {
	basePath string
	baseURL  string
	secret   string
}

// Options configures a FileStore.
type Options struct {
	BasePath string
	BaseURL  string // public prefix for served files, e.g. http://host/v1/files
	Secret   string // HMAC secret for signed URLs
}

// NewFileStore initializes a FileStore rooted at opts.BasePath.
func NewFileStore(opts Options) (*FileStore, error) {
	basePath := strings.TrimSpace(opts.BasePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{
		basePath: basePath,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		secret:   opts.Secret,
	}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Write persists the provided bytes at the given relative key and returns the
// canonicalized storage key. Keys are cleaned to prevent directory traversal.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	return cleanKey, nil
}

// Read loads the bytes stored at key.
func (s *FileStore) Read(ctx context.Context, key string) ([]byte, error) {
	if s == nil {
		return nil, errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.basePath, filepath.FromSlash(cleanKey)))
	if err != nil {
		return nil, fmt.Errorf("storage: read file: %w", err)
	}
	return data, nil
}

// Delete removes the objects at the given keys. Missing objects are not an
// error so deletes stay idempotent.
func (s *FileStore) Delete(ctx context.Context, keys ...string) error {
	if s == nil {
		return errors.New("storage: no store configured")
	}
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		cleanKey, err := sanitizeKey(key)
		if err != nil {
			return err
		}
		err = os.Remove(filepath.Join(s.basePath, filepath.FromSlash(cleanKey)))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("storage: delete file: %w", err)
		}
	}
	return nil
}

// Walk visits every stored key. Used by the orphan sweeper.
func (s *FileStore) Walk(fn func(key string) error) error {
	if s == nil {
		return errors.New("storage: no store configured")
	}
	return filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel))
	})
}

// PublicURL returns the unauthenticated URL for a key.
func (s *FileStore) PublicURL(key string) string {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return ""
	}
	return s.baseURL + "/" + cleanKey
}

// SignedURL returns a time-limited URL for a key, suitable for handing to an
// external provider that must fetch the source media.
func (s *FileStore) SignedURL(key string, ttl time.Duration) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	if s.secret == "" {
		return "", errors.New("storage: signing secret not configured")
	}
	exp := time.Now().Add(ttl).Unix()
	sig := signKey(s.secret, cleanKey, exp)
	q := url.Values{}
	q.Set("exp", strconv.FormatInt(exp, 10))
	q.Set("sig", sig)
	return s.baseURL + "/" + cleanKey + "?" + q.Encode(), nil
}

// VerifySignature checks a signed-URL signature for a key.
func (s *FileStore) VerifySignature(key, expStr, sig string) bool {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return false
	}
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil || time.Now().Unix() > exp {
		return false
	}
	expected := signKey(s.secret, cleanKey, exp)
	return hmac.Equal([]byte(expected), []byte(sig))
}

func signKey(secret, key string, exp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s:%d", key, exp)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
