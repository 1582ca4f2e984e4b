package artifact

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// LocalStore persists keys under a base directory on disk. It is used for
// local development and in tests; production deployments use S3Store.
type LocalStore struct {
	baseDir string
	baseURL string // used to synthesize a PresignGet URL; no real signing
}

// NewLocalStore ensures baseDir exists and returns a Store rooted there.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: creating local storage dir: %w", err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("artifact: resolving local storage dir: %w", err)
	}
	return &LocalStore{baseDir: abs, baseURL: "file://" + abs}, nil
}

func (s *LocalStore) fullPath(key string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(key))
}

func (s *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.fullPath(key))
	if os.IsNotExist(err) {
		return nil, &Error{Kind: KindNotFound, Key: key, Err: err}
	}
	if err != nil {
		return nil, &Error{Kind: KindTransportError, Key: key, Err: err}
	}
	return f, nil
}

func (s *LocalStore) Save(ctx context.Context, key string, body io.Reader) error {
	path := s.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &Error{Kind: KindTransportError, Key: key, Err: err}
	}
	f, err := os.Create(path)
	if err != nil {
		return &Error{Kind: KindTransportError, Key: key, Err: err}
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		return &Error{Kind: KindTransportError, Key: key, Err: err}
	}
	return nil
}

func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.fullPath(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, &Error{Kind: KindTransportError, Key: key, Err: err}
	}
	return true, nil
}

// PresignGet returns a file:// URL with the ttl encoded as a query
// parameter for inspection in tests; there is no real signing for local
// storage since it is never served to a browser directly.
func (s *LocalStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", &Error{Kind: KindNotFound, Key: key, Err: fmt.Errorf("no such key")}
	}
	u := &url.URL{Scheme: "file", Path: s.fullPath(key)}
	q := u.Query()
	q.Set("expires_in", ttl.String())
	u.RawQuery = q.Encode()
	return u.String(), nil
}
