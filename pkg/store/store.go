// Package store provides the byte-level storage collaborator the
// invocation wrapper and CLI resolve contract and dataset paths
// through. The validation core never touches this package.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store reads and writes whole resources by path. Implementations are
// caller-provided handles — never process-wide singletons.
type Store interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Put(ctx context.Context, path string, data []byte) error
}

// IsS3Path reports whether the path uses the s3:// scheme.
func IsS3Path(path string) bool {
	return strings.HasPrefix(path, "s3://")
}

// SplitS3Path splits s3://bucket/key into its parts.
func SplitS3Path(path string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(path, "s3://")
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed s3 path %q, want s3://bucket/key", path)
	}
	return bucket, key, nil
}

// Local is the filesystem store.
type Local struct{}

func (Local) Get(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Put writes the file, creating parent directories as needed.
func (Local) Put(_ context.Context, path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory for %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Router dispatches on the path scheme: s3:// paths go to Remote,
// everything else to the local filesystem.
type Router struct {
	Local  Store
	Remote Store // nil when no object-store client is configured
}

// NewRouter builds a router over the local filesystem and an optional
// remote store.
func NewRouter(remote Store) *Router {
	return &Router{Local: Local{}, Remote: remote}
}

func (r *Router) pick(path string) (Store, error) {
	if IsS3Path(path) {
		if r.Remote == nil {
			return nil, fmt.Errorf("no object store configured for %q", path)
		}
		return r.Remote, nil
	}
	return r.Local, nil
}

func (r *Router) Get(ctx context.Context, path string) ([]byte, error) {
	s, err := r.pick(path)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, path)
}

func (r *Router) Put(ctx context.Context, path string, data []byte) error {
	s, err := r.pick(path)
	if err != nil {
		return err
	}
	return s.Put(ctx, path, data)
}
