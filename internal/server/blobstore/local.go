package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/catalogadmin/internal/filex"
	"github.com/dmitrijs2005/catalogadmin/internal/netx"
)

// LocalStore keeps blobs under a directory on disk. The HTTP API serves
// that directory at BaseURL.
type LocalStore struct {
	root    string
	baseURL string
}

// NewLocalStore creates dir if needed. baseURL is the prefix blob URLs are
// served from (for example "/files" or "https://admin.example/files").
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	root, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	return &LocalStore{root: root, baseURL: baseURL}, nil
}

// Root returns the absolute directory blobs are written to.
func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) Put(ctx context.Context, key string, body io.Reader, size int64, _ string, onProgress netx.ProgressFunc) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return Ref{}, err
	}

	path, err := filex.SafeJoin(s.root, key)
	if err != nil {
		return Ref{}, err
	}

	n, err := filex.WriteFileAtomic(path, netx.NewProgressReader(body, size, onProgress))
	if err != nil {
		return Ref{}, fmt.Errorf("write %s: %w", key, err)
	}
	if n != size {
		_ = os.Remove(path)
		return Ref{}, fmt.Errorf("write %s: short body: %d of %d bytes", key, n, size)
	}

	if onProgress != nil {
		onProgress(size, size)
	}
	return Ref{Key: key, Size: size}, nil
}

func (s *LocalStore) URL(_ context.Context, ref Ref) (string, error) {
	return joinURL(s.baseURL, ref.Key), nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	path, err := filex.SafeJoin(s.root, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
