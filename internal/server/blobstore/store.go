// Package blobstore is the object-storage gateway: binary payloads go in
// under a key and come back out as a URL that can be stored in a record.
package blobstore

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/catalogadmin/internal/netx"
)

// Ref identifies a stored blob.
type Ref struct {
	Key  string
	Size int64
}

// Store moves blobs to and from durable storage.
//
// Put streams size bytes of body under key, overwriting any existing blob,
// and reports progress through onProgress (which may be nil). On success
// onProgress has been called with transferred == total as its last call.
// URL resolves a stored blob to a URL suitable for a record field.
// Delete removes a blob; deleting an absent key is not an error.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, onProgress netx.ProgressFunc) (Ref, error)
	URL(ctx context.Context, ref Ref) (string, error)
	Delete(ctx context.Context, key string) error
}

// joinURL appends an escaped slash-separated key to base.
func joinURL(base, key string) string {
	segs := strings.Split(key, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segs, "/")
}
