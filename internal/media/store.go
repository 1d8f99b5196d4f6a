package media

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrNotFound indicates that no object is stored under the key.
var ErrNotFound = errors.New("media: object not found")

// BlobStore persists uploaded bytes and resolves their public location.
type BlobStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	PublicURL(key string) string
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
