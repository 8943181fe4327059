// Package blob provides the object storage used for training channels and
// model artifacts. A Store keeps byte blobs under string keys; forward
// slashes in keys form a logical hierarchy.
package blob

import (
	"bytes"
	"context"
	"io"

	"github.com/skiffml/skiff/pkg/errors"
)

// Store abstracts a bucket of named blobs. Implementations cover the local
// filesystem, an in-memory map and Amazon S3. Get on a missing key returns
// a NotFoundError (errors.IsNotFound).
type Store interface {
	// Put stores the contents of r under key, replacing any previous blob.
	Put(ctx context.Context, key string, r io.Reader) error

	// Get opens the blob under key. The caller must close the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether a blob is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the blob under key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error
}

// PutBytes stores b under key.
func PutBytes(ctx context.Context, s Store, key string, b []byte) error {
	return s.Put(ctx, key, bytes.NewReader(b))
}

// GetBytes reads the whole blob under key.
func GetBytes(ctx context.Context, s Store, key string) ([]byte, error) {
	rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "reading blob %q", key)
	}
	return b, nil
}
