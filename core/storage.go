package core

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// ErrFileNotFound is returned by FileStorage implementations when no payload
// exists at the given path.
var ErrFileNotFound = errors.New("file not found")

// FileStorage is the blob-storage port: payloads are addressed by a
// slash-separated path relative to the storage root.
type FileStorage interface {
	Save(ctx context.Context, path string, r io.Reader) error
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}
