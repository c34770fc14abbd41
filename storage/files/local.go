// Package files provides the storage backends for submission payloads and
// result bundles.
package files

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/itdsea/coursework/core"
)

// LocalStorage keeps payloads on the local disk under a media root.
type LocalStorage struct {
	root string
}

var _ core.FileStorage = (*LocalStorage)(nil) // interface compliance check

func NewLocalStorage(root string) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating media root")
	}
	return &LocalStorage{root: root}, nil
}

// Save writes the payload to a temp file first and renames into place so a
// partial write never replaces an existing payload.
func (st *LocalStorage) Save(ctx context.Context, path string, r io.Reader) error {
	dst := filepath.Join(st.root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrap(err, "creating directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err = io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "writing payload")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temp file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), dst), "replacing payload")
}

func (st *LocalStorage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(st.root, filepath.FromSlash(path)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrFileNotFound
		}
		return nil, errors.Wrap(err, "opening payload")
	}
	return f, nil
}

func (st *LocalStorage) Delete(ctx context.Context, path string) error {
	err := os.Remove(filepath.Join(st.root, filepath.FromSlash(path)))
	if err != nil {
		if os.IsNotExist(err) {
			return core.ErrFileNotFound
		}
		return errors.Wrap(err, "deleting payload")
	}
	return nil
}
