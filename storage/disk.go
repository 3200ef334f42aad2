package storage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// DiskStore keeps covers in a local directory served under /covers.
type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "create cover dir %s", dir)
	}
	return &DiskStore{dir: dir}, nil
}

func (d *DiskStore) Dir() string {
	return d.dir
}

func (d *DiskStore) Save(ctx context.Context, data string) (string, error) {
	raw, ext, err := decodeImage(data)
	if err != nil {
		return "", err
	}
	name := coverName(raw, ext)
	if err := os.WriteFile(filepath.Join(d.dir, name), raw, 0644); err != nil {
		return "", errors.Wrap(err, "write cover")
	}
	return name, nil
}

func (d *DiskStore) Delete(ctx context.Context, name string) error {
	err := os.Remove(filepath.Join(d.dir, filepath.Base(name)))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove cover")
	}
	return nil
}

func (d *DiskStore) URL(name string) string {
	return "/covers/" + name
}
