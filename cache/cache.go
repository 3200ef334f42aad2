package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

const extension = ".cache"

// Store keeps rendered documents as files under one directory. Entries older
// than maxAge are treated as missing.
type Store struct {
	dir    string
	maxAge time.Duration
}

func New(dir string, maxAge time.Duration) *Store {
	return &Store{dir: dir, maxAge: maxAge}
}

func (s *Store) Dir() string {
	return s.dir
}

// Path returns the cache file for key.
func (s *Store) Path(key string) string {
	name := strings.Trim(strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return '_'
	}, key), "_")
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s%s", name, generateHash(key), extension))
}

// generateHash generates an xxHash hash for the given string
func generateHash(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}

func (s *Store) Write(key string, content []byte) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return errors.Wrap(err, "create cache dir")
	}
	// Readers never see a partial file.
	path := s.Path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0644); err != nil {
		return errors.Wrap(err, "write cache file")
	}
	return errors.Wrap(os.Rename(tmp, path), "publish cache file")
}

// Read returns the content for key if it exists and is not expired.
func (s *Store) Read(key string) ([]byte, bool) {
	path := s.Path(key)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if time.Since(info.ModTime()) > s.maxAge {
		return nil, false
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return content, true
}

// Clear removes the entries of the given keys.
func (s *Store) Clear(keys ...string) error {
	for _, key := range keys {
		if err := os.Remove(s.Path(key)); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "remove cache file")
		}
	}
	return nil
}

// ClearAll drops every entry.
func (s *Store) ClearAll() error {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+extension))
	if err != nil {
		return errors.Wrap(err, "list cache files")
	}
	for _, match := range matches {
		if err := os.Remove(match); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "remove cache file")
		}
	}
	return nil
}

// ClearOld removes the entries older than maxAge and reports how many went.
func (s *Store) ClearOld() (int, error) {
	removed := 0
	err := filepath.Walk(s.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, extension) {
			return nil
		}
		if time.Since(info.ModTime()) > s.maxAge {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})
	return removed, errors.Wrap(err, "clear old cache")
}
