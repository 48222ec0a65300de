package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DiskStore keeps artifacts under root/<package id>/<name>.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) (*DiskStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("artifact: root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create root: %w", err)
	}
	return &DiskStore{root: root}, nil
}

func (s *DiskStore) pathFor(packageID, name string) (string, error) {
	key, err := objectKey(packageID, name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func (s *DiskStore) Put(_ context.Context, packageID, name string, content []byte) error {
	p, err := s.pathFor(packageID, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, content, 0o644)
}

func (s *DiskStore) Get(_ context.Context, packageID, name string) ([]byte, error) {
	p, err := s.pathFor(packageID, name)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return raw, err
}

func (s *DiskStore) GetURL(context.Context, string, string) (string, error) { return "", nil }

func (s *DiskStore) List(_ context.Context, packageID string) ([]string, error) {
	id, err := cleanID(packageID)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(s.root, id)
	out := []string{}
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (s *DiskStore) Delete(_ context.Context, packageID string) error {
	id, err := cleanID(packageID)
	if err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(s.root, id))
}
