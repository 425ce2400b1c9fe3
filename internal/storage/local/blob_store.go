// Package local archives raw bodies under a directory on disk.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Config names the archive root.
type Config struct {
	BaseDir string `mapstructure:"base_dir"`
}

// BlobStore writes objects below BaseDir.
type BlobStore struct {
	root string
}

// New validates the directory, creating it when missing.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("archive base_dir is required")
	}
	root, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base_dir: %w", err)
	}
	info, err := os.Stat(root)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(root, 0o750); err != nil {
			return nil, fmt.Errorf("create base_dir: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base_dir: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base_dir %s is not a directory", root)
	}

	probe, err := os.CreateTemp(root, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("base_dir not writable: %w", err)
	}
	name := probe.Name()
	if err := probe.Close(); err != nil {
		return nil, fmt.Errorf("close probe: %w", err)
	}
	if err := os.Remove(name); err != nil {
		return nil, fmt.Errorf("remove probe: %w", err)
	}
	return &BlobStore{root: root}, nil
}

// PutObject writes the reader to root/path via a temp file and rename,
// returning a file:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	target := filepath.Clean(filepath.Join(s.root, filepath.FromSlash(path)))
	if !strings.HasPrefix(target, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes archive root", path)
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("rename object: %w", err)
	}
	return "file://" + target, nil
}
