package flagstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// File keeps flags in a YAML mapping of name to bool. A missing file reads
// as all flags false; writes replace the file atomically.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile creates a store backed by path. The file is created on first write.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Load(_ context.Context, name string) (bool, error) {
	if name == "" {
		return false, ErrEmptyName
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	flags, err := f.read()
	if err != nil {
		return false, err
	}
	return flags[name], nil
}

func (f *File) Store(_ context.Context, name string, value bool) error {
	if name == "" {
		return ErrEmptyName
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	flags, err := f.read()
	if err != nil {
		return err
	}
	flags[name] = value

	b, err := yaml.Marshal(flags)
	if err != nil {
		return fmt.Errorf("encode flags: %w", err)
	}
	if err := writeFile(f.path, b, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	return nil
}

func (f *File) Close() error { return nil }

func (f *File) read() (map[string]bool, error) {
	flags := make(map[string]bool)
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return flags, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	if err := yaml.Unmarshal(b, &flags); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	if flags == nil {
		flags = make(map[string]bool)
	}
	return flags, nil
}

// writeFile writes bytes via a temp file, then replaces the target.
func writeFile(path string, b []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer func() { _ = os.Remove(name) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(name, path)
}
