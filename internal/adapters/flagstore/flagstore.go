// Package flagstore persists named booleans such as the onboarding flag.
package flagstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Store kinds accepted by Open.
const (
	KindMemory = "memory"
	KindFile   = "file"
	KindSQLite = "sqlite"
)

var (
	ErrUnknownKind = errors.New("unknown flag store kind")
	ErrEmptyName   = errors.New("flag name must not be empty")
)

// Store persists named booleans. Unknown flags read as false.
type Store interface {
	Load(ctx context.Context, name string) (bool, error)
	Store(ctx context.Context, name string, value bool) error
	io.Closer
}

// Open returns the store of the given kind. path is ignored for memory.
func Open(ctx context.Context, kind, path string) (Store, error) {
	switch kind {
	case KindMemory:
		return NewMemory(), nil
	case KindFile:
		return NewFile(path), nil
	case KindSQLite:
		return OpenSQLite(ctx, path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Memory keeps flags for the life of the process.
type Memory struct {
	mu    sync.RWMutex
	flags map[string]bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{flags: make(map[string]bool)}
}

func (m *Memory) Load(_ context.Context, name string) (bool, error) {
	if name == "" {
		return false, ErrEmptyName
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flags[name], nil
}

func (m *Memory) Store(_ context.Context, name string, value bool) error {
	if name == "" {
		return ErrEmptyName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[name] = value
	return nil
}

func (m *Memory) Close() error { return nil }
