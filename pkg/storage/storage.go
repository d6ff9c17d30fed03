// Package storage provides typed JSON file repositories with atomic
// writes. Each repository guards its file with a mutex; writes go to a
// temp file in the same directory and are renamed into place.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Repository is a typed load/save store. Implementations must be safe for
// concurrent use.
type Repository[T any] interface {
	Load() (T, error)
	Save(value T) error
}

// FileRepository persists a value as JSON on disk.
type FileRepository[T any] struct {
	path string
	mode os.FileMode
	mu   sync.Mutex
}

// NewFileRepository creates a repository at path with 0644 files.
func NewFileRepository[T any](path string) *FileRepository[T] {
	return &FileRepository[T]{path: path, mode: 0644}
}

// NewSecretFileRepository creates a repository whose file is written with
// 0600 permissions, for key material and credential stores.
func NewSecretFileRepository[T any](path string) *FileRepository[T] {
	return &FileRepository[T]{path: path, mode: 0600}
}

// Load reads and decodes the stored value. A missing file yields the zero
// value without error.
func (r *FileRepository[T]) Load() (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var value T
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return value, nil
		}
		return value, fmt.Errorf("read %s: %w", r.path, err)
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("decode %s: %w", r.path, err)
	}
	return value, nil
}

// Save encodes and atomically writes the value (temp file + rename).
func (r *FileRepository[T]) Save(value T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", r.path, err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(r.mode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into %s: %w", r.path, err)
	}
	return nil
}

// MemoryRepository keeps the value in memory. Used by tests and by
// components that opt out of persistence.
type MemoryRepository[T any] struct {
	mu    sync.Mutex
	value T
	set   bool
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository[T any]() *MemoryRepository[T] {
	return &MemoryRepository[T]{}
}

func (r *MemoryRepository[T]) Load() (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value, nil
}

func (r *MemoryRepository[T]) Save(value T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.value = value
	r.set = true
	return nil
}
