package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotExist is returned by Load when no document has ever been saved.
var ErrNotExist = errors.New("document does not exist")

// Document is a durable store holding a single JSON document that is
// overwritten wholesale on every save.
type Document interface {
	Load(v any) error
	Save(v any) error
}

// FileStore persists a document as a JSON file. Saves go through a temp file
// and rename so a crash mid-write never leaves a truncated document.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed document store at dir/name, creating the
// directory if needed.
func NewFileStore(dir, name string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &FileStore{path: filepath.Join(dir, name)}, nil
}

// Load reads the document into v, or returns ErrNotExist.
func (s *FileStore) Load(v any) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotExist
		}
		return fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", s.path, err)
	}

	return nil
}

// Save replaces the document with v.
func (s *FileStore) Save(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}

	return nil
}

// MemStore is an in-memory Document used in tests.
type MemStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
	err   error
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Load(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	if s.data == nil {
		return ErrNotExist
	}
	return json.Unmarshal(s.data, v)
}

func (s *MemStore) Save(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.data = data
	s.saves++
	return nil
}

// SaveCount reports how many saves have completed.
func (s *MemStore) SaveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// FailWith makes all subsequent operations return err; pass nil to heal.
func (s *MemStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
