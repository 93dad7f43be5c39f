// Package storage provides the durable client-side key-value store the
// session core uses to remember the last selected organization between
// mounts. It holds a handful of string keys at most; a JSON file is the
// whole format.
package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// CurrentOrganizationKey is the key under which the active organization id
// is persisted.
const CurrentOrganizationKey = "currentOrganizationId"

// KV is a durable string key-value store. Get returns false when the key is
// absent.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// FileKV stores keys as a flat JSON object in a single file. It is written
// by one process at a time; the mutex guards concurrent goroutines within
// that process.
type FileKV struct {
	mu   sync.Mutex
	path string
}

// NewFileKV creates a file-backed store at path. The parent directory is
// created on first write.
func NewFileKV(path string) *FileKV {
	return &FileKV{path: path}
}

func (f *FileKV) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := data[key]
	return v, ok, nil
}

func (f *FileKV) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return err
	}
	data[key] = value

	buf, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(f.path, buf, 0o600)
}

func (f *FileKV) load() (map[string]string, error) {
	buf, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	data := map[string]string{}
	if err := json.Unmarshal(buf, &data); err != nil {
		// A corrupt preference file is not worth failing over; start fresh.
		return map[string]string{}, nil
	}
	return data, nil
}

// MemoryKV is an in-memory KV for tests and ephemeral sessions.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string]string
}

// NewMemoryKV creates an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: map[string]string{}}
}

func (m *MemoryKV) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}
