package client

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SessionStore is durable key/value storage for client-side state. All
// values are JSON blobs. Implementations must never panic on storage
// trouble; callers treat the store as best-effort.
type SessionStore interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Clear(key string)
}

// FileStore keeps one JSON file per key under a directory. Read and write
// failures are logged and swallowed: losing durability degrades the caller
// to in-memory behavior instead of failing it.
type FileStore struct {
	dir      string
	errorLog *log.Logger
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir, errorLog: log.Default()}
}

// WithErrorLog redirects storage-failure logging, mainly for tests.
func (s *FileStore) WithErrorLog(logger *log.Logger) *FileStore {
	s.errorLog = logger
	return s
}

func (s *FileStore) Get(key string) ([]byte, bool) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			s.errorLog.Printf("session store: read %q: %v", key, err)
		}
		return nil, false
	}
	return data, true
}

func (s *FileStore) Set(key string, value []byte) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		s.errorLog.Printf("session store: mkdir %q: %v", s.dir, err)
		return
	}
	if err := os.WriteFile(s.path(key), value, 0o600); err != nil {
		s.errorLog.Printf("session store: write %q: %v", key, err)
	}
}

func (s *FileStore) Clear(key string) {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		s.errorLog.Printf("session store: clear %q: %v", key, err)
	}
}

func (s *FileStore) path(key string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return filepath.Join(s.dir, replacer.Replace(key)+".json")
}

// MemStore is an in-memory SessionStore, safe for concurrent use. It backs
// tests and callers that want session behavior without durability.
type MemStore struct {
	mu     sync.Mutex
	values map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{values: make(map[string][]byte)}
}

func (s *MemStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok
}

func (s *MemStore) Set(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
}

func (s *MemStore) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}
