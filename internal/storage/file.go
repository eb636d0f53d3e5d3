package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// fileStore is a dependency-free persistence backend: one <name>.json per
// document under a data directory. Replacement goes through a temp file +
// rename so readers never observe a half-written document.
type fileStore struct {
	mu     sync.Mutex
	dir    string
	closed bool
}

func openFile(cfg Config) (docStore, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{dir: dir}, nil
}

func (s *fileStore) close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) getDoc(name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	b, err := os.ReadFile(s.docPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *fileStore) putDoc(name string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	path := s.docPath(name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *fileStore) docPath(name string) string {
	return filepath.Join(s.dir, name+".json")
}
