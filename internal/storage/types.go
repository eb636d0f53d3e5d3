package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free directory of JSON documents
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Document names. These match the keys of the original KV namespace;
// renaming them strands existing data.
const (
	docEvents   = "events"
	docLogs     = "logs"
	docSettings = "settings"
)

// docStore is the raw blob layer each driver implements.
// getDoc returns (nil, nil) when the document does not exist yet.
type docStore interface {
	getDoc(name string) ([]byte, error)
	putDoc(name string, body []byte) error
	close() error
}
