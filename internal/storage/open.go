package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"renewd/internal/event"
	logx "renewd/pkg/logx"
)

// Store is the typed persistence API used by the core.
//
// Missing documents read as empty values so a fresh install behaves like
// an empty one. Every save replaces the whole document.
type Store struct {
	kv  docStore
	log logx.Logger
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	var (
		kv  docStore
		err error
	)
	switch driver {
	case "", "file":
		kv, err = openFile(cfg)
	case "sqlite", "sqlite3":
		kv, err = openSQLite(cfg)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
	if err != nil {
		return nil, err
	}
	return &Store{kv: kv, log: log}, nil
}

func (s *Store) Close() error { return s.kv.close() }

func (s *Store) LoadEvents(ctx context.Context) ([]event.Event, error) {
	_ = ctx
	var out []event.Event
	if err := s.loadJSON(docEvents, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []event.Event{}
	}
	return out, nil
}

func (s *Store) SaveEvents(ctx context.Context, events []event.Event) error {
	_ = ctx
	if events == nil {
		events = []event.Event{}
	}
	return s.saveJSON(docEvents, events)
}

func (s *Store) LoadLedger(ctx context.Context) ([]event.LedgerEntry, error) {
	_ = ctx
	var out []event.LedgerEntry
	if err := s.loadJSON(docLogs, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []event.LedgerEntry{}
	}
	return out, nil
}

func (s *Store) SaveLedger(ctx context.Context, entries []event.LedgerEntry) error {
	_ = ctx
	if entries == nil {
		entries = []event.LedgerEntry{}
	}
	return s.saveJSON(docLogs, entries)
}

func (s *Store) LoadSettings(ctx context.Context) (event.Settings, error) {
	_ = ctx
	var out event.Settings
	if err := s.loadJSON(docSettings, &out); err != nil {
		return event.Settings{}, err
	}
	return out, nil
}

func (s *Store) SaveSettings(ctx context.Context, st event.Settings) error {
	_ = ctx
	return s.saveJSON(docSettings, st)
}

func (s *Store) loadJSON(name string, into any) error {
	b, err := s.kv.getDoc(name)
	if err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, into); err != nil {
		// A corrupt document must not take the whole daemon down; treat it
		// as absent and let the next save replace it.
		s.log.Warn("corrupt document; treating as empty", logx.String("doc", name), logx.Err(err))
		return nil
	}
	return nil
}

func (s *Store) saveJSON(name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	if err := s.kv.putDoc(name, b); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}
