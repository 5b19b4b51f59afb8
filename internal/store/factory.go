package store

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
)

// Factory hands out the RoomStore for a room name, opening the backing
// database file on first use. The physical existence of a room's file
// is the authoritative signal that the room was approved.
type Factory struct {
	roomsDir string
	mu       sync.Mutex
	stores   map[string]*RoomStore
}

func NewFactory(dataDir string) (*Factory, error) {
	roomsDir := filepath.Join(dataDir, "rooms")
	if err := os.MkdirAll(roomsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create rooms directory: %w", err)
	}

	return &Factory{
		roomsDir: roomsDir,
		stores:   make(map[string]*RoomStore),
	}, nil
}

// path maps a room name to its database file. PathEscape keeps
// arbitrary room names filesystem-safe.
func (f *Factory) path(name string) string {
	return filepath.Join(f.roomsDir, url.PathEscape(name)+".db")
}

// Exists reports whether a store has been provisioned for name.
func (f *Factory) Exists(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.stores[name]; ok {
		return true
	}

	_, err := os.Stat(f.path(name))
	return err == nil
}

// GetOrCreate returns the store for name, provisioning it if needed.
// Repeated calls for the same name return the same handle.
func (f *Factory) GetOrCreate(name string) (*RoomStore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.stores[name]; ok {
		return s, nil
	}

	s, err := OpenRoomStore(f.path(name))
	if err != nil {
		return nil, fmt.Errorf("open room store %q: %w", name, err)
	}

	f.stores[name] = s
	return s, nil
}

// Close closes every open room store handle.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	for name, s := range f.stores {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close room store %q: %w", name, err)
		}
		delete(f.stores, name)
	}

	return firstErr
}
