package store

import (
	"errors"
	"io"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	PostgresDSN string // set → Postgres
	SQLitePath  string // used when PostgresDSN is empty
}

// Stores is the top-level container for all storage backends.
type Stores struct {
	Groups   GroupStore
	Profiles ProfileStore
	Messages MessageStore
	Setup    SetupStore

	// Closer releases the shared database handle.
	Closer io.Closer
}

// Close releases the underlying database handle, if any.
func (s *Stores) Close() error {
	if s == nil || s.Closer == nil {
		return nil
	}
	return s.Closer.Close()
}
