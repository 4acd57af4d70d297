// Package storage persists the ledger snapshot in a local LevelDB database.
// The snapshot is written wholesale after every mutating operation so a
// restarted node resumes from its exact last state.
package storage

import (
	"encoding/json"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/ecl-project/ecl/internal/ledger"
	"github.com/ecl-project/ecl/pkg/errors"
)

var ledgerStateKey = []byte("ledger/state")

// Store wraps the LevelDB handle
type Store struct {
	db *leveldb.DB
}

// Open opens or creates the database at path
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDatabase, "open_store",
			"failed to open ledger database").
			WithContext("path", path)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveLedger writes the ledger snapshot
func (s *Store) SaveLedger(snap *ledger.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "save_ledger",
			"failed to encode ledger snapshot")
	}

	if err := s.db.Put(ledgerStateKey, data, nil); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "save_ledger",
			"failed to write ledger snapshot")
	}
	return nil
}

// LoadLedger reads the persisted snapshot. A fresh database yields (nil, nil).
func (s *Store) LoadLedger() (*ledger.Snapshot, error) {
	data, err := s.db.Get(ledgerStateKey, nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrorTypeDatabase, "load_ledger",
			"failed to read ledger snapshot")
	}

	var snap ledger.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDatabase, "load_ledger",
			"failed to decode ledger snapshot")
	}
	return &snap, nil
}
