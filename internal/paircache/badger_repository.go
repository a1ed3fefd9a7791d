package paircache

import (
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v3"

	"tnb-trading-bot-go/internal/models"
)

// badgerRepository is the BadgerDB implementation of the SnapshotRepository.
type badgerRepository struct {
	db          *badger.DB
	snapshotKey []byte
}

// NewBadgerRepository creates and returns a new repository instance connected to a BadgerDB database.
func NewBadgerRepository(dbPath string) (SnapshotRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging is disabled to keep the app's logs clean.
	// Errors are still returned from DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &badgerRepository{
		db:          db,
		snapshotKey: []byte("pair_snapshot"), // single key for the whole snapshot
	}, nil
}

// SaveSnapshot atomically saves the entire pair snapshot.
// It marshals the slice into JSON and saves it under a predefined key.
func (r *badgerRepository) SaveSnapshot(pairs []models.AssetPair) error {
	data, err := json.Marshal(pairs)
	if err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(r.snapshotKey, data)
	})
}

// LoadSnapshot loads the last persisted snapshot from storage.
// If the snapshot key is not found, it returns (nil, nil) to indicate no snapshot is present.
func (r *badgerRepository) LoadSnapshot() ([]models.AssetPair, error) {
	var pairs []models.AssetPair

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(r.snapshotKey)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("snapshot value is empty in database")
			}
			return json.Unmarshal(val, &pairs)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil // expected "no snapshot yet" case
	}
	if err != nil {
		return nil, err
	}

	return pairs, nil
}

// Close gracefully closes the connection to the database.
func (r *badgerRepository) Close() error {
	return r.db.Close()
}
