package paircache

import "tnb-trading-bot-go/internal/models"

// SnapshotRepository defines the interface for snapshot persistence.
// It abstracts the underlying storage mechanism (e.g., BadgerDB, in-memory)
// from the cache itself, so the cache can survive a process restart without
// waiting for the first remote refresh.
type SnapshotRepository interface {
	// SaveSnapshot atomically saves the entire pair snapshot.
	SaveSnapshot(pairs []models.AssetPair) error

	// LoadSnapshot loads the last persisted snapshot.
	// If no snapshot is found, it should return (nil, nil).
	LoadSnapshot() ([]models.AssetPair, error)

	// Close gracefully closes the connection to the database.
	Close() error
}
