// iface.go defines the StoreInterface the sync engine persists through.
//
// Both backends (the JSON file and SQLite) satisfy it. A store always
// loads and saves the complete event map as one unit; there are no partial
// updates, so the engine never has to reason about half-applied batches.
package store

import "github.com/daviddao/calsync/pkg/model"

// StoreInterface is a durable home for the full event map.
type StoreInterface interface {
	// Load returns the last successfully saved snapshot. A missing or
	// corrupt backing store yields an empty snapshot, never an error.
	Load() model.Snapshot

	// Save atomically replaces the persisted snapshot. On error the
	// previous snapshot remains the durable value.
	Save(snap model.Snapshot) error

	// Close releases backend resources.
	Close() error
}

// Compile-time checks that both backends implement StoreInterface.
var (
	_ StoreInterface = (*FileStore)(nil)
	_ StoreInterface = (*SQLiteStore)(nil)
)
