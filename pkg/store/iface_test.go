package store

import (
	"path/filepath"
	"testing"

	"github.com/daviddao/calsync/pkg/model"
)

// TestBackendsImplementInterface drives both backends through
// StoreInterface with the same sequence and expects the same results.
func TestBackendsImplementInterface(t *testing.T) {
	for _, kind := range []string{KindFile, KindSQLite} {
		t.Run(kind, func(t *testing.T) {
			var iface StoreInterface
			iface, err := Open(kind, filepath.Join(t.TempDir(), "events"))
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer iface.Close()

			if snap := iface.Load(); len(snap) != 0 {
				t.Fatalf("expected empty store, got %d records", len(snap))
			}

			snap := model.Snapshot{
				"a": {ID: "a", Title: "A", UpdatedAt: 1},
				"b": model.Tombstone("b", 2),
			}
			if err := iface.Save(snap); err != nil {
				t.Fatalf("Save: %v", err)
			}

			got := iface.Load()
			if len(got) != 2 {
				t.Fatalf("expected 2 records, got %d", len(got))
			}
			if got.Active() != 1 {
				t.Errorf("expected 1 active record, got %d", got.Active())
			}
			if got["a"].Title != "A" {
				t.Errorf("record a title = %q", got["a"].Title)
			}
		})
	}
}
