package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/daviddao/calsync/pkg/model"
)

// document is the on-disk layout: {"events": {"<id>": Event}}.
type document struct {
	Events model.Snapshot `json:"events"`
}

// FileStore persists the snapshot as a single JSON document. Saves go to a
// temp file in the same directory and are published with os.Rename, so a
// concurrent reader sees either the old document or the new one.
type FileStore struct {
	path string

	// write fills the temp file; replaced in tests to force failures.
	write func(f *os.File, data []byte) error
}

// NewFile returns a FileStore at path, creating the parent directory.
func NewFile(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("store: empty file path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{path: path, write: writeAll}, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load reads the document. Anything other than an object with an "events"
// object yields an empty snapshot.
func (s *FileStore) Load() model.Snapshot {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return model.Snapshot{}
	}
	return decodeDocument(data)
}

// Save writes snap to a temp file, syncs it and renames it over the
// backing file.
func (s *FileStore) Save(snap model.Snapshot) error {
	if snap == nil {
		snap = model.Snapshot{}
	}
	data, err := json.MarshalIndent(document{Events: snap}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	fail := func(err error) error {
		f.Close()
		os.Remove(tmp)
		return err
	}

	if err := s.write(f, data); err != nil {
		return fail(fmt.Errorf("write %s: %w", tmp, err))
	}
	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("sync %s: %w", tmp, err))
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish %s: %w", s.path, err)
	}
	return nil
}

// Close is a no-op; FileStore holds no open handles between calls.
func (s *FileStore) Close() error { return nil }

func writeAll(f *os.File, data []byte) error {
	_, err := f.Write(data)
	return err
}

// decodeDocument drops records that fail to decode. A record's key is
// authoritative for its id.
func decodeDocument(data []byte) model.Snapshot {
	snap := model.Snapshot{}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return snap
	}
	raw, ok := top["events"]
	if !ok {
		return snap
	}
	var records map[string]json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return snap
	}
	for id, r := range records {
		var e model.Event
		if id == "" {
			continue
		}
		if err := json.Unmarshal(r, &e); err != nil {
			continue
		}
		e.ID = id
		snap[id] = e
	}
	return snap
}
