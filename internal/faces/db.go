package faces

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// DB holds the known-face embeddings, keyed by person name. Each name
// can carry several sample vectors; matching succeeds if any sample is
// within tolerance. The whole set is persisted as one JSON file.
type DB struct {
	path string

	mu    sync.RWMutex
	faces map[string][][]float32
}

// OpenDB loads the face database from path, starting empty when the
// file does not exist yet.
func OpenDB(path string) (*DB, error) {
	db := &DB{
		path:  path,
		faces: make(map[string][][]float32),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return db, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read face database: %w", err)
	}
	if err := json.Unmarshal(data, &db.faces); err != nil {
		return nil, fmt.Errorf("failed to parse face database: %w", err)
	}
	return db, nil
}

// Register appends sample vectors for a name and persists.
func (db *DB) Register(name string, encodings [][]float32) error {
	if name == "" {
		return fmt.Errorf("face name must not be empty")
	}
	if len(encodings) == 0 {
		return fmt.Errorf("no encodings to register for %q", name)
	}

	db.mu.Lock()
	db.faces[name] = append(db.faces[name], encodings...)
	db.mu.Unlock()

	return db.save()
}

// Remove deletes all samples for a name and persists.
func (db *DB) Remove(name string) error {
	db.mu.Lock()
	_, ok := db.faces[name]
	delete(db.faces, name)
	db.mu.Unlock()

	if !ok {
		return fmt.Errorf("no face registered under %q", name)
	}
	return db.save()
}

// Names lists the registered identities in sorted order.
func (db *DB) Names() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	names := make([]string, 0, len(db.faces))
	for name := range db.faces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SampleCount returns the number of stored vectors for a name.
func (db *DB) SampleCount(name string) int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.faces[name])
}

// Snapshot returns a copy of the full name -> samples map. The vectors
// themselves are shared and must not be mutated by callers.
func (db *DB) Snapshot() map[string][][]float32 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make(map[string][][]float32, len(db.faces))
	for name, samples := range db.faces {
		cp := make([][]float32, len(samples))
		copy(cp, samples)
		out[name] = cp
	}
	return out
}

func (db *DB) save() error {
	db.mu.RLock()
	data, err := json.MarshalIndent(db.faces, "", "  ")
	db.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode face database: %w", err)
	}
	if err := os.WriteFile(db.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write face database: %w", err)
	}
	return nil
}
