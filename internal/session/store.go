// Package session persists the operator's credentials and last-used school
// between invocations so repeat runs can skip the sign-in questions.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Record is the durable per-machine session. Either every field is present or
// the file is absent; partial records are never written.
type Record struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Environment string `json:"environment"`
	SchoolID    string `json:"schoolId"`
}

// Complete reports whether the record carries reusable credentials.
func (r Record) Complete() bool {
	return strings.TrimSpace(r.Email) != "" && strings.TrimSpace(r.Password) != ""
}

// Store reads and writes the session record at a fixed path.
type Store struct {
	path string
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the file backing this store.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted record. A missing or unreadable file counts as "no
// prior session" and reports ok=false without an error.
func (s *Store) Load() (Record, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("session: read %s: %w", s.path, err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		// Corrupt sessions are discarded, not fatal.
		return Record{}, false, nil
	}
	if !record.Complete() {
		return Record{}, false, nil
	}
	return record, true, nil
}

// Save overwrites the session record. The wizard treats a failure here as
// non-fatal, so Save only reports the error.
func (s *Store) Save(record Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("session: ensure dir: %w", err)
	}
	encoded, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := os.WriteFile(s.path, append(encoded, '\n'), 0o600); err != nil {
		return fmt.Errorf("session: write %s: %w", s.path, err)
	}
	return nil
}
