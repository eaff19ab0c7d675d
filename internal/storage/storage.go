package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"etf_momentum/internal/models"
)

// DefaultStateFile is where day-state is kept unless configured otherwise.
const DefaultStateFile = "day_state.json"

// Store persists the current trading day's state to a single JSON file.
type Store struct {
	Path string
}

func New(path string) *Store {
	if path == "" {
		path = DefaultStateFile
	}
	return &Store{Path: path}
}

// Load returns the saved state for date (YYYY-MM-DD). A missing file, or a
// file from another day, yields nil: nothing carries over between days.
func (s *Store) Load(date string) (*models.DayState, error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var st models.DayState
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.Path, err)
	}
	if st.Date != date {
		log.Printf("Ignoring day-state from %s (today is %s)", st.Date, date)
		return nil, nil
	}

	if migrateState(&st) {
		log.Printf("INFO: Day-state migrated to version %s. Saving...", st.Version)
		if err := s.Save(st); err != nil {
			return nil, err
		}
	}
	return &st, nil
}

// migrateState handles schema evolution. Returns true if the state changed.
func migrateState(s *models.DayState) bool {
	updated := false

	// 1.0 -> 1.1: exit_attempted added. A 1.0 file that already reached the
	// close has POSITIONS_CLOSED or later as its state.
	if s.Version < "1.1" {
		switch s.State {
		case "POSITIONS_CLOSED", "SUMMARIZED", "DONE":
			s.ExitAttempted = true
		}
		s.Version = "1.1"
		updated = true
	}
	return updated
}

// Save writes the state atomically: temp file, fsync, rename.
func (s *Store) Save(st models.DayState) error {
	if st.Version == "" {
		st.Version = models.DayStateVersion
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal day-state: %w", err)
	}

	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmpFile := s.Path + ".tmp"
	f, err := os.Create(tmpFile)
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(b); err != nil {
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync temp state file: %w", err)
	}
	// Close before renaming (required on Windows)
	f.Close()

	if err := os.Rename(tmpFile, s.Path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
