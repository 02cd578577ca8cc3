package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/apexfest/checkin/internal/model"
)

// DefaultDir returns the directory queues are kept in when none is configured
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to find home directory: %w", err)
	}
	return filepath.Join(home, ".checkin"), nil
}

// FileStore keeps one host's queue as a JSON file
type FileStore struct {
	path string
}

// NewFileStore returns a store for hostID's queue under dir
func NewFileStore(dir string, hostID model.HostID) *FileStore {
	return &FileStore{path: filepath.Join(dir, "queue-"+string(hostID)+".json")}
}

// Path returns the file backing the store
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode queue %s: %w", s.path, err)
	}
	if state.Entries == nil {
		state.Entries = []Entry{}
	}
	return &state, nil
}

// Save writes state to a temporary file and renames it into place, so a
// crash never leaves a partial queue behind.
func (s *FileStore) Save(state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode queue: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".queue-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to save queue: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to save queue: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to save queue: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to save queue: %w", err)
	}
	return nil
}

func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to clear queue: %w", err)
	}
	return nil
}
