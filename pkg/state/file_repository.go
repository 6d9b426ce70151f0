package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
)

const stateFileName = "weir-state.json"

// FileRepository implements Repository with a JSON file, written via a
// temp file and rename so a crash never leaves a torn state file.
type FileRepository struct {
	dir string
}

// NewFileRepository creates a FileRepository storing state under dir.
func NewFileRepository(dir string) *FileRepository {
	return &FileRepository{dir: dir}
}

// Load reads the state file. A missing file is an empty state, not an
// error.
func (r *FileRepository) Load(ctx context.Context) (State, error) {
	data, err := os.ReadFile(r.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return State{}, err
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, err
	}
	return st, nil
}

// Save writes the state atomically.
func (r *FileRepository) Save(ctx context.Context, st State) error {
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}

	tmp := r.Path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, r.Path())
}

// Path returns the full path of the state file.
func (r *FileRepository) Path() string {
	return filepath.Join(r.dir, stateFileName)
}

var _ Repository = (*FileRepository)(nil)
