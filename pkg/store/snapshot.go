package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"portmap-ai/pkg/model"
)

// NopSnapshotter keeps no state; used for in-memory only registries.
type NopSnapshotter struct{}

func (NopSnapshotter) Load() (model.State, error) { return model.State{}, nil }
func (NopSnapshotter) Save(model.State) error     { return nil }

// FileSnapshotter stores state as an indented JSON document.
type FileSnapshotter struct {
	Path string
}

func NewFileSnapshotter(path string) *FileSnapshotter {
	return &FileSnapshotter{Path: path}
}

// Load returns an empty state when the file does not exist yet.
func (f *FileSnapshotter) Load() (model.State, error) {
	var st model.State
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	if len(b) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(b, &st); err != nil {
		return st, fmt.Errorf("decode %s: %w", f.Path, err)
	}
	return st, nil
}

// Save writes to a temp file in the same directory and renames it into place.
func (f *FileSnapshotter) Save(st model.State) error {
	if st.Nodes == nil {
		st.Nodes = map[string]model.Node{}
	}
	if st.Commands == nil {
		st.Commands = map[string][]model.Command{}
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.Path)
}
