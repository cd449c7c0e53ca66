package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// File is the on-disk form of a network.
type File struct {
	ID         string    `json:"id,omitempty"`
	Generation int       `json:"generation,omitempty"`
	Fitness    float64   `json:"fitness,omitempty"`
	Hidden     int       `json:"hidden"`
	Genome     []float64 `json:"genome"`
}

// SaveFile writes f as JSON via a temp file and rename so readers never
// see a partial file.
func SaveFile(path string, f *File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// LoadNetwork reads a File and builds its network.
func LoadNetwork(path string) (*Network, *File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	n, err := NewNetwork(f.Hidden, f.Genome)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", path, err)
	}
	return n, &f, nil
}
