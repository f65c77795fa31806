// Package artifact lays out trained models on disk as
// {root}/{symbol}/{split}/model.json with a manifest next to it.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("artifact not found")

const (
	modelFile    = "model.json"
	manifestFile = "manifest.json"
)

type Manifest struct {
	Symbol      string    `json:"symbol"`
	Split       string    `json:"split"`
	Fingerprint string    `json:"fingerprint"`
	RunID       string    `json:"run_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

// Dir is the artifact directory for one (symbol, split) pair.
func (s *Store) Dir(symbol, split string) string {
	return filepath.Join(s.root, symbol, split)
}

func (s *Store) ModelPath(symbol, split string) string {
	return filepath.Join(s.Dir(symbol, split), modelFile)
}

// Exists reports whether an artifact directory is present. Its existence
// alone decides whether a split is loaded instead of trained.
func (s *Store) Exists(symbol, split string) bool {
	info, err := os.Stat(s.Dir(symbol, split))
	return err == nil && info.IsDir()
}

// WriteManifest records provenance for a freshly saved model. A missing
// RunID gets a new one and a zero CreatedAt becomes now.
func (s *Store) WriteManifest(m Manifest) error {
	if m.RunID == "" {
		m.RunID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	dir := s.Dir(m.Symbol, m.Split)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, manifestFile), b, 0o644)
}

func (s *Store) ReadManifest(symbol, split string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(filepath.Join(s.Dir(symbol, split), manifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return m, fmt.Errorf("%w: manifest for %s/%s", ErrNotFound, symbol, split)
	}
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("decode manifest %s/%s: %w", symbol, split, err)
	}
	return m, nil
}

// Stale reports whether the stored manifest disagrees with fingerprint.
// Artifacts without a manifest are never considered stale.
func (s *Store) Stale(symbol, split, fingerprint string) bool {
	m, err := s.ReadManifest(symbol, split)
	if err != nil {
		return false
	}
	return m.Fingerprint != fingerprint
}

func (s *Store) Remove(symbol, split string) error {
	return os.RemoveAll(s.Dir(symbol, split))
}

// Splits lists the stored split names for a symbol in lexical order.
func (s *Store) Splits(symbol string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, symbol))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
