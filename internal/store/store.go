// Package store tracks per-model readiness manifests on disk. The
// manifest is the single source of truth for "is this model downloaded";
// readiness is never inferred from the mere existence of model files.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/example/go-speech-models/internal/model"
)

const manifestName = "manifest.json"

// Store reads and writes manifests under <dataDir>/models/<category>/<id>/.
// Each model owns one directory holding its manifest next to either the
// extracted file set (archive models) or the single model file.
type Store struct {
	dataDir string
}

func New(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

// ModelDir returns the directory owning the model's files and manifest.
func (s *Store) ModelDir(cat model.Category, id string) string {
	return filepath.Join(s.dataDir, "models", string(cat), id)
}

// ManifestPath returns the manifest location for a model.
func (s *Store) ManifestPath(cat model.Category, id string) string {
	return filepath.Join(s.ModelDir(cat, id), manifestName)
}

// TempDir returns the staging area for in-flight downloads of a category.
// Temp artifacts never live inside a model dir, so a crash mid-download
// cannot leave bytes where a manifest-less model dir would be confusing.
func (s *Store) TempDir(cat model.Category) string {
	return filepath.Join(s.dataDir, "tmp", string(cat))
}

// Read returns the manifest for (cat, id). Absence is reported with ok ==
// false, not an error; a corrupt manifest reads as absent.
func (s *Store) Read(cat model.Category, id string) (model.Manifest, bool) {
	b, err := os.ReadFile(s.ManifestPath(cat, id))
	if err != nil {
		return model.Manifest{}, false
	}
	var m model.Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return model.Manifest{}, false
	}
	return m, true
}

// Write persists a manifest atomically (write-temp-then-rename), creating
// the model dir if needed.
func (s *Store) Write(m model.Manifest) error {
	dir := s.ModelDir(m.Category, m.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	tmp := filepath.Join(dir, manifestName+".tmp")
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, manifestName)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("move manifest into place: %w", err)
	}
	return nil
}

// IsReady reports whether the model's manifest exists and is ready.
func (s *Store) IsReady(cat model.Category, id string) bool {
	m, ok := s.Read(cat, id)
	return ok && m.Ready
}

// LocalPath returns the manifest's local path only when the model is
// ready; callers must never receive a path to an incomplete model.
func (s *Store) LocalPath(cat model.Category, id string) (string, bool) {
	m, ok := s.Read(cat, id)
	if !ok || !m.Ready {
		return "", false
	}
	return m.LocalPath, true
}

// ListReady returns the manifests of all ready models in a category,
// sorted by id. Models with missing or not-ready manifests are skipped.
func (s *Store) ListReady(cat model.Category) ([]model.Manifest, error) {
	root := filepath.Join(s.dataDir, "models", string(cat))
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read models dir: %w", err)
	}

	var out []model.Manifest
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if m, ok := s.Read(cat, e.Name()); ok && m.Ready {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Touch records model use for cache-eviction heuristics. Best effort; a
// failed touch never affects readiness.
func (s *Store) Touch(cat model.Category, id string) {
	m, ok := s.Read(cat, id)
	if !ok {
		return
	}
	m.LastUsed = time.Now().UTC()
	_ = s.Write(m)
}

// Delete removes the model's manifest and backing files. Deleting a model
// that does not exist is a no-op, matching download's idempotence.
func (s *Store) Delete(cat model.Category, id string) error {
	if err := os.RemoveAll(s.ModelDir(cat, id)); err != nil {
		return fmt.Errorf("remove model dir: %w", err)
	}
	return nil
}
