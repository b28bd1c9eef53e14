package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/example/go-speech-models/internal/model"
)

// DefaultTTL governs how long a snapshot answers Refresh without a network
// call when the caller does not override it.
const DefaultTTL = time.Hour

// RefreshOptions configures a Refresh call.
type RefreshOptions struct {
	// Force bypasses the TTL check and always hits the network.
	Force bool

	// TTL overrides DefaultTTL when positive.
	TTL time.Duration
}

// Store is the registry cache: it serves listings from a persisted
// per-category snapshot and refreshes it through a Client. Refreshes are
// linearizable per category; concurrent callers join one in-flight fetch.
type Store struct {
	dataDir string
	client  *Client
	logger  *slog.Logger

	// OnUpdate, when set, is called after a snapshot is replaced. Used
	// for registry-updated notifications.
	OnUpdate func(model.Category)

	mu       sync.Mutex
	cache    map[model.Category]model.Snapshot
	inflight map[model.Category]*refreshCall
}

type refreshCall struct {
	done chan struct{}
	snap model.Snapshot
	err  error
}

func NewStore(dataDir string, client *Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dataDir:  dataDir,
		client:   client,
		logger:   logger,
		cache:    make(map[model.Category]model.Snapshot),
		inflight: make(map[model.Category]*refreshCall),
	}
}

func (s *Store) snapshotPath(cat model.Category) string {
	return filepath.Join(s.dataDir, "registry", string(cat)+".json")
}

// load returns the current snapshot, reading it from disk on first use.
func (s *Store) load(cat model.Category) (model.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(cat)
}

func (s *Store) loadLocked(cat model.Category) (model.Snapshot, bool) {
	if snap, ok := s.cache[cat]; ok {
		return snap, true
	}
	b, err := os.ReadFile(s.snapshotPath(cat))
	if err != nil {
		return model.Snapshot{}, false
	}
	var snap model.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		s.logger.Warn("discarding corrupt registry snapshot", "category", cat, "error", err)
		return model.Snapshot{}, false
	}
	s.cache[cat] = snap
	return snap, true
}

// List returns the last snapshot's models, or nil when none exists. Never
// triggers network I/O.
func (s *Store) List(cat model.Category) []model.Meta {
	snap, ok := s.load(cat)
	if !ok {
		return nil
	}
	return snap.Models
}

// GetByID looks a model up in the last snapshot. Absence is an expected
// case (stale id) and is reported with ok == false.
func (s *Store) GetByID(cat model.Category, id string) (model.Meta, bool) {
	snap, ok := s.load(cat)
	if !ok {
		return model.Meta{}, false
	}
	return snap.Get(id)
}

// Snapshot returns the full current snapshot for a category.
func (s *Store) Snapshot(cat model.Category) (model.Snapshot, bool) {
	return s.load(cat)
}

// Clear deletes the persisted snapshot; subsequent List calls return
// nothing until the next Refresh.
func (s *Store) Clear(cat model.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, cat)
	if err := os.Remove(s.snapshotPath(cat)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}

// Refresh returns a fresh snapshot for the category.
//
// A non-expired snapshot short-circuits the network unless Force is set.
// On network failure with a stale snapshot available, the stale data is
// returned with a logged warning rather than an error; with no snapshot at
// all, the failure surfaces as model.ErrRegistryUnavailable. Concurrent
// Refresh calls for the same category join one in-flight fetch.
func (s *Store) Refresh(ctx context.Context, cat model.Category, opts RefreshOptions) (model.Snapshot, error) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	if !opts.Force {
		if snap, ok := s.loadLocked(cat); ok && !snap.Expired(ttl, time.Now()) {
			s.mu.Unlock()
			return snap, nil
		}
	}

	if call, ok := s.inflight[cat]; ok {
		s.mu.Unlock()
		select {
		case <-call.done:
			return call.snap, call.err
		case <-ctx.Done():
			return model.Snapshot{}, ctx.Err()
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	s.inflight[cat] = call
	s.mu.Unlock()

	call.snap, call.err = s.doRefresh(ctx, cat)
	close(call.done)

	s.mu.Lock()
	delete(s.inflight, cat)
	s.mu.Unlock()

	return call.snap, call.err
}

func (s *Store) doRefresh(ctx context.Context, cat model.Category) (model.Snapshot, error) {
	assets, err := s.client.FetchListing(ctx, cat)
	if err != nil {
		if ctx.Err() != nil {
			return model.Snapshot{}, ctx.Err()
		}
		if snap, ok := s.load(cat); ok {
			s.logger.Warn("registry refresh failed, serving stale snapshot",
				"category", cat, "age", time.Since(snap.LastUpdated).Round(time.Second), "error", err)
			return snap, nil
		}
		return model.Snapshot{}, fmt.Errorf("%w: %v", model.ErrRegistryUnavailable, err)
	}

	sums, err := s.client.FetchChecksums(ctx, cat)
	if err != nil {
		// Digest-less verification is a soft requirement; a broken
		// checksum listing must not block model discovery.
		s.logger.Warn("checksum listing unavailable", "category", cat, "error", err)
		sums = map[string]string{}
	}

	snap := model.Snapshot{
		Category:    cat,
		LastUpdated: time.Now().UTC(),
		Checksums:   sums,
	}
	for _, a := range assets {
		m, ok := model.Classify(cat, a)
		if !ok {
			s.logger.Debug("skipping unrecognized asset", "category", cat, "name", a.Name)
			continue
		}
		snap.Models = append(snap.Models, m)
	}

	if err := s.persist(snap); err != nil {
		return model.Snapshot{}, err
	}

	s.mu.Lock()
	s.cache[cat] = snap
	s.mu.Unlock()

	if s.OnUpdate != nil {
		s.OnUpdate(cat)
	}
	return snap, nil
}

// persist writes the snapshot with write-temp-then-rename semantics so a
// crash mid-write cannot corrupt the cache file.
func (s *Store) persist(snap model.Snapshot) error {
	path := s.snapshotPath(snap.Category)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}

	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("move snapshot into place: %w", err)
	}
	return nil
}
