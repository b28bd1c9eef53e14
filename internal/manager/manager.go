// Package manager orchestrates the model lifecycle: registry resolution,
// resumable verified downloads, archive extraction, readiness manifests
// and deletion. It owns the retry policy and the at-most-one-in-flight-
// operation-per-model invariant.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/example/go-speech-models/internal/extract"
	"github.com/example/go-speech-models/internal/model"
	"github.com/example/go-speech-models/internal/registry"
	"github.com/example/go-speech-models/internal/store"
	"github.com/example/go-speech-models/internal/transport"
	"github.com/example/go-speech-models/internal/verify"
)

// DefaultMaxRetries bounds transient-failure retries per download.
const DefaultMaxRetries = 3

// Options wires a Manager's collaborators. Registry, Fetcher and Store are
// required; a nil Extractor means archive support is absent in this build.
type Options struct {
	Registry  *registry.Store
	Fetcher   *transport.Fetcher
	Extractor extract.Extractor
	Store     *store.Store
	Logger    *slog.Logger

	// CacheTTL governs implicit registry refreshes during resolution.
	CacheTTL time.Duration

	// MaxRetries is the default transient-retry limit per download.
	MaxRetries int
}

type Manager struct {
	reg       *registry.Store
	fetcher   *transport.Fetcher
	extractor extract.Extractor
	store     *store.Store
	logger    *slog.Logger
	bus       *Bus

	cacheTTL   time.Duration
	maxRetries int

	mu       sync.Mutex
	inflight map[Key]*operation
}

// operation is one in-flight download. Concurrent calls for the same key
// attach to it instead of starting a duplicate transfer.
type operation struct {
	done chan struct{}
	res  DownloadResult
	err  error
}

// DownloadOptions configures a single Download call.
type DownloadOptions struct {
	OnProgress func(model.Progress)

	// Overwrite re-fetches a model that is already ready.
	Overwrite bool

	// MaxRetries overrides the manager default when positive; a negative
	// value disables retries entirely. Zero means "use the default".
	MaxRetries int
}

// DownloadResult is the terminal outcome of a successful download.
type DownloadResult struct {
	ID        string
	LocalPath string
}

func New(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ext := opts.Extractor
	if ext == nil {
		ext = extract.Disabled()
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = registry.DefaultTTL
	}

	m := &Manager{
		reg:        opts.Registry,
		fetcher:    opts.Fetcher,
		extractor:  ext,
		store:      opts.Store,
		logger:     logger,
		bus:        NewBus(),
		cacheTTL:   ttl,
		maxRetries: maxRetries,
		inflight:   make(map[Key]*operation),
	}
	m.reg.OnUpdate = m.bus.publishRegistryUpdated
	return m
}

// Events exposes the progress/registry-updated subscription surface.
func (m *Manager) Events() *Bus { return m.bus }

// ExtractorAvailable reports whether this build can install archive
// models. Callers can warn before starting an archive download.
func (m *Manager) ExtractorAvailable() bool { return m.extractor.Available() }

// RefreshModels refreshes the category's registry snapshot (subject to
// TTL) and returns the resulting model list.
func (m *Manager) RefreshModels(ctx context.Context, cat model.Category, opts registry.RefreshOptions) ([]model.Meta, error) {
	if opts.TTL <= 0 {
		opts.TTL = m.cacheTTL
	}
	snap, err := m.reg.Refresh(ctx, cat, opts)
	if err != nil {
		return nil, err
	}
	return snap.Models, nil
}

// ListModels returns the cached model list without any I/O beyond the
// snapshot file.
func (m *Manager) ListModels(cat model.Category) []model.Meta {
	return m.reg.List(cat)
}

// ListDownloaded returns metadata for every ready model in the category.
// Models whose id has left the registry since download are synthesized
// from their manifest so they remain visible and deletable.
func (m *Manager) ListDownloaded(cat model.Category) ([]model.Meta, error) {
	manifests, err := m.store.ListReady(cat)
	if err != nil {
		return nil, err
	}

	var out []model.Meta
	for _, man := range manifests {
		if meta, ok := m.reg.GetByID(cat, man.ID); ok {
			out = append(out, meta)
			continue
		}
		out = append(out, model.Meta{
			ID:          man.ID,
			DisplayName: man.ID,
			Subtype:     model.Unknown,
			Quant:       model.Unknown,
			SizeTier:    model.Unknown,
		})
	}
	return out, nil
}

// IsDownloaded reports manifest-backed readiness.
func (m *Manager) IsDownloaded(cat model.Category, id string) bool {
	return m.store.IsReady(cat, id)
}

// GetLocalPath returns the local path for a ready model; ok is false for
// absent or incomplete models so callers never hand the inference engine
// a partial artifact.
func (m *Manager) GetLocalPath(cat model.Category, id string) (string, bool) {
	path, ok := m.store.LocalPath(cat, id)
	if ok {
		m.store.Touch(cat, id)
	}
	return path, ok
}

// Delete removes a model's manifest and files. Idempotent: deleting a
// model that was never downloaded is a no-op.
func (m *Manager) Delete(cat model.Category, id string) error {
	return m.store.Delete(cat, id)
}

// ClearCache removes the category's registry snapshot.
func (m *Manager) ClearCache(cat model.Category) error {
	return m.reg.Clear(cat)
}

// Download fetches, verifies and (for archives) extracts one model, then
// marks it ready. Repeated calls for a ready model are cheap no-ops; a
// concurrent call for the same (category, id) joins the in-flight
// operation rather than duplicating the transfer.
func (m *Manager) Download(ctx context.Context, cat model.Category, id string, opts DownloadOptions) (DownloadResult, error) {
	snap, meta, err := m.resolve(ctx, cat, id)
	if err != nil {
		return DownloadResult{}, err
	}

	if !opts.Overwrite {
		if path, ok := m.store.LocalPath(cat, id); ok {
			return DownloadResult{ID: id, LocalPath: path}, nil
		}
	}

	key := Key{Category: cat, ID: id}

	m.mu.Lock()
	if op, ok := m.inflight[key]; ok {
		m.mu.Unlock()
		return m.join(ctx, op, cat, id, opts)
	}
	op := &operation{done: make(chan struct{})}
	m.inflight[key] = op
	m.bus.begin(key)
	m.mu.Unlock()

	var unsub func()
	if opts.OnProgress != nil {
		unsub = m.bus.SubscribeProgress(cat, id, opts.OnProgress)
	}

	op.res, op.err = m.install(ctx, snap, meta, opts)
	m.finish(key, op)

	if unsub != nil {
		unsub()
	}
	return op.res, op.err
}

// join attaches a second caller to an in-flight operation. The joiner
// observes the shared operation's progress and final result; its own ctx
// only governs how long it waits.
func (m *Manager) join(ctx context.Context, op *operation, cat model.Category, id string, opts DownloadOptions) (DownloadResult, error) {
	var unsub func()
	if opts.OnProgress != nil {
		unsub = m.bus.SubscribeProgress(cat, id, opts.OnProgress)
		defer unsub()
	}
	select {
	case <-op.done:
		return op.res, op.err
	case <-ctx.Done():
		return DownloadResult{}, ctx.Err()
	}
}

// finish publishes the terminal event, releases the in-flight slot and
// wakes joiners, in that order, so the terminal event is always the last
// one delivered for the operation.
func (m *Manager) finish(key Key, op *operation) {
	switch {
	case op.err == nil:
		m.bus.publish(model.Progress{
			Category: key.Category, ID: key.ID,
			Percent: 100, Phase: PhaseDone,
		})
	case errors.Is(op.err, context.Canceled) || errors.Is(op.err, context.DeadlineExceeded):
		m.bus.publish(model.Progress{Category: key.Category, ID: key.ID, Phase: PhaseCanceled})
	default:
		m.bus.publish(model.Progress{Category: key.Category, ID: key.ID, Phase: PhaseFailed})
	}

	m.mu.Lock()
	delete(m.inflight, key)
	m.mu.Unlock()
	close(op.done)
}

// resolve looks the id up in the category snapshot, refreshing first when
// no snapshot exists at all.
func (m *Manager) resolve(ctx context.Context, cat model.Category, id string) (model.Snapshot, model.Meta, error) {
	snap, ok := m.reg.Snapshot(cat)
	if !ok {
		var err error
		snap, err = m.reg.Refresh(ctx, cat, registry.RefreshOptions{TTL: m.cacheTTL})
		if err != nil {
			return model.Snapshot{}, model.Meta{}, err
		}
	}
	meta, ok := snap.Get(id)
	if !ok {
		return model.Snapshot{}, model.Meta{}, fmt.Errorf("%s/%s: %w", cat, id, model.ErrModelNotFound)
	}
	return snap, meta, nil
}

// install runs the phase sequence for one operation:
// download → verify → extract/place → manifest. Any failure leaves no
// manifest and no final-path artifact, so a user retry needs no cleanup.
func (m *Manager) install(ctx context.Context, snap model.Snapshot, meta model.Meta, opts DownloadOptions) (DownloadResult, error) {
	cat := snap.Category

	// Archive downloads are pointless without an extractor; fail before
	// moving any bytes. This is a build-configuration condition callers
	// should not retry.
	if meta.IsArchive() && !m.extractor.Available() {
		return DownloadResult{}, fmt.Errorf("%s/%s: %w", cat, meta.ID, model.ErrExtractionUnavailable)
	}

	tempDir := m.store.TempDir(cat)
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return DownloadResult{}, fmt.Errorf("create temp dir: %w", err)
	}

	need := requiredBytes(meta)
	if free := freeBytes(tempDir); free >= 0 && need > 0 && free < need {
		return DownloadResult{}, fmt.Errorf("%s/%s: need %d bytes, %d free: %w",
			cat, meta.ID, need, free, model.ErrInsufficientStorage)
	}

	tmp := filepath.Join(tempDir, meta.FileName+".partial")
	cleanup := func() { _ = os.Remove(tmp) }

	emit := m.progressEmitter(cat, meta)

	maxRetries := m.maxRetries
	switch {
	case opts.MaxRetries > 0:
		maxRetries = opts.MaxRetries
	case opts.MaxRetries < 0:
		maxRetries = 0
	}

	err := transport.Retry(ctx, maxRetries, func(attempt int) error {
		if attempt > 0 {
			m.logger.Info("retrying download", "model", meta.ID, "attempt", attempt)
		}
		return m.fetcher.Fetch(ctx, meta.DownloadURL, tmp, transport.FetchOptions{
			// The first retry resumes the partial temp file instead of
			// restarting the transfer from scratch.
			Resume: attempt > 0,
			OnProgress: func(written, total int64) {
				emit(PhaseDownload, written, total)
			},
		})
	})
	if err != nil {
		cleanup()
		return DownloadResult{}, err
	}

	// Verification runs to completion even when cancellation arrives
	// during it; the hash is cheap relative to tearing down mid-digest.
	if digest := snap.Digest(meta); digest != "" {
		emit(PhaseVerify, meta.Bytes, meta.Bytes)
		if err := verify.Check(tmp, digest); err != nil {
			cleanup()
			return DownloadResult{}, fmt.Errorf("%s/%s: %w", cat, meta.ID, err)
		}
	} else {
		m.logger.Debug("no digest published, skipping verification", "model", meta.ID)
	}

	if err := ctx.Err(); err != nil {
		cleanup()
		return DownloadResult{}, err
	}

	if meta.IsArchive() {
		return m.placeArchive(ctx, cat, meta, tmp, cleanup, emit)
	}
	return m.placeFile(cat, meta, tmp, cleanup)
}

// placeArchive extracts into a staging directory, validates the file set
// and swaps the result into the model dir, so a ready model is only ever
// replaced by a complete one.
func (m *Manager) placeArchive(ctx context.Context, cat model.Category, meta model.Meta, tmp string, cleanup func(), emit emitFunc) (DownloadResult, error) {
	staging := strings.TrimSuffix(tmp, ".partial") + ".extract"
	_ = os.RemoveAll(staging)

	emit(PhaseExtract, meta.Bytes, meta.Bytes)
	files, err := m.extractor.Extract(ctx, tmp, staging, func(string) {
		emit(PhaseExtract, meta.Bytes, meta.Bytes)
	})
	if err != nil {
		cleanup()
		_ = os.RemoveAll(staging)
		if ctx.Err() != nil {
			return DownloadResult{}, ctx.Err()
		}
		return DownloadResult{}, fmt.Errorf("%s/%s: %w: %v", cat, meta.ID, model.ErrExtractionFailed, err)
	}

	if err := requiredFilesPresent(cat, files); err != nil {
		cleanup()
		_ = os.RemoveAll(staging)
		return DownloadResult{}, fmt.Errorf("%s/%s: %w", cat, meta.ID, err)
	}

	modelDir := m.store.ModelDir(cat, meta.ID)
	if err := m.store.Delete(cat, meta.ID); err != nil {
		cleanup()
		_ = os.RemoveAll(staging)
		return DownloadResult{}, err
	}
	if err := os.MkdirAll(filepath.Dir(modelDir), 0o755); err != nil {
		cleanup()
		_ = os.RemoveAll(staging)
		return DownloadResult{}, fmt.Errorf("create category dir: %w", err)
	}
	if err := os.Rename(staging, modelDir); err != nil {
		cleanup()
		_ = os.RemoveAll(staging)
		return DownloadResult{}, fmt.Errorf("move extracted model into place: %w", err)
	}
	cleanup()

	now := time.Now().UTC()
	man := model.Manifest{
		ID:           meta.ID,
		Category:     cat,
		DownloadedAt: now,
		ExtractedAt:  &now,
		LocalPath:    modelDir,
		FileList:     files,
		Ready:        true,
	}
	if err := m.store.Write(man); err != nil {
		_ = os.RemoveAll(modelDir)
		return DownloadResult{}, err
	}
	return DownloadResult{ID: meta.ID, LocalPath: modelDir}, nil
}

// placeFile renames the verified temp file to its final path.
func (m *Manager) placeFile(cat model.Category, meta model.Meta, tmp string, cleanup func()) (DownloadResult, error) {
	if err := m.store.Delete(cat, meta.ID); err != nil {
		cleanup()
		return DownloadResult{}, err
	}
	modelDir := m.store.ModelDir(cat, meta.ID)
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		cleanup()
		return DownloadResult{}, fmt.Errorf("create model dir: %w", err)
	}

	final := filepath.Join(modelDir, meta.FileName)
	if err := os.Rename(tmp, final); err != nil {
		cleanup()
		return DownloadResult{}, fmt.Errorf("move model file into place: %w", err)
	}

	man := model.Manifest{
		ID:           meta.ID,
		Category:     cat,
		DownloadedAt: time.Now().UTC(),
		LocalPath:    final,
		Ready:        true,
	}
	if err := m.store.Write(man); err != nil {
		_ = os.RemoveAll(modelDir)
		return DownloadResult{}, err
	}
	return DownloadResult{ID: meta.ID, LocalPath: final}, nil
}

// requiredBytes estimates the peak disk need of an install. The archive
// and its extracted tree coexist until the staging swap, and extraction
// roughly doubles the footprint.
func requiredBytes(meta model.Meta) int64 {
	if meta.IsArchive() {
		return meta.Bytes * 2
	}
	return meta.Bytes
}

type emitFunc func(phase string, written, total int64)

// progressEmitter returns a publish closure that fills in percent and a
// windowed transfer speed.
func (m *Manager) progressEmitter(cat model.Category, meta model.Meta) emitFunc {
	var mu sync.Mutex
	lastT := time.Now()
	var lastBytes int64
	var speed float64

	return func(phase string, written, total int64) {
		if total <= 0 {
			total = meta.Bytes
		}
		percent := float64(-1)
		if total > 0 {
			percent = float64(written) * 100 / float64(total)
			if percent > 100 {
				percent = 100
			}
		}

		mu.Lock()
		now := time.Now()
		if dt := now.Sub(lastT).Seconds(); dt >= 0.5 {
			speed = float64(written-lastBytes) / dt
			lastT, lastBytes = now, written
		}
		s := speed
		mu.Unlock()

		m.bus.publish(model.Progress{
			Category:        cat,
			ID:              meta.ID,
			BytesDownloaded: written,
			TotalBytes:      total,
			Percent:         percent,
			Speed:           s,
			Phase:           phase,
		})
	}
}

// requiredFilesPresent validates the category-specific file set of an
// extracted archive. Synthesis bundles ship the network plus its token
// table; recognition bundles always carry at least one network file.
func requiredFilesPresent(cat model.Category, files []string) error {
	hasONNX := false
	hasTokens := false
	for _, f := range files {
		base := filepath.Base(f)
		if strings.HasSuffix(base, ".onnx") {
			hasONNX = true
		}
		if base == "tokens.txt" {
			hasTokens = true
		}
	}

	switch cat {
	case model.CategoryTTS:
		if !hasONNX || !hasTokens {
			return fmt.Errorf("%w: need a .onnx network and tokens.txt", model.ErrIncompleteModel)
		}
	case model.CategorySTT:
		if !hasONNX {
			return fmt.Errorf("%w: need at least one .onnx network", model.ErrIncompleteModel)
		}
	default:
		if len(files) == 0 {
			return fmt.Errorf("%w: archive contained no files", model.ErrIncompleteModel)
		}
	}
	return nil
}
