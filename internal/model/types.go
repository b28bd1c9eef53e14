// Package model holds the domain types shared by the registry, download
// manager and local store: categories, model metadata, readiness manifests
// and progress reports, plus the error taxonomy and the asset-name
// classifier.
package model

import (
	"fmt"
	"time"
)

// Category partitions the registry namespace. Each category has its own
// snapshot file, remote listing and storage subtree.
type Category string

const (
	CategorySTT         Category = "stt"
	CategoryTTS         Category = "tts"
	CategoryVAD         Category = "vad"
	CategoryDiarization Category = "speaker-diarization"
	CategoryEnhancement Category = "speech-enhancement"
	CategorySeparation  Category = "source-separation"
)

// Categories lists all known categories in display order.
func Categories() []Category {
	return []Category{
		CategorySTT,
		CategoryTTS,
		CategoryVAD,
		CategoryDiarization,
		CategoryEnhancement,
		CategorySeparation,
	}
}

// ParseCategory validates a category string from user input.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Unknown is the sentinel value for derived metadata fields that could not
// be parsed from an asset name. Classification degrades to Unknown rather
// than rejecting the asset.
const Unknown = "unknown"

// Asset is a raw remote descriptor as delivered by the release listing.
type Asset struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	URL  string `json:"url"`

	// Digest is an optional vendor-declared SHA-256, used when the
	// registry has no dedicated checksum listing entry for this asset.
	Digest string `json:"digest,omitempty"`
}

// Meta describes one remote model asset after classification.
//
// ID is the asset filename minus its (archive or file) extension and is
// the join key between registry snapshots, local manifests and in-flight
// download state; it must be stable across refreshes for an unchanged
// asset.
type Meta struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	DownloadURL string `json:"download_url"`
	Bytes       int64  `json:"bytes"`

	// ArchiveExt is the archive suffix (".tar.bz2", ".tar.gz", ".zip")
	// when the model is distributed as an archive and must be extracted.
	// Empty for single-file models.
	ArchiveExt string `json:"archive_ext,omitempty"`

	// FileName is the exact remote filename, preserved so single-file
	// models keep their real extension on disk.
	FileName string `json:"file_name"`

	// RemoteDigest is a vendor-declared SHA-256, if any.
	RemoteDigest string `json:"remote_digest,omitempty"`

	// Derived, best-effort fields. Each falls back to Unknown.
	Subtype   string   `json:"subtype"`
	Languages []string `json:"languages,omitempty"`
	Quant     string   `json:"quant"`
	SizeTier  string   `json:"size_tier"`
}

// IsArchive reports whether the model requires extraction before use.
func (m Meta) IsArchive() bool { return m.ArchiveExt != "" }

// Snapshot is a persisted copy of a category's registry listing.
type Snapshot struct {
	Category    Category  `json:"category"`
	Models      []Meta    `json:"models"`
	LastUpdated time.Time `json:"last_updated"`

	// Checksums maps asset filenames to SHA-256 digests from the
	// registry's checksum listing, when one was published.
	Checksums map[string]string `json:"checksums,omitempty"`
}

// Digest returns the preferred digest for a model: the registry checksum
// listing entry first, falling back to the vendor-declared digest. Empty
// when neither exists, in which case verification is skipped.
func (s Snapshot) Digest(m Meta) string {
	if d, ok := s.Checksums[m.FileName]; ok && d != "" {
		return d
	}
	return m.RemoteDigest
}

// Expired reports whether the snapshot is older than ttl.
func (s Snapshot) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(s.LastUpdated) > ttl
}

// Get performs an ID lookup within the snapshot. Absence is an expected
// case (stale id), so it is reported with an ok bool rather than an error.
func (s Snapshot) Get(id string) (Meta, bool) {
	for _, m := range s.Models {
		if m.ID == id {
			return m, true
		}
	}
	return Meta{}, false
}

// Manifest is the persisted per-model readiness record. It is the single
// source of truth for "is this model downloaded": readiness is never
// inferred from directory existence.
type Manifest struct {
	ID           string     `json:"id"`
	Category     Category   `json:"category"`
	DownloadedAt time.Time  `json:"downloaded_at"`
	ExtractedAt  *time.Time `json:"extracted_at,omitempty"`

	// LocalPath is a directory for archive models and a file path for
	// single-file models.
	LocalPath string `json:"local_path"`

	// FileList records the files produced by extraction, for
	// post-extraction completeness validation. Empty for single-file
	// models.
	FileList []string `json:"file_list,omitempty"`

	// Ready is true only after every applicable phase (download, verify,
	// extract, validate) has completed.
	Ready bool `json:"ready"`

	LastUsed time.Time `json:"last_used,omitempty"`
}

// Progress is a transient report emitted during an in-flight download.
type Progress struct {
	Category        Category
	ID              string
	BytesDownloaded int64
	TotalBytes      int64

	// Percent is in [0,100]; -1 when TotalBytes is unknown.
	Percent float64

	// Speed is bytes/second over the recent window; 0 when unknown.
	Speed float64

	// Phase is one of "download", "verify", "extract", "done", "failed",
	// "canceled".
	Phase string
}
