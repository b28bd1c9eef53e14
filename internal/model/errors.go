package model

import "errors"

// Sentinel errors for the download manager. Check with errors.Is; all of
// these (except the transport layer's transient class) are terminal and
// must not be retried, because retrying cannot change the outcome.
var (
	// ErrRegistryUnavailable indicates a registry refresh failed and no
	// cached snapshot exists to fall back on.
	ErrRegistryUnavailable = errors.New("models: registry unavailable and no cached snapshot")

	// ErrModelNotFound indicates the id is absent from the category's
	// current snapshot.
	ErrModelNotFound = errors.New("models: model not found in registry")

	// ErrChecksumMismatch indicates downloaded bytes failed digest
	// verification. The offending file is removed before this surfaces.
	ErrChecksumMismatch = errors.New("models: checksum mismatch")

	// ErrExtractionUnavailable indicates the build has no extractor, so
	// archive models cannot be installed. This is a build-configuration
	// condition, distinct from an extraction failure.
	ErrExtractionUnavailable = errors.New("models: archive extraction not available in this build")

	// ErrExtractionFailed indicates the extractor ran and failed.
	ErrExtractionFailed = errors.New("models: archive extraction failed")

	// ErrIncompleteModel indicates extraction finished but the required
	// file set for the category is missing.
	ErrIncompleteModel = errors.New("models: extracted model is missing required files")

	// ErrInsufficientStorage indicates the destination volume has too
	// little free space for the declared asset size.
	ErrInsufficientStorage = errors.New("models: insufficient free storage")

	// ErrNotReady indicates a local path was requested for a model whose
	// manifest is absent or not ready.
	ErrNotReady = errors.New("models: model is not downloaded")
)
