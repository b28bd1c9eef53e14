// Package doctor provides environment preflight checks for speechmodels.
package doctor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// DataDir is the resolved data directory to verify for writability.
	DataDir string

	// RegistryReachable pings the registry; nil skips the check.
	RegistryReachable func() error

	// ExtractorAvailable reports whether this build can install archive
	// models.
	ExtractorAvailable bool

	// ORTLibraryPath is the configured ONNX Runtime library; empty means
	// probing is not configured (reported, not failed).
	ORTLibraryPath string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- data directory ---------------------------------------------------
	if err := checkWritable(cfg.DataDir); err != nil {
		res.fail(fmt.Sprintf("data dir: %v", err))
		fmt.Fprintf(w, "%s data dir %s: %v\n", FailMark, cfg.DataDir, err)
	} else {
		fmt.Fprintf(w, "%s data dir %s: writable\n", PassMark, cfg.DataDir)
	}

	// ---- registry ---------------------------------------------------------
	if cfg.RegistryReachable == nil {
		fmt.Fprintf(w, "%s registry: skipped\n", PassMark)
	} else if err := cfg.RegistryReachable(); err != nil {
		res.fail(fmt.Sprintf("registry: %v", err))
		fmt.Fprintf(w, "%s registry: unreachable (%v)\n", FailMark, err)
	} else {
		fmt.Fprintf(w, "%s registry: reachable\n", PassMark)
	}

	// ---- archive extractor ------------------------------------------------
	if cfg.ExtractorAvailable {
		fmt.Fprintf(w, "%s archive extractor: available\n", PassMark)
	} else {
		// Not a failure: single-file models still work, and archive
		// downloads are rejected up front with a clear error.
		fmt.Fprintf(w, "%s archive extractor: disabled in this build (archive models cannot be installed)\n", PassMark)
	}

	// ---- ONNX Runtime library ---------------------------------------------
	if cfg.ORTLibraryPath == "" {
		fmt.Fprintf(w, "%s onnxruntime library: not configured (probing disabled)\n", PassMark)
	} else if _, err := os.Stat(cfg.ORTLibraryPath); err != nil {
		res.fail(fmt.Sprintf("onnxruntime library: %v", err))
		fmt.Fprintf(w, "%s onnxruntime library %s: %v\n", FailMark, cfg.ORTLibraryPath, err)
	} else {
		fmt.Fprintf(w, "%s onnxruntime library: %s\n", PassMark, cfg.ORTLibraryPath)
	}

	return res
}

// checkWritable verifies the directory exists (creating it if needed) and
// accepts a probe file.
func checkWritable(dir string) error {
	if dir == "" {
		return fmt.Errorf("not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return err
	}
	return os.Remove(probe)
}
