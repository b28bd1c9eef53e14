// Package testutil provides skip helpers for integration tests, so they
// remain runnable in partial environments without failing noisily.
package testutil

import (
	"os"
	"testing"
)

// RequireORTLibrary skips the test unless SPEECHMODELS_ORT_LIB points at
// an existing ONNX Runtime shared library, and returns its path.
func RequireORTLibrary(tb testing.TB) string {
	tb.Helper()

	lib := os.Getenv("SPEECHMODELS_ORT_LIB")
	if lib == "" {
		tb.Skip("ONNX Runtime library not available; set SPEECHMODELS_ORT_LIB to enable")
	}
	if _, err := os.Stat(lib); err != nil {
		tb.Skipf("ONNX Runtime library %q not readable: %v", lib, err)
	}
	return lib
}

