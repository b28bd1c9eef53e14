package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-speech-models/internal/testutil"
)

func TestFindNetworks(t *testing.T) {
	t.Run("single onnx file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "silero_vad.onnx")
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		nets, err := FindNetworks(path)
		if err != nil {
			t.Fatalf("FindNetworks: %v", err)
		}
		if len(nets) != 1 || nets[0] != path {
			t.Fatalf("nets = %v", nets)
		}
	})

	t.Run("bundle dir with multiple networks", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{"encoder.onnx", "decoder.onnx", "tokens.txt", "manifest.json"} {
			if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
				t.Fatalf("WriteFile %s: %v", name, err)
			}
		}
		nets, err := FindNetworks(dir)
		if err != nil {
			t.Fatalf("FindNetworks: %v", err)
		}
		if len(nets) != 2 {
			t.Fatalf("nets = %v, want 2 networks", nets)
		}
		// Sorted for deterministic probe order.
		if filepath.Base(nets[0]) != "decoder.onnx" || filepath.Base(nets[1]) != "encoder.onnx" {
			t.Errorf("nets not sorted: %v", nets)
		}
	})

	t.Run("non-onnx single file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "weights.bin")
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		nets, err := FindNetworks(path)
		if err != nil || nets != nil {
			t.Fatalf("FindNetworks = (%v, %v), want (nil, nil)", nets, err)
		}
	})

	t.Run("missing path", func(t *testing.T) {
		if _, err := FindNetworks(filepath.Join(t.TempDir(), "gone")); err == nil {
			t.Fatal("expected error for missing path")
		}
	})
}

func TestProbe_NotConfigured(t *testing.T) {
	if err := Probe(t.TempDir(), ProbeOptions{}); err == nil {
		t.Fatal("expected error when library is not configured")
	}
}

func TestProbe_NoNetworks(t *testing.T) {
	lib := testutil.RequireORTLibrary(t)
	err := Probe(t.TempDir(), ProbeOptions{Library: lib})
	if err == nil {
		t.Fatal("expected error for a path without networks")
	}
}

func TestProbe_RejectsGarbageNetwork(t *testing.T) {
	lib := testutil.RequireORTLibrary(t)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "model.onnx"), []byte("not a protobuf"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := Probe(dir, ProbeOptions{Library: lib}); err == nil {
		t.Fatal("expected load failure for a garbage network file")
	}
}
