package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/go-speech-models/internal/model"
)

func readyManifest(id string) model.Manifest {
	return model.Manifest{
		ID:           id,
		Category:     model.CategoryTTS,
		DownloadedAt: time.Now().UTC(),
		LocalPath:    "/models/tts/" + id,
		Ready:        true,
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := New(t.TempDir())

	m := readyManifest("vits-piper-en_US-lessac-medium")
	m.FileList = []string{"model.onnx", "tokens.txt"}
	if err := s.Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, ok := s.Read(model.CategoryTTS, m.ID)
	if !ok {
		t.Fatal("Read: manifest missing")
	}
	if got.ID != m.ID || !got.Ready || len(got.FileList) != 2 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if !s.IsReady(model.CategoryTTS, m.ID) {
		t.Error("IsReady = false for ready manifest")
	}
}

func TestRead_AbsentAndCorrupt(t *testing.T) {
	s := New(t.TempDir())

	if _, ok := s.Read(model.CategorySTT, "nope"); ok {
		t.Error("absent manifest read as present")
	}

	// A corrupt manifest must read as absent, never as ready.
	dir := s.ModelDir(model.CategorySTT, "broken")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(s.ManifestPath(model.CategorySTT, "broken"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, ok := s.Read(model.CategorySTT, "broken"); ok {
		t.Error("corrupt manifest read as present")
	}
	if s.IsReady(model.CategorySTT, "broken") {
		t.Error("corrupt manifest reported ready")
	}
}

func TestLocalPath_OnlyWhenReady(t *testing.T) {
	s := New(t.TempDir())

	m := readyManifest("kokoro-en-v0_19")
	m.Ready = false
	if err := s.Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, ok := s.LocalPath(model.CategoryTTS, m.ID); ok {
		t.Fatal("LocalPath returned a path for a not-ready model")
	}

	m.Ready = true
	if err := s.Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	path, ok := s.LocalPath(model.CategoryTTS, m.ID)
	if !ok || path != m.LocalPath {
		t.Fatalf("LocalPath = (%q, %v), want (%q, true)", path, ok, m.LocalPath)
	}
}

func TestListReady(t *testing.T) {
	s := New(t.TempDir())

	for _, id := range []string{"b-model", "a-model"} {
		if err := s.Write(readyManifest(id)); err != nil {
			t.Fatalf("Write %s: %v", id, err)
		}
	}
	pending := readyManifest("c-model")
	pending.Ready = false
	if err := s.Write(pending); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := s.ListReady(model.CategoryTTS)
	if err != nil {
		t.Fatalf("ListReady: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a-model" || got[1].ID != "b-model" {
		t.Fatalf("ListReady = %+v, want [a-model b-model]", got)
	}

	// Empty category is not an error.
	none, err := s.ListReady(model.CategoryVAD)
	if err != nil || none != nil {
		t.Errorf("ListReady empty category = (%v, %v)", none, err)
	}
}

func TestDelete_Idempotent(t *testing.T) {
	s := New(t.TempDir())

	m := readyManifest("silero_vad")
	if err := s.Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Delete(model.CategoryTTS, m.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.IsReady(model.CategoryTTS, m.ID) {
		t.Error("model still ready after delete")
	}
	if err := s.Delete(model.CategoryTTS, m.ID); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestTouch(t *testing.T) {
	s := New(t.TempDir())

	m := readyManifest("matcha-icefall-en_US-ljspeech")
	if err := s.Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	s.Touch(model.CategoryTTS, m.ID)

	got, ok := s.Read(model.CategoryTTS, m.ID)
	if !ok || got.LastUsed.IsZero() {
		t.Fatalf("Touch did not record LastUsed: %+v", got)
	}

	// Touching an absent model is a no-op.
	s.Touch(model.CategoryTTS, "ghost")
	if _, err := os.Stat(filepath.Join(s.ModelDir(model.CategoryTTS, "ghost"))); !os.IsNotExist(err) {
		t.Error("Touch created a dir for an absent model")
	}
}
