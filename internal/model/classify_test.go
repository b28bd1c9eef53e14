package model

import (
	"reflect"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		cat      Category
		asset    Asset
		wantOK   bool
		wantID   string
		wantExt  string
		wantSub  string
		wantTier string
		wantQnt  string
	}{
		{
			name:     "piper voice archive",
			cat:      CategoryTTS,
			asset:    Asset{Name: "vits-piper-en_US-lessac-medium.tar.bz2", Size: 64 << 20, URL: "https://example.com/v"},
			wantOK:   true,
			wantID:   "vits-piper-en_US-lessac-medium",
			wantExt:  ".tar.bz2",
			wantSub:  "piper",
			wantTier: "medium",
			wantQnt:  Unknown,
		},
		{
			name:     "whisper tiny english",
			cat:      CategorySTT,
			asset:    Asset{Name: "sherpa-onnx-whisper-tiny.en.tar.bz2", Size: 100 << 20},
			wantOK:   true,
			wantID:   "sherpa-onnx-whisper-tiny.en",
			wantExt:  ".tar.bz2",
			wantSub:  "whisper",
			wantTier: "tiny",
			wantQnt:  Unknown,
		},
		{
			name:     "quantized zipformer",
			cat:      CategorySTT,
			asset:    Asset{Name: "sherpa-onnx-streaming-zipformer-en-2023-06-26-int8.tar.bz2"},
			wantOK:   true,
			wantID:   "sherpa-onnx-streaming-zipformer-en-2023-06-26-int8",
			wantExt:  ".tar.bz2",
			wantSub:  "zipformer",
			wantTier: Unknown,
			wantQnt:  "int8",
		},
		{
			name:     "single-file vad model",
			cat:      CategoryVAD,
			asset:    Asset{Name: "silero_vad.onnx", Size: 2 << 20},
			wantOK:   true,
			wantID:   "silero_vad",
			wantExt:  "",
			wantSub:  "silero",
			wantTier: Unknown,
			wantQnt:  Unknown,
		},
		{
			name:   "unrelated asset rejected",
			cat:    CategoryTTS,
			asset:  Asset{Name: "release-notes.txt"},
			wantOK: false,
		},
		{
			name:   "wrong category rejected",
			cat:    CategoryVAD,
			asset:  Asset{Name: "vits-piper-en_US-lessac-medium.tar.bz2"},
			wantOK: false,
		},
		{
			name:   "empty name rejected",
			cat:    CategorySTT,
			asset:  Asset{Name: "   "},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := Classify(tt.cat, tt.asset)
			if ok != tt.wantOK {
				t.Fatalf("Classify ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if m.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", m.ID, tt.wantID)
			}
			if m.ArchiveExt != tt.wantExt {
				t.Errorf("ArchiveExt = %q, want %q", m.ArchiveExt, tt.wantExt)
			}
			if m.Subtype != tt.wantSub {
				t.Errorf("Subtype = %q, want %q", m.Subtype, tt.wantSub)
			}
			if m.SizeTier != tt.wantTier {
				t.Errorf("SizeTier = %q, want %q", m.SizeTier, tt.wantTier)
			}
			if m.Quant != tt.wantQnt {
				t.Errorf("Quant = %q, want %q", m.Quant, tt.wantQnt)
			}
			if m.FileName != tt.asset.Name {
				t.Errorf("FileName = %q, want %q", m.FileName, tt.asset.Name)
			}
		})
	}
}

func TestClassify_deterministic(t *testing.T) {
	a := Asset{Name: "matcha-icefall-en_US-ljspeech.tar.bz2", Size: 42}
	first, ok := Classify(CategoryTTS, a)
	if !ok {
		t.Fatal("expected classification to succeed")
	}
	for i := 0; i < 3; i++ {
		again, _ := Classify(CategoryTTS, a)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("classification not deterministic: %+v vs %+v", first, again)
		}
	}
}

func TestDeriveLanguages(t *testing.T) {
	tests := []struct {
		id   string
		want []string
	}{
		{"vits-piper-en_US-lessac-medium", []string{"en_US"}},
		{"sherpa-onnx-whisper-tiny.en", []string{"en"}},
		{"sherpa-onnx-zipformer-multi-zh-hans", []string{"multi", "zh"}},
		{"silero_vad", nil},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got := deriveLanguages(tt.id)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("deriveLanguages(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestSplitAssetName(t *testing.T) {
	tests := []struct {
		in      string
		wantID  string
		wantExt string
	}{
		{"model.tar.gz", "model", ".tar.gz"},
		{"model.tgz", "model", ".tgz"},
		{"model.zip", "model", ".zip"},
		{"silero_vad.onnx", "silero_vad", ""},
		{"bare-name", "bare-name", ""},
	}

	for _, tt := range tests {
		id, ext := SplitAssetName(tt.in)
		if id != tt.wantID || ext != tt.wantExt {
			t.Errorf("SplitAssetName(%q) = (%q, %q), want (%q, %q)", tt.in, id, ext, tt.wantID, tt.wantExt)
		}
	}
}

func TestSnapshotDigest(t *testing.T) {
	m := Meta{FileName: "a.tar.bz2", RemoteDigest: "deadbeef"}

	snap := Snapshot{Checksums: map[string]string{"a.tar.bz2": "cafef00d"}}
	if got := snap.Digest(m); got != "cafef00d" {
		t.Errorf("checksum listing should win, got %q", got)
	}

	snap.Checksums = nil
	if got := snap.Digest(m); got != "deadbeef" {
		t.Errorf("expected fallback to remote digest, got %q", got)
	}

	m.RemoteDigest = ""
	if got := snap.Digest(m); got != "" {
		t.Errorf("expected empty digest, got %q", got)
	}
}

func TestParseCategory(t *testing.T) {
	if _, err := ParseCategory("stt"); err != nil {
		t.Fatalf("ParseCategory(stt): %v", err)
	}
	if _, err := ParseCategory("asr"); err == nil {
		t.Fatal("expected error for unknown category")
	}
}
