package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestFetch_WritesWholeBody(t *testing.T) {
	body := strings.Repeat("x", 200*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Declare the length; a chunked response would report total -1.
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	var lastWritten, lastTotal int64
	f := &Fetcher{}
	err := f.Fetch(context.Background(), srv.URL, dest, FetchOptions{
		OnProgress: func(written, total int64) { lastWritten, lastTotal = written, total },
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != body {
		t.Fatalf("downloaded %d bytes, want %d", len(got), len(body))
	}
	if lastWritten != int64(len(body)) || lastTotal != int64(len(body)) {
		t.Errorf("final progress = (%d, %d), want (%d, %d)", lastWritten, lastTotal, len(body), len(body))
	}
}

func TestFetch_ResumeContinuesPartialFile(t *testing.T) {
	body := "0123456789abcdef"
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		offset := 0
		if gotRange != "" {
			fmt.Sscanf(gotRange, "bytes=%d-", &offset)
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, len(body)-1, len(body)))
			w.WriteHeader(http.StatusPartialContent)
		}
		fmt.Fprint(w, body[offset:])
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	if err := os.WriteFile(dest, []byte(body[:6]), 0o644); err != nil {
		t.Fatalf("seed partial file: %v", err)
	}

	f := &Fetcher{}
	if err := f.Fetch(context.Background(), srv.URL, dest, FetchOptions{Resume: true}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if gotRange != "bytes=6-" {
		t.Errorf("Range header = %q, want %q", gotRange, "bytes=6-")
	}
	got, _ := os.ReadFile(dest)
	if string(got) != body {
		t.Errorf("resumed file = %q, want %q", got, body)
	}
}

func TestFetch_ServerIgnoresRange(t *testing.T) {
	// A 200 response to a ranged request means the server sent the whole
	// body; the local partial must be truncated, not appended to.
	body := "full-payload"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	if err := os.WriteFile(dest, []byte("stale"), 0o644); err != nil {
		t.Fatalf("seed partial file: %v", err)
	}

	f := &Fetcher{}
	if err := f.Fetch(context.Background(), srv.URL, dest, FetchOptions{Resume: true}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != body {
		t.Errorf("file = %q, want %q", got, body)
	}
}

func TestFetch_RangeNotSatisfiableRestartsClean(t *testing.T) {
	body := "fresh-content"
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("Range") != "" {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	if err := os.WriteFile(dest, []byte("oversized-partial-content"), 0o644); err != nil {
		t.Fatalf("seed partial file: %v", err)
	}

	f := &Fetcher{}
	if err := f.Fetch(context.Background(), srv.URL, dest, FetchOptions{Resume: true}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if requests != 2 {
		t.Errorf("requests = %d, want 2 (ranged then clean)", requests)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != body {
		t.Errorf("file = %q, want %q", got, body)
	}
}

func TestFetch_StatusClassification(t *testing.T) {
	tests := []struct {
		status        int
		wantTransient bool
	}{
		{http.StatusNotFound, false},
		{http.StatusGone, false},
		{http.StatusForbidden, false},
		{http.StatusTooManyRequests, true},
		{http.StatusRequestTimeout, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			f := &Fetcher{}
			err := f.Fetch(context.Background(), srv.URL, filepath.Join(t.TempDir(), "out"), FetchOptions{})
			if err == nil {
				t.Fatal("expected error")
			}
			if IsTransient(err) != tt.wantTransient {
				t.Errorf("IsTransient = %v, want %v (err: %v)", IsTransient(err), tt.wantTransient, err)
			}
			var te *Error
			if !errors.As(err, &te) || te.Status != tt.status {
				t.Errorf("expected transport.Error with status %d, got %v", tt.status, err)
			}
		})
	}
}

func TestFetch_MalformedURLIsPermanent(t *testing.T) {
	f := &Fetcher{}
	err := f.Fetch(context.Background(), "::not a url::", filepath.Join(t.TempDir(), "out"), FetchOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if IsTransient(err) {
		t.Errorf("malformed URL should be permanent: %v", err)
	}
}

func TestFetch_CancellationSurfacesContextError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go cancel()

	f := &Fetcher{}
	err := f.Fetch(ctx, srv.URL, filepath.Join(t.TempDir(), "out"), FetchOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if IsTransient(err) {
		t.Error("cancellation must not be classified transient")
	}
}

func TestFetch_ShortBodyIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "100")
		fmt.Fprint(w, "only-this")
	}))
	defer srv.Close()

	f := &Fetcher{}
	err := f.Fetch(context.Background(), srv.URL, filepath.Join(t.TempDir(), "out"), FetchOptions{})
	if err == nil {
		t.Fatal("expected error for truncated body")
	}
	if !IsTransient(err) {
		t.Errorf("truncated body should be transient: %v", err)
	}
}

func TestRetry(t *testing.T) {
	t.Run("transient retried up to limit", func(t *testing.T) {
		var attempts int
		err := Retry(context.Background(), 2, func(attempt int) error {
			attempts++
			if attempt != attempts-1 {
				t.Errorf("attempt arg = %d, want %d", attempt, attempts-1)
			}
			return &Error{Kind: Transient, URL: "u", Err: errors.New("reset")}
		})
		if !IsTransient(err) {
			t.Fatalf("expected final transient error, got %v", err)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("permanent not retried", func(t *testing.T) {
		var attempts int
		err := Retry(context.Background(), 5, func(int) error {
			attempts++
			return &Error{Kind: Permanent, URL: "u", Status: 404}
		})
		if err == nil || attempts != 1 {
			t.Fatalf("attempts = %d (err %v), want exactly 1", attempts, err)
		}
	})

	t.Run("success after transient failure", func(t *testing.T) {
		var attempts int
		err := Retry(context.Background(), 3, func(int) error {
			attempts++
			if attempts == 1 {
				return &Error{Kind: Transient, URL: "u", Err: errors.New("reset")}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Retry: %v", err)
		}
		if attempts != 2 {
			t.Errorf("attempts = %d, want 2", attempts)
		}
	})

	t.Run("cancellation stops backoff wait", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Retry(ctx, 3, func(int) error {
			return &Error{Kind: Transient, URL: "u", Err: errors.New("reset")}
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}
