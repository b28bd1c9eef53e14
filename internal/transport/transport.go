// Package transport performs streaming HTTP downloads to disk with
// cooperative cancellation, byte-range resume, an idle timeout and
// transient/permanent error classification. It knows nothing about model
// semantics; callers own the destination path and the retry policy.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

// Kind classifies a transport failure for retry decisions.
type Kind int

const (
	// Transient failures (timeouts, 5xx, connection resets) may succeed
	// on retry.
	Transient Kind = iota

	// Permanent failures (404, 410, malformed URL) cannot be fixed by
	// retrying.
	Permanent
)

func (k Kind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "transient"
}

// Error wraps a download failure with its retry classification.
type Error struct {
	Kind   Kind
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport: %s error fetching %s: HTTP %d", e.Kind, e.URL, e.Status)
	}
	return fmt.Sprintf("transport: %s error fetching %s: %v", e.Kind, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is a transport error that may succeed on
// retry. Non-transport errors are not transient.
func IsTransient(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == Transient
}

// ProgressFunc receives cumulative bytes written and the total expected
// size (-1 when the server did not declare one).
type ProgressFunc func(written, total int64)

// FetchOptions configures a single Fetch call.
type FetchOptions struct {
	OnProgress ProgressFunc

	// Resume appends to an existing partial file at dest using a Range
	// request instead of restarting from zero.
	Resume bool
}

// Fetcher streams URLs to local files.
type Fetcher struct {
	// Client defaults to http.DefaultClient.
	Client *http.Client

	// IdleTimeout aborts an attempt when no bytes arrive for this long.
	// Zero disables the watchdog.
	IdleTimeout time.Duration
}

const chunkSize = 64 * 1024

// Fetch streams the response body for rawURL into dest without buffering
// the payload in memory. Cancellation via ctx is honored at chunk
// boundaries. On error the partial file is left in place so a Resume
// retry can continue it; callers delete it when giving up.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, dest string, opts FetchOptions) error {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return &Error{Kind: Permanent, URL: rawURL, Err: err}
	}

	var offset int64
	if opts.Resume {
		if fi, err := os.Stat(dest); err == nil && fi.Mode().IsRegular() {
			offset = fi.Size()
		}
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &Error{Kind: Permanent, URL: rawURL, Err: err}
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	// Idle watchdog: cancels the attempt when no read completes within
	// IdleTimeout. Distinguished from caller cancellation below.
	var idle *time.Timer
	idleFired := make(chan struct{}, 1)
	if f.IdleTimeout > 0 {
		idle = time.AfterFunc(f.IdleTimeout, func() {
			select {
			case idleFired <- struct{}{}:
			default:
			}
			cancel()
		})
		defer idle.Stop()
	}

	resp, err := client.Do(req)
	if err != nil {
		return f.classifyNetErr(ctx, rawURL, err, idleFired)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		// The partial file is at or past the remote size; restart clean.
		_ = resp.Body.Close()
		if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("transport: remove stale partial file: %w", err)
		}
		opts.Resume = false
		return f.Fetch(ctx, rawURL, dest, opts)
	case offset > 0 && resp.StatusCode == http.StatusOK:
		// Server ignored the range; restart the local file too.
		offset = 0
	case offset > 0 && resp.StatusCode == http.StatusPartialContent:
		// Continuing the partial file.
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return classifyStatus(rawURL, resp.StatusCode)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(dest, flags, 0o644)
	if err != nil {
		return fmt.Errorf("transport: open destination: %w", err)
	}

	total := int64(-1)
	if resp.ContentLength >= 0 {
		total = offset + resp.ContentLength
	}

	written := offset
	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			_ = out.Close()
			return err
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if idle != nil {
				idle.Reset(f.IdleTimeout)
			}
			if _, werr := out.Write(buf[:n]); werr != nil {
				_ = out.Close()
				return fmt.Errorf("transport: write destination: %w", werr)
			}
			written += int64(n)
			if opts.OnProgress != nil {
				opts.OnProgress(written, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = out.Close()
			return f.classifyNetErr(ctx, rawURL, readErr, idleFired)
		}
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("transport: close destination: %w", err)
	}
	if total >= 0 && written != total {
		return &Error{
			Kind: Transient,
			URL:  rawURL,
			Err:  fmt.Errorf("short body: got %d of %d bytes", written, total),
		}
	}
	return nil
}

// classifyNetErr distinguishes caller cancellation, idle timeout and plain
// network failures.
func (f *Fetcher) classifyNetErr(parent context.Context, rawURL string, err error, idleFired chan struct{}) error {
	select {
	case <-idleFired:
		if parent.Err() == nil {
			return &Error{
				Kind: Transient,
				URL:  rawURL,
				Err:  fmt.Errorf("idle timeout: no bytes received for %s", f.IdleTimeout),
			}
		}
	default:
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	// Dial failures, resets, timeouts and truncated bodies are all worth
	// retrying; permanence is only ever decided from an HTTP status.
	return &Error{Kind: Transient, URL: rawURL, Err: err}
}

func classifyStatus(rawURL string, status int) error {
	kind := Transient
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		kind = Permanent
	case status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusRequestTimeout:
		kind = Permanent
	}
	return &Error{Kind: kind, URL: rawURL, Status: status}
}
