// Package extract unpacks downloaded model archives. Extraction support is
// feature-flagged: a build (or test) can substitute the disabled extractor,
// and callers must check Available before attempting an archive install.
package extract

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// EntryFunc is called once per extracted file with its relative path.
type EntryFunc func(name string)

// Extractor unpacks an archive into a destination directory and returns
// the relative paths of the files it produced.
type Extractor interface {
	// Available reports whether this build can extract archives at all.
	// When false, Extract always fails.
	Available() bool

	Extract(ctx context.Context, archivePath, destDir string, onEntry EntryFunc) ([]string, error)
}

// New returns the built-in extractor handling .tar.bz2, .tar.gz/.tgz and
// .zip archives.
func New() Extractor { return &archiveExtractor{} }

// Disabled returns an extractor whose Available is false, standing in for
// builds compiled without archive support.
func Disabled() Extractor { return disabledExtractor{} }

type disabledExtractor struct{}

func (disabledExtractor) Available() bool { return false }

func (disabledExtractor) Extract(context.Context, string, string, EntryFunc) ([]string, error) {
	return nil, fmt.Errorf("extractor disabled in this build")
}

type archiveExtractor struct{}

func (archiveExtractor) Available() bool { return true }

// Extract unpacks archivePath into destDir, flattening a single top-level
// directory when the archive has one (model bundles are packaged that
// way). Cancellation is checked per entry. On any error the partially
// written destDir is removed so no half-extracted tree survives.
func (archiveExtractor) Extract(ctx context.Context, archivePath, destDir string, onEntry EntryFunc) ([]string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create destination dir: %w", err)
	}

	files, err := extractInto(ctx, archivePath, destDir, onEntry)
	if err != nil {
		_ = os.RemoveAll(destDir)
		return nil, err
	}
	return files, nil
}

func extractInto(ctx context.Context, archivePath, destDir string, onEntry EntryFunc) ([]string, error) {
	// In-flight downloads hand us their temp file; the archive kind is
	// decided by the real extension underneath the temp suffix.
	lower := strings.TrimSuffix(strings.ToLower(archivePath), ".partial")
	switch {
	case strings.HasSuffix(lower, ".tar.bz2"):
		return extractTar(ctx, archivePath, destDir, onEntry, func(r io.Reader) (io.Reader, error) {
			return bzip2.NewReader(r), nil
		})
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return extractTar(ctx, archivePath, destDir, onEntry, func(r io.Reader) (io.Reader, error) {
			zr, err := gzip.NewReader(r)
			if err != nil {
				return nil, err
			}
			return zr, nil
		})
	case strings.HasSuffix(lower, ".zip"):
		return extractZip(ctx, archivePath, destDir, onEntry)
	default:
		return nil, fmt.Errorf("unsupported archive format: %s", filepath.Base(archivePath))
	}
}

func extractTar(ctx context.Context, archivePath, destDir string, onEntry EntryFunc, decompress func(io.Reader) (io.Reader, error)) ([]string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	dr, err := decompress(f)
	if err != nil {
		return nil, fmt.Errorf("open decompressor: %w", err)
	}

	tr := tar.NewReader(dr)
	var files []string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read archive entry: %w", err)
		}

		rel, ok := sanitizeEntryName(hdr.Name, hdr.Typeflag == tar.TypeDir)
		if !ok {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(filepath.Join(destDir, rel), 0o755); err != nil {
				return nil, fmt.Errorf("create dir %s: %w", rel, err)
			}
		case tar.TypeReg:
			if err := writeEntry(filepath.Join(destDir, rel), tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return nil, err
			}
			files = append(files, rel)
			if onEntry != nil {
				onEntry(rel)
			}
		}
	}
	return files, nil
}

func extractZip(ctx context.Context, archivePath, destDir string, onEntry EntryFunc) ([]string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	var files []string
	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rel, ok := sanitizeEntryName(zf.Name, zf.FileInfo().IsDir())
		if !ok {
			continue
		}

		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(filepath.Join(destDir, rel), 0o755); err != nil {
				return nil, fmt.Errorf("create dir %s: %w", rel, err)
			}
			continue
		}

		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("open entry %s: %w", rel, err)
		}
		err = writeEntry(filepath.Join(destDir, rel), rc, zf.FileInfo().Mode().Perm())
		_ = rc.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, rel)
		if onEntry != nil {
			onEntry(rel)
		}
	}
	return files, nil
}

// sanitizeEntryName normalizes an archive member path, strips the
// top-level directory model bundles are wrapped in, and rejects entries
// that would escape the destination (absolute paths, ".."). The wrapper
// directory entry itself is rejected too: isDir entries are only kept when
// they were nested below the wrapper.
func sanitizeEntryName(name string, isDir bool) (string, bool) {
	name = filepath.ToSlash(name)
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimSuffix(name, "/")
	if name == "" || strings.HasPrefix(name, "/") {
		return "", false
	}

	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(name)))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}

	// Drop the bundle's root folder: "model-dir/tokens.txt" → "tokens.txt".
	// A top-level regular file packaged without a wrapper dir is kept.
	if i := strings.IndexByte(clean, '/'); i >= 0 {
		clean = clean[i+1:]
		if clean == "" {
			return "", false
		}
	} else if isDir {
		return "", false
	}
	return filepath.FromSlash(clean), true
}

func writeEntry(dest string, r io.Reader, perm os.FileMode) error {
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return fmt.Errorf("write file: %w", err)
	}
	return out.Close()
}
