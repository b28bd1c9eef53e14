// Package verify computes and checks SHA-256 digests of downloaded files.
package verify

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/example/go-speech-models/internal/model"
)

var shaHexPattern = regexp.MustCompile(`(?i)^[a-f0-9]{64}$`)

// IsSHA256Hex reports whether v looks like a hex-encoded SHA-256 digest.
func IsSHA256Hex(v string) bool {
	return shaHexPattern.MatchString(v)
}

// FileSHA256 returns the lowercase hex SHA-256 of the file at path.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read file for checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Check compares the file's digest against expected (case-insensitive hex)
// and returns model.ErrChecksumMismatch on any difference. The caller is
// responsible for removing the offending file.
func Check(path, expected string) error {
	expected = strings.ToLower(strings.TrimSpace(expected))
	if !IsSHA256Hex(expected) {
		return fmt.Errorf("invalid expected digest %q", expected)
	}
	actual, err := FileSHA256(path)
	if err != nil {
		return err
	}
	if actual != expected {
		return fmt.Errorf("%w: expected %s got %s", model.ErrChecksumMismatch, expected, actual)
	}
	return nil
}
