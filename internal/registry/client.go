// Package registry discovers remote model assets and caches a persisted,
// TTL-governed snapshot per category so cold starts without network still
// have a usable (possibly stale) listing.
package registry

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/example/go-speech-models/internal/model"
	"github.com/example/go-speech-models/internal/verify"
)

// Client fetches release listings and checksum listings for a category.
//
// Wire format: a JSON array of {name, size, url[, digest]} descriptors at
// <base>/<category>/models.json, plus an optional companion listing at
// <base>/<category>/checksums.sha256 with "<hex>  <filename>" lines.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) categoryURL(cat model.Category, file string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + string(cat) + "/" + file
}

// FetchListing returns the raw asset descriptors for a category.
func (c *Client) FetchListing(ctx context.Context, cat model.Category) ([]model.Asset, error) {
	url := c.categoryURL(cat, "models.json")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build listing request: %w", err)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch listing: HTTP %d", resp.StatusCode)
	}

	var assets []model.Asset
	if err := json.NewDecoder(resp.Body).Decode(&assets); err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	return assets, nil
}

// Ping issues a HEAD request against a category listing to confirm the
// registry endpoint answers at all.
func (c *Client) Ping(ctx context.Context, cat model.Category) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.categoryURL(cat, "models.json"), nil)
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// FetchChecksums returns the digest listing for a category, keyed by asset
// filename. A missing listing is common (legacy releases) and yields an
// empty map, not an error; malformed lines are skipped.
func (c *Client) FetchChecksums(ctx context.Context, cat model.Category) (map[string]string, error) {
	url := c.categoryURL(cat, "checksums.sha256")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build checksum request: %w", err)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch checksums: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return map[string]string{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch checksums: HTTP %d", resp.StatusCode)
	}

	sums := make(map[string]string)
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			continue
		}
		digest, name := strings.ToLower(fields[0]), strings.TrimPrefix(fields[1], "*")
		if verify.IsSHA256Hex(digest) {
			sums[name] = digest
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read checksums: %w", err)
	}
	return sums, nil
}
