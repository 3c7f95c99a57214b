package providers

import (
	"context"
	"crypto/sha1" //nolint:gosec // non-cryptographic id generation
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Adda-Baaj/taja-feed/pkg/httpclient"
)

// hashURL generates a SHA-1 hash of the given URL string.
func hashURL(u string) string {
	sum := sha1.Sum([]byte(u))
	return hex.EncodeToString(sum[:])
}

// fetchListing retrieves a listing body under the profile's list policy.
func fetchListing(ctx context.Context, client HTTPClient, url, providerID string, headers map[string]string, policy httpclient.Policy) ([]byte, error) {
	body, err := httpclient.Fetch(ctx, client, url, headers, policy)
	if err != nil {
		return nil, fmt.Errorf("fetch %s listing: %w", providerID, err)
	}
	return body, nil
}

// resolveURL resolves a possibly relative URL against a base URL.
func resolveURL(raw, base string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if parsed.IsAbs() {
		return parsed.String()
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return raw
	}

	return baseURL.ResolveReference(parsed).String()
}

// limitFor returns the item limit from params, config, or def.
func limitFor(cfg Provider, def int) int {
	if raw := cfg.Param("limit", ""); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	if cfg.Limit > 0 {
		return cfg.Limit
	}
	return def
}

// flexString decodes JSON strings and numbers alike; upstream APIs are not
// consistent about ids and timestamps.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("flex string: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

func (f flexString) String() string { return strings.TrimSpace(string(f)) }

// firstNonEmpty returns the first non-empty string from the given values.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func trimRoot(raw, def string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = def
	}
	return strings.TrimRight(raw, "/")
}
