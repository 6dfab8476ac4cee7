// Package blob deletes stored facility images. Uploads happen outside this
// service; only cleanup after a facility is deleted goes through here.
package blob

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Store removes objects by key. Deleting a missing key is not an error.
type Store interface {
	Delete(ctx context.Context, key string) error
	Driver() string
}

// KeyForURL maps a public image URL to its storage key. It reports false for
// URLs that are not under publicBaseURL, so images hosted elsewhere are
// never touched.
func KeyForURL(publicBaseURL, imageURL string) (string, bool) {
	base, err := url.Parse(publicBaseURL)
	if err != nil || base.Host == "" {
		return "", false
	}
	u, err := url.Parse(imageURL)
	if err != nil {
		return "", false
	}
	if !strings.EqualFold(u.Scheme, base.Scheme) || !strings.EqualFold(u.Host, base.Host) {
		return "", false
	}

	prefix := strings.TrimSuffix(base.Path, "/") + "/"
	if !strings.HasPrefix(u.Path, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(u.Path, prefix)
	if err := validateKey(key); err != nil {
		return "", false
	}
	return key, true
}

// validateKey forbids empty keys, absolute keys and path traversal.
func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("empty key")
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("invalid absolute key")
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return fmt.Errorf("invalid key traversal")
		}
	}
	return nil
}
