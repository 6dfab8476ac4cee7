package cache

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// HashKey derives a compact logical key from the JSON encoding of v.
// encoding/json sorts map keys, so equal values always hash equally.
func HashKey(name string, v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key %s: %w", name, err)
	}
	return fmt.Sprintf("%s:%016x", name, xxhash.Sum64(raw)), nil
}
