package fork

import (
	"fmt"

	"golang.org/x/crypto/sha3"
)

// ProviderCache is the persistent backend of the read-through fork cache.
// Implementations must be atomic per key and safe for multiple readers with
// a single writer per key.
type ProviderCache interface {
	// Store persists one fetched value. The key identifies the request
	// within the (chain, block, api) namespace.
	Store(chain string, block uint64, api string, key string, value []byte) error

	// Get returns the persisted value, or ErrCacheMiss for unknown keys.
	Get(chain string, block uint64, api string, key string) ([]byte, error)
}

// cacheKey derives the content-addressed key for one request: the hex-encoded
// Keccak-256 of chain, block, api, and request identity.
func cacheKey(chain string, block uint64, api string, request string) string {
	hasher := sha3.NewLegacyKeccak256()
	fmt.Fprintf(hasher, "%s\x00%d\x00%s\x00%s", chain, block, api, request)
	return fmt.Sprintf("%x", hasher.Sum(nil))
}
