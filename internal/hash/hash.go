// Package hash provides the digest functions used for derived columns.
//
// The default algorithm is SHA-256 rendered as lowercase hex, which keeps the
// derived hash_code values identical across runs and across implementations.
// XXH3 is available as a faster, non-cryptographic alternative for sinks that
// do not need cross-system stability of the digest format.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/xxh3"
)

// Func computes a deterministic digest of a raw field value. Implementations
// must be pure: no salt, no run-specific state.
type Func func(value string) string

// SHA256 returns the lowercase hex SHA-256 digest of value.
func SHA256(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// XXH3 returns the lowercase hex XXH3-64 digest of value.
func XXH3(value string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(value))
}

// ByName resolves an algorithm name to its Func. Known names are "sha256"
// (default derived-column digest) and "xxh3".
func ByName(name string) (Func, error) {
	switch name {
	case "", "sha256":
		return SHA256, nil
	case "xxh3":
		return XXH3, nil
	default:
		return nil, fmt.Errorf("hash: unknown algorithm %q (use sha256 or xxh3)", name)
	}
}
