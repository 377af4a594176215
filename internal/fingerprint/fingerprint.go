// Package fingerprint hashes track ID sets for change detection.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
)

// Delimiter joins sorted IDs before hashing. Platform IDs never contain it.
const Delimiter = "\n"

// Fingerprint returns the lowercase hex SHA-256 of the deduplicated,
// lexicographically sorted IDs. Order and duplicates do not affect the result.
func Fingerprint(externalIDs []string) string {
	ids := slices.Clone(externalIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	sum := sha256.Sum256([]byte(strings.Join(ids, Delimiter)))
	return hex.EncodeToString(sum[:])
}

// Empty is the fingerprint of an empty collection.
var Empty = Fingerprint(nil)
