// Package identity derives the opaque participant identifiers used by the
// relay from the raw identifiers callers present on the wire.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashID maps a raw caller-supplied identifier to its canonical participant
// ID. The mapping is deterministic and one way: raw identifiers never reach
// the shared tables, the presence store, or the logs.
func HashID(raw string) string {
	//1.- Digest the raw identifier so equal inputs always collapse to the same ID.
	sum := sha256.Sum256([]byte(raw))
	//2.- Render the digest as lowercase hex for use as a plain map key.
	return hex.EncodeToString(sum[:])
}
