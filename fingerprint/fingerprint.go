package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Fingerprint is the content-identity key for uploaded documents: the SHA-256
// digest of the raw bytes. Identical bytes always map to the same fingerprint
// regardless of filename; the digest is cryptographic, so distinct contents do
// not plausibly collide.
type Fingerprint [sha256.Size]byte

// Sum computes the fingerprint of raw document bytes.
func Sum(data []byte) Fingerprint {
	return sha256.Sum256(data)
}

// String returns the lowercase hex form used as a store key.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Parse decodes the hex form back into a Fingerprint.
func Parse(s string) (Fingerprint, error) {
	var f Fingerprint
	raw, err := hex.DecodeString(s)
	if err != nil {
		return f, fmt.Errorf("parse fingerprint: %w", err)
	}
	if len(raw) != sha256.Size {
		return f, fmt.Errorf("parse fingerprint: want %d bytes, got %d", sha256.Size, len(raw))
	}
	copy(f[:], raw)
	return f, nil
}
