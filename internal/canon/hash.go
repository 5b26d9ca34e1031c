package canon

import (
	"crypto/sha256"
	"encoding/hex"
)

// ZeroHash is the prev_hash of the first event in every chain.
const ZeroHash = "0000000000000000000000000000000000000000000000000000000000000000"

// SumHex computes the lowercase hex SHA-256 over the canonical bytes of v.
// The result is the 64-character event hash used throughout the chain of
// trust. Returns an error only if v cannot be canonically serialized.
func SumHex(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// MustSumHex is like SumHex but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustSumHex(v any) string {
	h, err := SumHex(v)
	if err != nil {
		panic(err)
	}
	return h
}
