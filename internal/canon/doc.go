// Package canon provides the canonical JSON serialization and SHA-256
// hashing used for chain-of-trust identity.
//
// Canonical form:
//   - UTF-8 JSON with object keys sorted lexicographically by byte value
//   - no insignificant whitespace
//   - numbers in their shortest lossless decimal form
//   - strings NFC normalized, no HTML escaping
//   - null preserved for absent optionals (never omitted)
//   - arrays keep their order
//
// CRITICAL: this is the ONLY serialization that may be used as a hash
// preimage. Two semantically equal payloads produce identical canonical
// bytes regardless of in-memory field order, so event hashes are
// reproducible across restarts and across storage round-trips.
package canon
