package key

import "golang.org/x/crypto/sha3"

// DeriveID hashes seed with Keccak-256 to produce a deterministic 32-byte
// identifier, the same digest go-ethereum's crypto.Keccak256 uses to turn
// arbitrary-length input into a fixed-width key. The DHT core never derives
// peer IDs itself (spec.md §4.1), but tests need a realistic, reproducible
// way to generate many distinct peer IDs/CIDs from short human-readable
// seeds instead of hand-picking byte strings.
func DeriveID(seed string) []byte {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(seed))
	return h.Sum(nil)
}
