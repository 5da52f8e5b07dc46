// Package key implements the Kademlia key space: XOR distance, common-prefix
// length, and the handful of helpers the routing table and lookup engine
// build on. A key is just a byte string; the DHT never hashes identifiers
// itself (peer IDs and CIDs arrive already hashed by the caller).
package key

import (
	"bytes"
	"crypto/rand"
	"math/big"
)

// Key is an ordered sequence of bytes interpreted big-endian for distance
// comparisons. Two keys being compared must have equal length; the routing
// table and lookup engine only ever compare keys derived from the same
// identifier space (peer IDs among themselves, CID bytes among themselves).
type Key []byte

// Of returns the Kademlia key for an opaque identifier. It is the identity
// function: keys are whatever bytes the caller already derived (a peer ID's
// multihash, a CID's multihash, ...).
func Of(id []byte) Key {
	k := make(Key, len(id))
	copy(k, id)
	return k
}

// Equal reports whether two keys are byte-for-byte identical.
func Equal(a, b Key) bool {
	return bytes.Equal(a, b)
}

// Distance returns the XOR distance between a and b as a big-endian unsigned
// integer. a and b must have the same length.
func Distance(a, b Key) *big.Int {
	x := xor(a, b)
	return new(big.Int).SetBytes(x)
}

// Less reports whether a is strictly closer to target than b is.
func Less(target, a, b Key) bool {
	return Distance(target, a).Cmp(Distance(target, b)) < 0
}

// xor computes the bytewise XOR of a and b. The shorter slice is treated as
// left-padded with zero bytes so two differently-sized keys never panic;
// callers that care about a consistent keyspace should pad ahead of time.
func xor(a, b Key) []byte {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		var av, bv byte
		ia := i - (n - len(a))
		ib := i - (n - len(b))
		if ia >= 0 {
			av = a[ia]
		}
		if ib >= 0 {
			bv = b[ib]
		}
		out[i] = av ^ bv
	}
	return out
}

// CommonPrefixLen returns the number of leading bits a and b agree on. If a
// and b are bitwise identical over their shared length, the result is the
// bit length of the longer key (matching spec.md §4.1: "if a == b, return
// bit_length(a)").
func CommonPrefixLen(a, b Key) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	cpl := 0
	for i := 0; i < n; i++ {
		x := a[i] ^ b[i]
		if x == 0 {
			cpl += 8
			continue
		}
		cpl += leadingZeros8(x)
		return cpl
	}
	// Bytes agree over the shared prefix; break ties on length, then declare
	// full agreement over the longer key's bit length.
	if len(a) == len(b) {
		return cpl
	}
	longer := a
	if len(b) > len(a) {
		longer = b
	}
	return len(longer) * 8
}

func leadingZeros8(b byte) int {
	n := 0
	for i := 7; i >= 0; i-- {
		if b&(1<<uint(i)) != 0 {
			break
		}
		n++
	}
	return n
}

// NormalizedDistance returns Distance(a,b) / 2^(8*len) as a float in [0,1],
// where len is the longer of the two key lengths.
func NormalizedDistance(a, b Key) float64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	d := new(big.Float).SetInt(Distance(a, b))
	max := new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), uint(n*8)))
	q := new(big.Float).Quo(d, max)
	f, _ := q.Float64()
	return f
}

// RandomWithCPL returns a random key of the same length as local that shares
// exactly cpl leading bits with it. Used to synthesize probing targets for
// bucket refresh (spec.md §4.9). cpl must be in [0, 8*len(local)].
func RandomWithCPL(local Key, cpl int) (Key, error) {
	n := len(local)
	if cpl < 0 {
		cpl = 0
	}
	if cpl > n*8 {
		cpl = n * 8
	}
	out := make(Key, n)
	if _, err := rand.Read(out); err != nil {
		return nil, err
	}
	fullBytes := cpl / 8
	copy(out[:fullBytes], local[:fullBytes])
	rem := cpl % 8
	if fullBytes < n {
		keepMask := byte(0xFF << uint(8-rem)) // top `rem` bits kept equal to local
		b := (local[fullBytes] & keepMask) | (out[fullBytes] &^ keepMask)
		if fullBytes*8+rem < n*8 {
			// Force the bit right after the shared prefix to differ from
			// local's so the common-prefix length is exactly cpl, not more.
			diffBit := byte(1 << uint(7-rem))
			b = (b &^ diffBit) | (^local[fullBytes] & diffBit)
		}
		out[fullBytes] = b
	}
	return out, nil
}
