package memhost

import (
	"github.com/aminokad/kaddht/host"
	"github.com/aminokad/kaddht/key"
)

// DeriveTestPeerID turns a short human-readable seed into a realistic
// fixed-width peer ID, the same way a real deployment's multihash would be
// derived from a public key, without pulling in a multihash library
// (out of scope per spec.md §1).
func DeriveTestPeerID(seed string) host.PeerID {
	return host.PeerID(key.DeriveID(seed))
}
