package memhost

import (
	"sync"

	"github.com/aminokad/kaddht/host"
)

// KeyBook is an in-memory host.KeyBook. Tests populate it directly via
// SetPrivKey/SetPubKey instead of deriving keys from a handshake.
type KeyBook struct {
	mu   sync.RWMutex
	priv map[host.PeerID]host.PrivateKey
	pub  map[host.PeerID]host.PublicKey
}

// NewKeyBook creates an empty key book.
func NewKeyBook() *KeyBook {
	return &KeyBook{
		priv: make(map[host.PeerID]host.PrivateKey),
		pub:  make(map[host.PeerID]host.PublicKey),
	}
}

// SetPrivKey registers peer's private key and, implicitly, its public key.
func (k *KeyBook) SetPrivKey(peer host.PeerID, priv host.PrivateKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.priv[peer] = priv
	k.pub[peer] = priv.Public()
}

// SetPubKey registers peer's public key only, for peers whose private key
// this node never holds.
func (k *KeyBook) SetPubKey(peer host.PeerID, pub host.PublicKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub[peer] = pub
}

func (k *KeyBook) PubKey(peer host.PeerID) (host.PublicKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	pk, ok := k.pub[peer]
	return pk, ok
}

func (k *KeyBook) PrivKey(peer host.PeerID) (host.PrivateKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	pk, ok := k.priv[peer]
	return pk, ok
}
