package record

import (
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPKValidatorAcceptsBase58PeerID(t *testing.T) {
	priv := GenerateSecp256k1Key([]byte("pk-seed"))
	pub := priv.Public().Bytes()
	id := base58.Encode(pub)

	v := &PKValidator{}
	require.NoError(t, v.Validate("/pk/"+id, pub))
}

func TestPKValidatorAcceptsRawBytesPeerID(t *testing.T) {
	priv := GenerateSecp256k1Key([]byte("pk-seed-2"))
	pub := priv.Public().Bytes()

	v := &PKValidator{}
	require.NoError(t, v.Validate("/pk/"+string(pub), pub))
}

func TestPKValidatorRejectsMismatch(t *testing.T) {
	priv := GenerateSecp256k1Key([]byte("pk-seed-3"))
	other := GenerateSecp256k1Key([]byte("pk-seed-4"))
	pub := priv.Public().Bytes()
	wrongID := base58.Encode(other.Public().Bytes())

	v := &PKValidator{}
	assert.Error(t, v.Validate("/pk/"+wrongID, pub))
}

func TestPKValidatorSelectPrefersLatest(t *testing.T) {
	v := &PKValidator{}
	idx, err := v.Select("/pk/x", [][]byte{[]byte("a"), []byte("b")})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}
