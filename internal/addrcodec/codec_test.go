package addrcodec

import (
	"strings"
	"testing"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payables-relay/internal/chains"
)

func mustChain(t *testing.T, name string) chains.Chain {
	t.Helper()
	ch, err := chains.ByName(name)
	require.NoError(t, err)
	return ch
}

func TestEvmRoundTrip(t *testing.T) {
	ch := mustChain(t, "ethsepolia")
	addr := "0x52908400098527886E0F7030069857D2E4169EE7"

	canonical, err := Normalize(addr, ch)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 12), canonical[:12], "short address must be left-padded")

	back, err := Denormalize(canonical[:], ch)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(addr), back)
}

func TestEvmRejectsNonZeroPrefix(t *testing.T) {
	ch := mustChain(t, "ethsepolia")
	var b [CanonicalLen]byte
	b[0] = 0x01
	_, err := Denormalize(b[:], ch)
	assert.Error(t, err)
}

func TestSolanaRoundTrip(t *testing.T) {
	ch := mustChain(t, "solana")
	addr := "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"

	canonical, err := Normalize(addr, ch)
	require.NoError(t, err)

	back, err := Denormalize(canonical[:], ch)
	require.NoError(t, err)
	assert.Equal(t, addr, back)
}

func TestCosmosAccountRoundTrip(t *testing.T) {
	ch := mustChain(t, "xiontestnet")

	// 20-byte account payload, zero-prefixed in canonical form.
	var canonical [CanonicalLen]byte
	for i := 12; i < CanonicalLen; i++ {
		canonical[i] = byte(i)
	}

	addr, err := Denormalize(canonical[:], ch)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(addr, "xion1"))

	back, err := Normalize(addr, ch)
	require.NoError(t, err)
	assert.Equal(t, canonical, back)
}

func TestCosmosContractRoundTrip(t *testing.T) {
	ch := mustChain(t, "xiontestnet")

	// Full 32-byte contract payload.
	var canonical [CanonicalLen]byte
	for i := range canonical {
		canonical[i] = byte(i + 1)
	}

	addr, err := Denormalize(canonical[:], ch)
	require.NoError(t, err)

	back, err := Normalize(addr, ch)
	require.NoError(t, err)
	assert.Equal(t, canonical, back)
}

func TestNormalizeRejectsMalformed(t *testing.T) {
	eth := mustChain(t, "ethsepolia")
	sol := mustChain(t, "solana")
	xion := mustChain(t, "xiontestnet")

	_, err := Normalize("not-an-address", eth)
	assert.Error(t, err)

	// Valid base58 but too short for a public key.
	_, err = Normalize("abc", sol)
	assert.Error(t, err)

	// Valid bech32, wrong prefix for the chain.
	conv, err := bech32.ConvertBits(make([]byte, 20), 8, 5, true)
	require.NoError(t, err)
	foreign, err := bech32.Encode("cosmos", conv)
	require.NoError(t, err)
	_, err = Normalize(foreign, xion)
	assert.Error(t, err)
}

func TestDenormalizeRejectsWrongLength(t *testing.T) {
	ch := mustChain(t, "solana")
	_, err := Denormalize(make([]byte, 31), ch)
	assert.Error(t, err)
}

func TestCanonicalizeLowersEvm(t *testing.T) {
	ch := mustChain(t, "ethsepolia")
	out, err := Canonicalize("0xAB5801A7D398351B8BE11C439E05C5B3259AEC9B", ch)
	require.NoError(t, err)
	assert.Equal(t, "0xab5801a7d398351b8be11c439e05c5b3259aec9b", out)
}

func TestEqual(t *testing.T) {
	eth := mustChain(t, "ethsepolia")
	sol := mustChain(t, "solana")

	assert.True(t, Equal("0xAB5801a7D398351b8bE11C439e05C5B3259aeC9B", "0xab5801a7d398351b8be11c439e05c5b3259aec9b", eth))
	assert.False(t, Equal("Addr1", "addr1", sol))
	assert.True(t, Equal("Addr1", "Addr1", sol))
}
