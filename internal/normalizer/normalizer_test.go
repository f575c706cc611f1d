package normalizer

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payables-relay/internal/addrcodec"
	"payables-relay/internal/cberrors"
	"payables-relay/internal/chains"
	"payables-relay/internal/reader"
)

const (
	evmUSDC    = "0x1c7d4b196cb0c7b01d743fbc6116a902379c7238"
	solanaUSDC = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"
)

func mustChain(t *testing.T, name string) chains.Chain {
	t.Helper()
	ch, err := chains.ByName(name)
	require.NoError(t, err)
	return ch
}

func seqBytes32(start byte) [32]byte {
	var out [32]byte
	for i := range out {
		out[i] = start + byte(i)
	}
	return out
}

func TestNormalizeEvmPayable(t *testing.T) {
	ch := mustChain(t, "ethsepolia")
	raw := &reader.EVMPayable{
		Host:             common.HexToAddress("0xAB5801a7D398351b8bE11C439e05C5B3259aeC9B"),
		HostCount:        big.NewInt(3),
		ChainCount:       big.NewInt(7),
		PaymentsCount:    big.NewInt(2),
		WithdrawalsCount: big.NewInt(1),
		CreatedAt:        big.NewInt(1700000000),
		IsClosed:         false,
		AllowedTokensAndAmounts: []reader.EVMTokenAndAmount{
			{Token: common.HexToAddress(evmUSDC), Amount: big.NewInt(1000000)},
		},
		Balances: []reader.EVMTokenAndAmount{
			{Token: common.HexToAddress(evmUSDC), Amount: big.NewInt(250000)},
		},
	}

	p, err := NormalizePayable(ch, "0xABCDEF0000000000000000000000000000000000000000000000000000000001", raw)
	require.NoError(t, err)

	assert.Equal(t, "0xabcdef0000000000000000000000000000000000000000000000000000000001", p.ID, "ids canonicalize to lowercase")
	assert.Equal(t, "0xab5801a7d398351b8be11c439e05c5b3259aec9b", p.Host)
	assert.Equal(t, uint64(3), p.HostCount)
	assert.Equal(t, int64(1700000000), p.CreatedOnChainAt)
	require.Len(t, p.AllowedTokensAndAmounts, 1)
	assert.Equal(t, "USDC", p.AllowedTokensAndAmounts[0].Symbol)
	assert.Equal(t, "1", p.AllowedTokensAndAmounts[0].Display)
	require.Len(t, p.Balances, 1)
	assert.Equal(t, "0.25", p.Balances[0].Display)
}

func TestNormalizeUserPaymentCrossChain(t *testing.T) {
	// Payment observed on an EVM chain against a payable on Solana: the
	// embedded payable id must render base58, not hex.
	ch := mustChain(t, "ethsepolia")
	payableID := seqBytes32(1)
	raw := &reader.EVMUserPayment{
		Payer:          common.HexToAddress("0xAB5801a7D398351b8bE11C439e05C5B3259aeC9B"),
		PayableID:      payableID,
		PayableChainID: 1, // solana
		PayerCount:     big.NewInt(1),
		ChainCount:     big.NewInt(1),
		Timestamp:      big.NewInt(1700000001),
		Details:        reader.EVMTokenAndAmount{Token: common.HexToAddress(evmUSDC), Amount: big.NewInt(500000)},
	}

	p, err := NormalizeUserPayment(ch, "0x1100000000000000000000000000000000000000000000000000000000000001", raw)
	require.NoError(t, err)

	assert.Equal(t, base58.Encode(payableID[:]), p.PayableID)
	assert.Equal(t, uint16(1), p.PayableChainID)
	assert.Equal(t, "0xab5801a7d398351b8be11c439e05c5b3259aec9b", p.Payer)
	require.Len(t, p.Details, 1)
	assert.Equal(t, "0.5", p.Details[0].Display)
}

func TestNormalizeUserPaymentLocalSentinel(t *testing.T) {
	// Chain id 0 means the observing chain itself.
	ch := mustChain(t, "ethsepolia")
	payableID := seqBytes32(9)
	raw := &reader.EVMUserPayment{
		Payer:          common.HexToAddress("0xAB5801a7D398351b8bE11C439e05C5B3259aeC9B"),
		PayableID:      payableID,
		PayableChainID: 0,
		PayerCount:     big.NewInt(1),
		ChainCount:     big.NewInt(1),
		Timestamp:      big.NewInt(5),
		Details:        reader.EVMTokenAndAmount{Token: common.HexToAddress(evmUSDC), Amount: big.NewInt(1)},
	}

	p, err := NormalizeUserPayment(ch, "0x0000000000000000000000000000000000000000000000000000000000000002", raw)
	require.NoError(t, err)
	assert.Equal(t, ch.ChainID, p.PayableChainID)
	assert.Equal(t, "0x"+commonHex(payableID), p.PayableID)
}

func TestNormalizeUserPaymentUnknownForeignChain(t *testing.T) {
	ch := mustChain(t, "ethsepolia")
	raw := &reader.EVMUserPayment{
		Payer:          common.HexToAddress("0xAB5801a7D398351b8bE11C439e05C5B3259aeC9B"),
		PayableID:      seqBytes32(1),
		PayableChainID: 4242,
		PayerCount:     big.NewInt(1),
		ChainCount:     big.NewInt(1),
		Timestamp:      big.NewInt(5),
		Details:        reader.EVMTokenAndAmount{Token: common.HexToAddress(evmUSDC), Amount: big.NewInt(1)},
	}

	_, err := NormalizeUserPayment(ch, "0x0000000000000000000000000000000000000000000000000000000000000003", raw)
	assert.ErrorIs(t, err, cberrors.ErrUnknownForeignChain)
}

func TestNormalizePayablePaymentForeignPayer(t *testing.T) {
	// Payment observed on Solana from an EVM payer: the embedded payer
	// wallet must decode as a 0x address.
	ch := mustChain(t, "solana")
	var payer [32]byte
	copy(payer[12:], common.HexToAddress("0xAB5801a7D398351b8bE11C439e05C5B3259aeC9B").Bytes())

	mint := solanago.MustPublicKeyFromBase58(solanaUSDC)
	payableID := solanago.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")
	raw := &reader.SolanaPayablePayment{
		PayableID:    payableID,
		Payer:        payer,
		PayerChainID: 10002, // ethsepolia
		PayableCount: 4,
		ChainCount:   9,
		Timestamp:    1700000002,
		Details:      reader.SolanaTokenAndAmount{Token: mint, Amount: 500000000},
	}

	p, err := NormalizePayablePayment(ch, "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", raw)
	require.NoError(t, err)

	assert.Equal(t, "0xab5801a7d398351b8be11c439e05c5b3259aec9b", p.Payer)
	assert.Equal(t, uint16(10002), p.PayerChainID)
	assert.Equal(t, payableID.String(), p.PayableID)
	require.Len(t, p.Details, 1)
	assert.Equal(t, "USDC", p.Details[0].Symbol)
	assert.Equal(t, "500", p.Details[0].Display)
}

func TestNormalizeUnresolvedToken(t *testing.T) {
	ch := mustChain(t, "ethsepolia")
	raw := &reader.EVMWithdrawal{
		Host:         common.HexToAddress("0xAB5801a7D398351b8bE11C439e05C5B3259aeC9B"),
		PayableID:    seqBytes32(1),
		HostCount:    big.NewInt(1),
		PayableCount: big.NewInt(1),
		Timestamp:    big.NewInt(5),
		Details: reader.EVMTokenAndAmount{
			Token:  common.HexToAddress("0x00000000000000000000000000000000000000ff"),
			Amount: big.NewInt(1),
		},
	}

	_, err := NormalizeWithdrawal(ch, "0x0000000000000000000000000000000000000000000000000000000000000004", raw)
	assert.ErrorIs(t, err, cberrors.ErrUnresolvedToken)
}

// xionWallet derives a well-formed bech32 account address for tests.
func xionWallet(t *testing.T, fill byte) string {
	t.Helper()
	ch := mustChain(t, "xiontestnet")
	var canonical [32]byte
	for i := 12; i < 32; i++ {
		canonical[i] = fill
	}
	addr, err := addrcodec.Denormalize(canonical[:], ch)
	require.NoError(t, err)
	return addr
}

func TestNormalizeCosmosPayable(t *testing.T) {
	ch := mustChain(t, "xiontestnet")
	raw := &reader.CosmosPayable{
		Host:       xionWallet(t, 0x21),
		HostCount:  2,
		ChainCount: 5,
		AllowedTokensAndAmounts: []reader.CosmosTokenAndAmount{
			{Token: "uxion", Amount: "1500000"},
		},
		Balances:  []reader.CosmosTokenAndAmount{},
		CreatedAt: 1700000003,
	}

	p, err := NormalizePayable(ch, "ABC123", raw)
	require.NoError(t, err)

	assert.Equal(t, "abc123", p.ID)
	require.Len(t, p.AllowedTokensAndAmounts, 1)
	assert.Equal(t, "XION", p.AllowedTokensAndAmounts[0].Symbol)
	assert.Equal(t, "1.5", p.AllowedTokensAndAmounts[0].Display)
}

func TestNormalizeCosmosMalformedAmount(t *testing.T) {
	ch := mustChain(t, "xiontestnet")
	raw := &reader.CosmosWithdrawal{
		Host:         xionWallet(t, 0x22),
		PayableID:    "abc",
		HostCount:    1,
		PayableCount: 1,
		Timestamp:    5,
		Details:      reader.CosmosTokenAndAmount{Token: "uxion", Amount: "12x"},
	}

	_, err := NormalizeWithdrawal(ch, "def", raw)
	assert.Error(t, err)
}

func TestNormalizeUser(t *testing.T) {
	ch := mustChain(t, "ethsepolia")
	raw := &reader.EVMUser{
		ChainCount:       big.NewInt(12),
		PayablesCount:    big.NewInt(3),
		PaymentsCount:    big.NewInt(8),
		WithdrawalsCount: big.NewInt(1),
		CreatedAt:        big.NewInt(1690000000),
	}

	u, err := NormalizeUser(ch, "0xAB5801a7D398351b8bE11C439e05C5B3259aeC9B", raw)
	require.NoError(t, err)
	assert.Equal(t, "0xab5801a7d398351b8be11c439e05c5b3259aec9b", u.WalletAddress)
	assert.Equal(t, uint64(3), u.PayablesCount)
}

func TestRejectsUnexpectedPayloadType(t *testing.T) {
	ch := mustChain(t, "ethsepolia")
	_, err := NormalizePayable(ch, "id", struct{}{})
	assert.Error(t, err)
}

func commonHex(b [32]byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 0, 64)
	for _, x := range b {
		out = append(out, hexdigits[x>>4], hexdigits[x&0xf])
	}
	return string(out)
}
