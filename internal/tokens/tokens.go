// Package tokens is the static token catalog. An amount is only meaningful
// paired with a (token, chain); resolution failures are errors, never a raw
// address stand-in or a silent zero amount.
package tokens

import (
	"fmt"
	"strings"

	"payables-relay/internal/cberrors"
	"payables-relay/internal/chains"
)

// ChainToken is a token's deployment on one chain.
type ChainToken struct {
	// Address is the chain-native token identifier: 0x address on EVM,
	// base58 mint on Solana, bech32 denom owner or bank denom on Cosmwasm.
	Address  string
	Decimals uint8
}

// Token is a statically registered token with its per-chain deployments.
type Token struct {
	Symbol string
	Chains map[string]ChainToken // keyed by chain name
}

// Details returns the token's deployment on ch.
func (t Token) Details(ch chains.Chain) (ChainToken, error) {
	d, ok := t.Chains[ch.Name]
	if !ok {
		return ChainToken{}, fmt.Errorf("%w: %s has no deployment on %s", cberrors.ErrUnresolvedToken, t.Symbol, ch.Name)
	}
	return d, nil
}

var registered = []Token{
	{
		Symbol: "USDC",
		Chains: map[string]ChainToken{
			"solana":      {Address: "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU", Decimals: 6},
			"ethsepolia":  {Address: "0x1c7d4b196cb0c7b01d743fbc6116a902379c7238", Decimals: 6},
			"basesepolia": {Address: "0x036cbd53842c5426634e7929541ec2318f3dcf7e", Decimals: 6},
			"xiontestnet": {Address: "ibc/57097251ed81a232ce3c9d899e7c8096d6d87ef84ba203e12e424aa4c9b57a64", Decimals: 6},
		},
	},
	{
		Symbol: "SOL",
		Chains: map[string]ChainToken{
			"solana": {Address: "So11111111111111111111111111111111111111112", Decimals: 9},
		},
	},
	{
		Symbol: "ETH",
		Chains: map[string]ChainToken{
			// Zero address marks the chain's native asset.
			"ethsepolia":  {Address: "0x0000000000000000000000000000000000000000", Decimals: 18},
			"basesepolia": {Address: "0x0000000000000000000000000000000000000000", Decimals: 18},
		},
	},
	{
		Symbol: "XION",
		Chains: map[string]ChainToken{
			"xiontestnet": {Address: "uxion", Decimals: 6},
		},
	},
}

// All returns every registered token.
func All() []Token {
	out := make([]Token, len(registered))
	copy(out, registered)
	return out
}

// ResolveByAddress finds the registered token deployed at nativeAddr on ch.
// EVM addresses compare case-insensitively; other families compare exactly.
func ResolveByAddress(ch chains.Chain, nativeAddr string) (Token, error) {
	for _, t := range registered {
		d, ok := t.Chains[ch.Name]
		if !ok {
			continue
		}
		if ch.Family == chains.FamilyEvm {
			if strings.EqualFold(d.Address, nativeAddr) {
				return t, nil
			}
			continue
		}
		if d.Address == nativeAddr {
			return t, nil
		}
	}
	return Token{}, fmt.Errorf("%w: %q on %s", cberrors.ErrUnresolvedToken, nativeAddr, ch.Name)
}

// ResolveBySymbol finds a registered token by symbol, requiring a deployment
// on ch.
func ResolveBySymbol(ch chains.Chain, symbol string) (Token, error) {
	for _, t := range registered {
		if !strings.EqualFold(t.Symbol, symbol) {
			continue
		}
		if _, ok := t.Chains[ch.Name]; ok {
			return t, nil
		}
	}
	return Token{}, fmt.Errorf("%w: symbol %q on %s", cberrors.ErrUnresolvedToken, symbol, ch.Name)
}
