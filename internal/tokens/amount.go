package tokens

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"payables-relay/internal/chains"
)

// TokenAndAmount pairs a resolved token with a raw amount in base units on a
// specific chain. Raw amounts stay arbitrary precision; nothing rounds until
// display.
type TokenAndAmount struct {
	Token  Token
	Chain  chains.Chain
	Amount *big.Int
}

// NewTokenAndAmount resolves nativeAddr on ch and pairs it with raw.
func NewTokenAndAmount(ch chains.Chain, nativeAddr string, raw *big.Int) (TokenAndAmount, error) {
	tok, err := ResolveByAddress(ch, nativeAddr)
	if err != nil {
		return TokenAndAmount{}, err
	}
	if raw == nil {
		raw = new(big.Int)
	}
	return TokenAndAmount{Token: tok, Chain: ch, Amount: new(big.Int).Set(raw)}, nil
}

// Display returns the human amount: raw / 10^decimals, as an exact decimal
// string.
func (ta TokenAndAmount) Display() (string, error) {
	d, err := ta.Token.Details(ta.Chain)
	if err != nil {
		return "", err
	}
	return decimal.NewFromBigInt(ta.Amount, -int32(d.Decimals)).String(), nil
}

// NativeAddress returns the token's chain-native identifier on its chain.
func (ta TokenAndAmount) NativeAddress() (string, error) {
	d, err := ta.Token.Details(ta.Chain)
	if err != nil {
		return "", err
	}
	return d.Address, nil
}

func (ta TokenAndAmount) String() string {
	disp, err := ta.Display()
	if err != nil {
		return fmt.Sprintf("%s(raw=%s)", ta.Token.Symbol, ta.Amount)
	}
	return fmt.Sprintf("%s %s", disp, ta.Token.Symbol)
}
