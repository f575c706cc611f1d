// Package normalizer maps heterogeneous raw on-chain payloads into the
// canonical entity records. It is pure: no I/O, no suspension.
//
// The one subtle rule lives here: when a record embeds a wallet or entity
// id from another chain, the embedded chain id field (not the chain the
// record was observed on) selects the address family used to decode the
// embedded bytes. A chain id of 0 is the local-chain sentinel; any other
// value must be registered or the record fails to normalize.
package normalizer

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/mr-tron/base58"

	"payables-relay/internal/addrcodec"
	"payables-relay/internal/cberrors"
	"payables-relay/internal/chains"
	"payables-relay/internal/models"
	"payables-relay/internal/reader"
	"payables-relay/internal/tokens"
)

// CanonicalID rewrites id into the chain's canonical convention: lowercase
// 0x hex on EVM, base58 untouched on Solana, lowercase hex on Cosmwasm.
func CanonicalID(id string, ch chains.Chain) string {
	switch ch.Family {
	case chains.FamilyEvm, chains.FamilyCosmwasm:
		return strings.ToLower(id)
	default:
		return id
	}
}

// foreignChain resolves an embedded chain id field against the registry.
// 0 means the observing chain itself.
func foreignChain(observing chains.Chain, embedded uint16) (chains.Chain, error) {
	if embedded == 0 || embedded == observing.ChainID {
		return observing, nil
	}
	ch, err := chains.ByChainID(embedded)
	if err != nil {
		return chains.Chain{}, fmt.Errorf("%w: chain id %d embedded in record on %s", cberrors.ErrUnknownForeignChain, embedded, observing.Name)
	}
	return ch, nil
}

// entityIDFromBytes renders an embedded 32-byte entity id in the id
// convention of its chain.
func entityIDFromBytes(b [32]byte, ch chains.Chain) string {
	switch ch.Family {
	case chains.FamilyEvm:
		return "0x" + hex.EncodeToString(b[:])
	case chains.FamilySolana:
		return base58.Encode(b[:])
	default:
		return hex.EncodeToString(b[:])
	}
}

// tokenAmount resolves one (native token, raw amount) pair on ch into the
// persisted form. An unknown token fails the whole record.
func tokenAmount(ch chains.Chain, nativeAddr string, raw *big.Int) (models.TokenAmount, error) {
	ta, err := tokens.NewTokenAndAmount(ch, nativeAddr, raw)
	if err != nil {
		return models.TokenAmount{}, err
	}
	display, err := ta.Display()
	if err != nil {
		return models.TokenAmount{}, err
	}
	canonicalAddr, err := ta.NativeAddress()
	if err != nil {
		return models.TokenAmount{}, err
	}
	return models.TokenAmount{
		Token:   canonicalAddr,
		Symbol:  ta.Token.Symbol,
		Amount:  ta.Amount.String(),
		Display: display,
	}, nil
}

func cosmosAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed uint128 amount %q", s)
	}
	return v, nil
}

// NormalizePayable maps a raw payable payload observed on ch.
func NormalizePayable(ch chains.Chain, id string, raw interface{}) (*models.Payable, error) {
	switch v := raw.(type) {
	case *reader.EVMPayable:
		host, err := addrcodec.Canonicalize(v.Host.Hex(), ch)
		if err != nil {
			return nil, err
		}
		ataa, err := evmTokenAmounts(ch, v.AllowedTokensAndAmounts)
		if err != nil {
			return nil, err
		}
		balances, err := evmTokenAmounts(ch, v.Balances)
		if err != nil {
			return nil, err
		}
		return &models.Payable{
			ID:                      CanonicalID(id, ch),
			ChainName:               ch.Name,
			ChainID:                 ch.ChainID,
			Host:                    host,
			HostCount:               v.HostCount.Uint64(),
			ChainCount:              v.ChainCount.Uint64(),
			AllowedTokensAndAmounts: ataa,
			Balances:                balances,
			IsClosed:                v.IsClosed,
			CreatedOnChainAt:        v.CreatedAt.Int64(),
			PaymentsCount:           v.PaymentsCount.Uint64(),
			WithdrawalsCount:        v.WithdrawalsCount.Uint64(),
		}, nil
	case *reader.SolanaPayable:
		ataa, err := solanaTokenAmounts(ch, v.AllowedTokensAndAmounts)
		if err != nil {
			return nil, err
		}
		balances, err := solanaTokenAmounts(ch, v.Balances)
		if err != nil {
			return nil, err
		}
		return &models.Payable{
			ID:                      CanonicalID(id, ch),
			ChainName:               ch.Name,
			ChainID:                 ch.ChainID,
			Host:                    v.Host.String(),
			HostCount:               v.HostCount,
			ChainCount:              v.ChainCount,
			AllowedTokensAndAmounts: ataa,
			Balances:                balances,
			IsClosed:                v.IsClosed,
			CreatedOnChainAt:        v.CreatedAt,
			PaymentsCount:           v.PaymentsCount,
			WithdrawalsCount:        v.WithdrawalsCount,
		}, nil
	case *reader.CosmosPayable:
		host, err := addrcodec.Canonicalize(v.Host, ch)
		if err != nil {
			return nil, err
		}
		ataa, err := cosmosTokenAmounts(ch, v.AllowedTokensAndAmounts)
		if err != nil {
			return nil, err
		}
		balances, err := cosmosTokenAmounts(ch, v.Balances)
		if err != nil {
			return nil, err
		}
		return &models.Payable{
			ID:                      CanonicalID(id, ch),
			ChainName:               ch.Name,
			ChainID:                 ch.ChainID,
			Host:                    host,
			HostCount:               v.HostCount,
			ChainCount:              v.ChainCount,
			AllowedTokensAndAmounts: ataa,
			Balances:                balances,
			IsClosed:                v.IsClosed,
			CreatedOnChainAt:        v.CreatedAt,
			PaymentsCount:           v.PaymentsCount,
			WithdrawalsCount:        v.WithdrawalsCount,
		}, nil
	default:
		return nil, fmt.Errorf("unexpected payable payload %T from %s", raw, ch.Name)
	}
}

// NormalizeUserPayment maps a raw user payment observed on ch. The
// embedded payable id is decoded with the payable chain's family.
func NormalizeUserPayment(ch chains.Chain, id string, raw interface{}) (*models.UserPayment, error) {
	switch v := raw.(type) {
	case *reader.EVMUserPayment:
		payableChain, err := foreignChain(ch, v.PayableChainID)
		if err != nil {
			return nil, err
		}
		payer, err := addrcodec.Canonicalize(v.Payer.Hex(), ch)
		if err != nil {
			return nil, err
		}
		details, err := tokenAmount(ch, strings.ToLower(v.Details.Token.Hex()), v.Details.Amount)
		if err != nil {
			return nil, err
		}
		return &models.UserPayment{
			ID:               CanonicalID(id, ch),
			ChainName:        ch.Name,
			ChainID:          ch.ChainID,
			Payer:            payer,
			PayableID:        entityIDFromBytes(v.PayableID, payableChain),
			PayableChainID:   payableChain.ChainID,
			PayerCount:       v.PayerCount.Uint64(),
			ChainCount:       v.ChainCount.Uint64(),
			Details:          models.TokenAmountList{details},
			CreatedOnChainAt: v.Timestamp.Int64(),
		}, nil
	case *reader.SolanaUserPayment:
		payableChain, err := foreignChain(ch, v.PayableChainID)
		if err != nil {
			return nil, err
		}
		details, err := tokenAmount(ch, v.Details.Token.String(), new(big.Int).SetUint64(v.Details.Amount))
		if err != nil {
			return nil, err
		}
		return &models.UserPayment{
			ID:               CanonicalID(id, ch),
			ChainName:        ch.Name,
			ChainID:          ch.ChainID,
			Payer:            v.Payer.String(),
			PayableID:        entityIDFromBytes(v.PayableID, payableChain),
			PayableChainID:   payableChain.ChainID,
			PayerCount:       v.PayerCount,
			ChainCount:       v.ChainCount,
			Details:          models.TokenAmountList{details},
			CreatedOnChainAt: v.Timestamp,
		}, nil
	case *reader.CosmosUserPayment:
		payableChain, err := foreignChain(ch, v.PayableChainID)
		if err != nil {
			return nil, err
		}
		payer, err := addrcodec.Canonicalize(v.Payer, ch)
		if err != nil {
			return nil, err
		}
		idBytes, err := bytes32FromHex(v.PayableID)
		if err != nil {
			return nil, fmt.Errorf("embedded payable id: %w", err)
		}
		amount, err := cosmosAmount(v.Details.Amount)
		if err != nil {
			return nil, err
		}
		details, err := tokenAmount(ch, v.Details.Token, amount)
		if err != nil {
			return nil, err
		}
		return &models.UserPayment{
			ID:               CanonicalID(id, ch),
			ChainName:        ch.Name,
			ChainID:          ch.ChainID,
			Payer:            payer,
			PayableID:        entityIDFromBytes(idBytes, payableChain),
			PayableChainID:   payableChain.ChainID,
			PayerCount:       v.PayerCount,
			ChainCount:       v.ChainCount,
			Details:          models.TokenAmountList{details},
			CreatedOnChainAt: v.Timestamp,
		}, nil
	default:
		return nil, fmt.Errorf("unexpected user payment payload %T from %s", raw, ch.Name)
	}
}

// NormalizePayablePayment maps a raw payable-side payment observed on ch.
// The embedded payer wallet is decoded with the payer chain's family.
func NormalizePayablePayment(ch chains.Chain, id string, raw interface{}) (*models.PayablePayment, error) {
	switch v := raw.(type) {
	case *reader.EVMPayablePayment:
		payerChain, err := foreignChain(ch, v.PayerChainID)
		if err != nil {
			return nil, err
		}
		payer, err := addrcodec.Denormalize(v.Payer[:], payerChain)
		if err != nil {
			return nil, fmt.Errorf("embedded payer wallet: %w", err)
		}
		details, err := tokenAmount(ch, strings.ToLower(v.Details.Token.Hex()), v.Details.Amount)
		if err != nil {
			return nil, err
		}
		return &models.PayablePayment{
			ID:               CanonicalID(id, ch),
			ChainName:        ch.Name,
			ChainID:          ch.ChainID,
			PayableID:        entityIDFromBytes(v.PayableID, ch),
			Payer:            payer,
			PayerChainID:     payerChain.ChainID,
			PayableCount:     v.PayableCount.Uint64(),
			ChainCount:       v.ChainCount.Uint64(),
			Details:          models.TokenAmountList{details},
			CreatedOnChainAt: v.Timestamp.Int64(),
		}, nil
	case *reader.SolanaPayablePayment:
		payerChain, err := foreignChain(ch, v.PayerChainID)
		if err != nil {
			return nil, err
		}
		payer, err := addrcodec.Denormalize(v.Payer[:], payerChain)
		if err != nil {
			return nil, fmt.Errorf("embedded payer wallet: %w", err)
		}
		details, err := tokenAmount(ch, v.Details.Token.String(), new(big.Int).SetUint64(v.Details.Amount))
		if err != nil {
			return nil, err
		}
		return &models.PayablePayment{
			ID:               CanonicalID(id, ch),
			ChainName:        ch.Name,
			ChainID:          ch.ChainID,
			PayableID:        v.PayableID.String(),
			Payer:            payer,
			PayerChainID:     payerChain.ChainID,
			PayableCount:     v.PayableCount,
			ChainCount:       v.ChainCount,
			Details:          models.TokenAmountList{details},
			CreatedOnChainAt: v.Timestamp,
		}, nil
	case *reader.CosmosPayablePayment:
		payerChain, err := foreignChain(ch, v.PayerChainID)
		if err != nil {
			return nil, err
		}
		payerBytes, err := bytes32FromHex(v.Payer)
		if err != nil {
			return nil, fmt.Errorf("embedded payer wallet: %w", err)
		}
		payer, err := addrcodec.Denormalize(payerBytes[:], payerChain)
		if err != nil {
			return nil, fmt.Errorf("embedded payer wallet: %w", err)
		}
		amount, err := cosmosAmount(v.Details.Amount)
		if err != nil {
			return nil, err
		}
		details, err := tokenAmount(ch, v.Details.Token, amount)
		if err != nil {
			return nil, err
		}
		return &models.PayablePayment{
			ID:               CanonicalID(id, ch),
			ChainName:        ch.Name,
			ChainID:          ch.ChainID,
			PayableID:        CanonicalID(v.PayableID, ch),
			Payer:            payer,
			PayerChainID:     payerChain.ChainID,
			PayableCount:     v.PayableCount,
			ChainCount:       v.ChainCount,
			Details:          models.TokenAmountList{details},
			CreatedOnChainAt: v.Timestamp,
		}, nil
	default:
		return nil, fmt.Errorf("unexpected payable payment payload %T from %s", raw, ch.Name)
	}
}

// NormalizeWithdrawal maps a raw withdrawal observed on ch.
func NormalizeWithdrawal(ch chains.Chain, id string, raw interface{}) (*models.Withdrawal, error) {
	switch v := raw.(type) {
	case *reader.EVMWithdrawal:
		host, err := addrcodec.Canonicalize(v.Host.Hex(), ch)
		if err != nil {
			return nil, err
		}
		details, err := tokenAmount(ch, strings.ToLower(v.Details.Token.Hex()), v.Details.Amount)
		if err != nil {
			return nil, err
		}
		return &models.Withdrawal{
			ID:               CanonicalID(id, ch),
			ChainName:        ch.Name,
			ChainID:          ch.ChainID,
			PayableID:        entityIDFromBytes(v.PayableID, ch),
			Host:             host,
			HostCount:        v.HostCount.Uint64(),
			PayableCount:     v.PayableCount.Uint64(),
			Details:          models.TokenAmountList{details},
			CreatedOnChainAt: v.Timestamp.Int64(),
		}, nil
	case *reader.SolanaWithdrawal:
		details, err := tokenAmount(ch, v.Details.Token.String(), new(big.Int).SetUint64(v.Details.Amount))
		if err != nil {
			return nil, err
		}
		return &models.Withdrawal{
			ID:               CanonicalID(id, ch),
			ChainName:        ch.Name,
			ChainID:          ch.ChainID,
			PayableID:        v.PayableID.String(),
			Host:             v.Host.String(),
			HostCount:        v.HostCount,
			PayableCount:     v.PayableCount,
			Details:          models.TokenAmountList{details},
			CreatedOnChainAt: v.Timestamp,
		}, nil
	case *reader.CosmosWithdrawal:
		host, err := addrcodec.Canonicalize(v.Host, ch)
		if err != nil {
			return nil, err
		}
		amount, err := cosmosAmount(v.Details.Amount)
		if err != nil {
			return nil, err
		}
		details, err := tokenAmount(ch, v.Details.Token, amount)
		if err != nil {
			return nil, err
		}
		return &models.Withdrawal{
			ID:               CanonicalID(id, ch),
			ChainName:        ch.Name,
			ChainID:          ch.ChainID,
			PayableID:        CanonicalID(v.PayableID, ch),
			Host:             host,
			HostCount:        v.HostCount,
			PayableCount:     v.PayableCount,
			Details:          models.TokenAmountList{details},
			CreatedOnChainAt: v.Timestamp,
		}, nil
	default:
		return nil, fmt.Errorf("unexpected withdrawal payload %T from %s", raw, ch.Name)
	}
}

// NormalizeUser maps a raw user activity record for wallet observed on ch.
func NormalizeUser(ch chains.Chain, wallet string, raw interface{}) (*models.User, error) {
	canonical, err := addrcodec.Canonicalize(wallet, ch)
	if err != nil {
		return nil, err
	}
	switch v := raw.(type) {
	case *reader.EVMUser:
		return &models.User{
			WalletAddress:    canonical,
			ChainName:        ch.Name,
			ChainID:          ch.ChainID,
			ChainCount:       v.ChainCount.Uint64(),
			PayablesCount:    v.PayablesCount.Uint64(),
			PaymentsCount:    v.PaymentsCount.Uint64(),
			WithdrawalsCount: v.WithdrawalsCount.Uint64(),
			CreatedOnChainAt: v.CreatedAt.Int64(),
		}, nil
	case *reader.SolanaUser:
		return &models.User{
			WalletAddress:    canonical,
			ChainName:        ch.Name,
			ChainID:          ch.ChainID,
			ChainCount:       v.ChainCount,
			PayablesCount:    v.PayablesCount,
			PaymentsCount:    v.PaymentsCount,
			WithdrawalsCount: v.WithdrawalsCount,
			CreatedOnChainAt: v.CreatedAt,
		}, nil
	case *reader.CosmosUser:
		return &models.User{
			WalletAddress:    canonical,
			ChainName:        ch.Name,
			ChainID:          ch.ChainID,
			ChainCount:       v.ChainCount,
			PayablesCount:    v.PayablesCount,
			PaymentsCount:    v.PaymentsCount,
			WithdrawalsCount: v.WithdrawalsCount,
			CreatedOnChainAt: v.CreatedAt,
		}, nil
	default:
		return nil, fmt.Errorf("unexpected user payload %T from %s", raw, ch.Name)
	}
}

func evmTokenAmounts(ch chains.Chain, in []reader.EVMTokenAndAmount) (models.TokenAmountList, error) {
	out := make(models.TokenAmountList, 0, len(in))
	for _, e := range in {
		ta, err := tokenAmount(ch, strings.ToLower(e.Token.Hex()), e.Amount)
		if err != nil {
			return nil, err
		}
		out = append(out, ta)
	}
	return out, nil
}

func solanaTokenAmounts(ch chains.Chain, in []reader.SolanaTokenAndAmount) (models.TokenAmountList, error) {
	out := make(models.TokenAmountList, 0, len(in))
	for _, e := range in {
		ta, err := tokenAmount(ch, e.Token.String(), new(big.Int).SetUint64(e.Amount))
		if err != nil {
			return nil, err
		}
		out = append(out, ta)
	}
	return out, nil
}

func cosmosTokenAmounts(ch chains.Chain, in []reader.CosmosTokenAndAmount) (models.TokenAmountList, error) {
	out := make(models.TokenAmountList, 0, len(in))
	for _, e := range in {
		amount, err := cosmosAmount(e.Amount)
		if err != nil {
			return nil, err
		}
		ta, err := tokenAmount(ch, e.Token, amount)
		if err != nil {
			return nil, err
		}
		out = append(out, ta)
	}
	return out, nil
}

func bytes32FromHex(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(s), "0x"))
	if err != nil {
		return out, fmt.Errorf("malformed hex bytes %q: %w", s, err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
