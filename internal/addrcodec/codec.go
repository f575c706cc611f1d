// Package addrcodec converts between chain-native address encodings and the
// canonical 32-byte form carried inside cross-chain records. Short payloads
// (EVM and cosmos account addresses) are left-padded with zeros in canonical
// form. Both directions are pure and total over well-formed input; malformed
// lengths are errors, never truncations.
package addrcodec

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"

	"payables-relay/internal/cberrors"
	"payables-relay/internal/chains"
)

// CanonicalLen is the length of a canonical address.
const CanonicalLen = 32

var zeroPrefix12 = make([]byte, 12)

// Denormalize converts a canonical 32-byte address into ch's human format:
// lowercase 0x hex (20 trailing bytes) for EVM, base58 for Solana, bech32
// with the chain HRP for Cosmwasm.
func Denormalize(b []byte, ch chains.Chain) (string, error) {
	if len(b) != CanonicalLen {
		return "", fmt.Errorf("canonical address must be %d bytes, got %d", CanonicalLen, len(b))
	}
	switch ch.Family {
	case chains.FamilyEvm:
		if !bytes.Equal(b[:12], zeroPrefix12) {
			return "", fmt.Errorf("canonical evm address has non-zero prefix: %x", b[:12])
		}
		return strings.ToLower(common.BytesToAddress(b[12:]).Hex()), nil
	case chains.FamilySolana:
		return base58.Encode(b), nil
	case chains.FamilyCosmwasm:
		// Account addresses are 20 bytes (zero-prefixed in canonical form),
		// contract addresses use the full 32.
		payload := b
		if bytes.Equal(b[:12], zeroPrefix12) {
			payload = b[12:]
		}
		conv, err := bech32.ConvertBits(payload, 8, 5, true)
		if err != nil {
			return "", fmt.Errorf("bech32 convert: %w", err)
		}
		return bech32.Encode(ch.Bech32HRP, conv)
	default:
		return "", fmt.Errorf("%w: %s", cberrors.ErrUnsupportedChain, ch.Name)
	}
}

// Normalize converts a chain-native address string into canonical 32 bytes.
// EVM input is case-insensitive.
func Normalize(addr string, ch chains.Chain) ([CanonicalLen]byte, error) {
	var out [CanonicalLen]byte
	switch ch.Family {
	case chains.FamilyEvm:
		if !common.IsHexAddress(addr) {
			return out, fmt.Errorf("malformed evm address: %q", addr)
		}
		a := common.HexToAddress(addr)
		copy(out[12:], a.Bytes())
		return out, nil
	case chains.FamilySolana:
		raw, err := base58.Decode(addr)
		if err != nil {
			return out, fmt.Errorf("malformed base58 address %q: %w", addr, err)
		}
		if len(raw) != CanonicalLen {
			return out, fmt.Errorf("solana address must decode to %d bytes, got %d", CanonicalLen, len(raw))
		}
		copy(out[:], raw)
		return out, nil
	case chains.FamilyCosmwasm:
		hrp, data, err := bech32.Decode(addr)
		if err != nil {
			return out, fmt.Errorf("malformed bech32 address %q: %w", addr, err)
		}
		if hrp != ch.Bech32HRP {
			return out, fmt.Errorf("bech32 prefix %q does not match chain %s (%q)", hrp, ch.Name, ch.Bech32HRP)
		}
		raw, err := bech32.ConvertBits(data, 5, 8, false)
		if err != nil {
			return out, fmt.Errorf("bech32 convert: %w", err)
		}
		switch len(raw) {
		case 20:
			copy(out[12:], raw)
		case CanonicalLen:
			copy(out[:], raw)
		default:
			return out, fmt.Errorf("bech32 payload must be 20 or 32 bytes, got %d", len(raw))
		}
		return out, nil
	default:
		return out, fmt.Errorf("%w: %s", cberrors.ErrUnsupportedChain, ch.Name)
	}
}

// Canonicalize rewrites addr into the chain's canonical string convention
// (lowercase hex for EVM, unchanged elsewhere), validating it on the way.
func Canonicalize(addr string, ch chains.Chain) (string, error) {
	b, err := Normalize(addr, ch)
	if err != nil {
		return "", err
	}
	return Denormalize(b[:], ch)
}

// Equal reports whether two native addresses refer to the same account on
// ch. EVM comparison is case-insensitive.
func Equal(a, b string, ch chains.Chain) bool {
	if ch.Family == chains.FamilyEvm {
		return strings.EqualFold(a, b)
	}
	return a == b
}
