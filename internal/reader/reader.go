package reader

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"payables-relay/internal/cberrors"
	"payables-relay/internal/chainclients"
	"payables-relay/internal/chains"
	"payables-relay/internal/models"
)

// solanaDiscriminatorLen is the account discriminator prefix length.
const solanaDiscriminatorLen = 8

// Reader provides the uniform fetch interface over the per-family chain
// adapters.
type Reader struct {
	clients *chainclients.Clients
	log     *logrus.Logger
}

// New creates a Reader over clients.
func New(clients *chainclients.Clients, log *logrus.Logger) *Reader {
	return &Reader{clients: clients, log: log}
}

// Fetch returns the raw on-chain payload for (kind, id) on ch. The concrete
// type of the payload depends on ch.Family and kind; the normalizer owns
// that mapping.
func (r *Reader) Fetch(ctx context.Context, ch chains.Chain, kind models.Kind, id string) (interface{}, error) {
	switch ch.Family {
	case chains.FamilyEvm:
		return r.fetchEVM(ctx, ch, kind, id)
	case chains.FamilySolana:
		return r.fetchSolana(ctx, ch, kind, id)
	case chains.FamilyCosmwasm:
		return r.fetchCosmwasm(ctx, ch, kind, id)
	default:
		return nil, fmt.Errorf("%w: %s", cberrors.ErrUnsupportedChain, ch.Name)
	}
}

func evmIDToBytes32(id string) ([32]byte, error) {
	var out [32]byte
	h := strings.TrimPrefix(strings.ToLower(id), "0x")
	raw, err := hex.DecodeString(h)
	if err != nil {
		return out, fmt.Errorf("malformed evm entity id %q: %w", id, err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("evm entity id must be 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func (r *Reader) fetchEVM(ctx context.Context, ch chains.Chain, kind models.Kind, id string) (interface{}, error) {
	cl, err := r.clients.EVM(ch)
	if err != nil {
		return nil, err
	}

	if kind == models.KindUser {
		if !common.IsHexAddress(id) {
			return nil, fmt.Errorf("malformed evm wallet address %q", id)
		}
		out, err := cl.Call(ctx, "getUser", common.HexToAddress(id))
		if err != nil {
			return nil, err
		}
		raw := *abi.ConvertType(out[0], new(EVMUser)).(*EVMUser)
		if raw.CreatedAt == nil || raw.CreatedAt.Sign() == 0 {
			return nil, fmt.Errorf("%w: user %s on %s", cberrors.ErrEntityNotFound, id, ch.Name)
		}
		return &raw, nil
	}

	idBytes, err := evmIDToBytes32(id)
	if err != nil {
		return nil, err
	}

	switch kind {
	case models.KindPayable:
		out, err := cl.Call(ctx, "getPayable", idBytes)
		if err != nil {
			return nil, err
		}
		raw := *abi.ConvertType(out[0], new(EVMPayable)).(*EVMPayable)
		if raw.CreatedAt == nil || raw.CreatedAt.Sign() == 0 {
			return nil, fmt.Errorf("%w: payable %s on %s", cberrors.ErrEntityNotFound, id, ch.Name)
		}
		return &raw, nil
	case models.KindUserPayment:
		out, err := cl.Call(ctx, "getUserPayment", idBytes)
		if err != nil {
			return nil, err
		}
		raw := *abi.ConvertType(out[0], new(EVMUserPayment)).(*EVMUserPayment)
		if raw.Timestamp == nil || raw.Timestamp.Sign() == 0 {
			return nil, fmt.Errorf("%w: user payment %s on %s", cberrors.ErrEntityNotFound, id, ch.Name)
		}
		return &raw, nil
	case models.KindPayablePayment:
		out, err := cl.Call(ctx, "getPayablePayment", idBytes)
		if err != nil {
			return nil, err
		}
		raw := *abi.ConvertType(out[0], new(EVMPayablePayment)).(*EVMPayablePayment)
		if raw.Timestamp == nil || raw.Timestamp.Sign() == 0 {
			return nil, fmt.Errorf("%w: payable payment %s on %s", cberrors.ErrEntityNotFound, id, ch.Name)
		}
		return &raw, nil
	case models.KindWithdrawal:
		out, err := cl.Call(ctx, "getWithdrawal", idBytes)
		if err != nil {
			return nil, err
		}
		raw := *abi.ConvertType(out[0], new(EVMWithdrawal)).(*EVMWithdrawal)
		if raw.Timestamp == nil || raw.Timestamp.Sign() == 0 {
			return nil, fmt.Errorf("%w: withdrawal %s on %s", cberrors.ErrEntityNotFound, id, ch.Name)
		}
		return &raw, nil
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
}

func (r *Reader) fetchSolana(ctx context.Context, ch chains.Chain, kind models.Kind, id string) (interface{}, error) {
	cl, err := r.clients.Solana(ch)
	if err != nil {
		return nil, err
	}

	var account solanago.PublicKey
	if kind == models.KindUser {
		// The user account is a PDA of the wallet; id carries the wallet.
		wallet, err := solanago.PublicKeyFromBase58(id)
		if err != nil {
			return nil, fmt.Errorf("malformed solana wallet %q: %w", id, err)
		}
		account, _, err = solanago.FindProgramAddress(
			[][]byte{[]byte("user"), wallet.Bytes()}, cl.ProgramID())
		if err != nil {
			return nil, fmt.Errorf("derive user account for %s: %w", id, err)
		}
	} else {
		account, err = solanago.PublicKeyFromBase58(id)
		if err != nil {
			return nil, fmt.Errorf("malformed solana entity id %q: %w", id, err)
		}
	}

	data, err := cl.FetchAccountData(ctx, account)
	if err != nil {
		return nil, err
	}
	if len(data) <= solanaDiscriminatorLen {
		return nil, fmt.Errorf("account %s on %s holds %d bytes, too short", id, ch.Name, len(data))
	}
	body := data[solanaDiscriminatorLen:]

	decode := func(out interface{}) (interface{}, error) {
		if err := bin.NewBorshDecoder(body).Decode(out); err != nil {
			return nil, fmt.Errorf("borsh decode %s %s on %s: %w", kind, id, ch.Name, err)
		}
		return out, nil
	}

	switch kind {
	case models.KindPayable:
		return decode(new(SolanaPayable))
	case models.KindUserPayment:
		return decode(new(SolanaUserPayment))
	case models.KindPayablePayment:
		return decode(new(SolanaPayablePayment))
	case models.KindWithdrawal:
		return decode(new(SolanaWithdrawal))
	case models.KindUser:
		return decode(new(SolanaUser))
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
}

func (r *Reader) fetchCosmwasm(ctx context.Context, ch chains.Chain, kind models.Kind, id string) (interface{}, error) {
	cl, err := r.clients.Cosmwasm(ch)
	if err != nil {
		return nil, err
	}

	switch kind {
	case models.KindPayable:
		out := new(CosmosPayable)
		if err := cl.SmartQuery(ctx, map[string]interface{}{"payable": map[string]string{"id": id}}, out); err != nil {
			return nil, err
		}
		return out, nil
	case models.KindUserPayment:
		out := new(CosmosUserPayment)
		if err := cl.SmartQuery(ctx, map[string]interface{}{"user_payment": map[string]string{"id": id}}, out); err != nil {
			return nil, err
		}
		return out, nil
	case models.KindPayablePayment:
		out := new(CosmosPayablePayment)
		if err := cl.SmartQuery(ctx, map[string]interface{}{"payable_payment": map[string]string{"id": id}}, out); err != nil {
			return nil, err
		}
		return out, nil
	case models.KindWithdrawal:
		out := new(CosmosWithdrawal)
		if err := cl.SmartQuery(ctx, map[string]interface{}{"withdrawal": map[string]string{"id": id}}, out); err != nil {
			return nil, err
		}
		return out, nil
	case models.KindUser:
		out := new(CosmosUser)
		if err := cl.SmartQuery(ctx, map[string]interface{}{"user": map[string]string{"wallet": id}}, out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
}
