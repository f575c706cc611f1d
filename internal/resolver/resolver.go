// Package resolver derives or looks up the identifier of the Nth entity
// owned by a wallet or payable, per chain, without waiting for the entity
// to be indexed anywhere else.
//
// Solana ids are program-derived addresses and resolve purely, with zero
// I/O. EVM and Cosmwasm ids are assigned by an on-chain counter and must be
// read back from the contract; a zero/sentinel result there means "not yet
// recorded" and is reported as absence, never as an id.
package resolver

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"payables-relay/internal/cache"
	"payables-relay/internal/cberrors"
	"payables-relay/internal/chainclients"
	"payables-relay/internal/chains"
	"payables-relay/internal/metrics"
	"payables-relay/internal/models"
)

// Resolver resolves entity ids against the configured chains, consulting
// the reconciliation cache before any derivation or read.
type Resolver struct {
	clients *chainclients.Clients
	cache   *cache.Cache
	log     *logrus.Logger
}

// New creates a Resolver.
func New(clients *chainclients.Clients, c *cache.Cache, log *logrus.Logger) *Resolver {
	return &Resolver{clients: clients, cache: c, log: log}
}

// pdaSeedTag returns the seed tag the program uses for kind.
func pdaSeedTag(kind models.Kind) ([]byte, error) {
	switch kind {
	case models.KindPayable:
		return []byte("payable"), nil
	case models.KindUserPayment:
		return []byte("payment"), nil
	case models.KindPayablePayment:
		return []byte("payable_payment"), nil
	case models.KindWithdrawal:
		return []byte("withdrawal"), nil
	default:
		return nil, fmt.Errorf("kind %q has no derived id", kind)
	}
}

// evmGetter returns the contract getter backing entityIds[owner][count-1]
// for kind, and whether the owner argument is a payable id rather than a
// wallet address.
func evmGetter(kind models.Kind) (method string, ownerIsPayable bool, err error) {
	switch kind {
	case models.KindPayable:
		return "userPayableIds", false, nil
	case models.KindUserPayment:
		return "userPaymentIds", false, nil
	case models.KindWithdrawal:
		return "userWithdrawalIds", false, nil
	case models.KindPayablePayment:
		return "payablePaymentIds", true, nil
	default:
		return "", false, fmt.Errorf("kind %q has no counter-indexed id", kind)
	}
}

// cosmwasmQuery returns the smart-query name and owner field for kind.
func cosmwasmQuery(kind models.Kind) (name, ownerField string, err error) {
	switch kind {
	case models.KindPayable:
		return "user_payable_id", "wallet", nil
	case models.KindUserPayment:
		return "user_payment_id", "wallet", nil
	case models.KindWithdrawal:
		return "user_withdrawal_id", "wallet", nil
	case models.KindPayablePayment:
		return "payable_payment_id", "payable_id", nil
	default:
		return "", "", fmt.Errorf("kind %q has no counter-indexed id", kind)
	}
}

// ResolveID returns the id of the count-th (1-based) entity of kind owned
// by owner on ch. ok is false when the chain has not recorded that count
// yet; errors are reserved for transport and input failures.
func (r *Resolver) ResolveID(ctx context.Context, ch chains.Chain, owner string, kind models.Kind, count uint64) (id string, ok bool, err error) {
	if count == 0 {
		return "", false, fmt.Errorf("count is 1-based, got 0")
	}

	key := cache.IDKey{Chain: ch.Name, Owner: owner, Kind: kind, Count: count}
	if cached, hit := r.cache.GetID(key); hit {
		metrics.CacheHitsTotal.WithLabelValues("id").Inc()
		return cached, true, nil
	}
	metrics.CacheMissesTotal.WithLabelValues("id").Inc()

	switch ch.Family {
	case chains.FamilySolana:
		id, err = r.deriveSolana(ch, owner, kind, count)
		ok = id != ""
	case chains.FamilyEvm:
		id, ok, err = r.readEVM(ctx, ch, owner, kind, count)
	case chains.FamilyCosmwasm:
		id, ok, err = r.readCosmwasm(ctx, ch, owner, kind, count)
	default:
		return "", false, fmt.Errorf("%w: %s", cberrors.ErrUnsupportedChain, ch.Name)
	}
	if err != nil || !ok {
		return "", false, err
	}

	r.cache.PutID(key, id)
	return id, true, nil
}

// deriveSolana computes the PDA for (owner, kind, count). Pure; no I/O.
func (r *Resolver) deriveSolana(ch chains.Chain, owner string, kind models.Kind, count uint64) (string, error) {
	cl, err := r.clients.Solana(ch)
	if err != nil {
		return "", err
	}
	return DeriveSolanaID(cl.ProgramID(), owner, kind, count)
}

// DeriveSolanaID derives the deterministic account address of the count-th
// entity of kind under owner for program. Exposed separately so the
// derivation can be exercised without a configured client.
func DeriveSolanaID(program solanago.PublicKey, owner string, kind models.Kind, count uint64) (string, error) {
	ownerKey, err := solanago.PublicKeyFromBase58(owner)
	if err != nil {
		return "", fmt.Errorf("malformed solana owner %q: %w", owner, err)
	}
	tag, err := pdaSeedTag(kind)
	if err != nil {
		return "", err
	}
	var countLE [8]byte
	binary.LittleEndian.PutUint64(countLE[:], count)

	addr, _, err := solanago.FindProgramAddress(
		[][]byte{ownerKey.Bytes(), tag, countLE[:]}, program)
	if err != nil {
		return "", fmt.Errorf("derive %s #%d for %s: %w", kind, count, owner, err)
	}
	return addr.String(), nil
}

func (r *Resolver) readEVM(ctx context.Context, ch chains.Chain, owner string, kind models.Kind, count uint64) (string, bool, error) {
	cl, err := r.clients.EVM(ch)
	if err != nil {
		return "", false, err
	}
	method, ownerIsPayable, err := evmGetter(kind)
	if err != nil {
		return "", false, err
	}

	var ownerArg interface{}
	if ownerIsPayable {
		var idBytes [32]byte
		raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(owner), "0x"))
		if err != nil || len(raw) != 32 {
			return "", false, fmt.Errorf("malformed payable id %q", owner)
		}
		copy(idBytes[:], raw)
		ownerArg = idBytes
	} else {
		if !common.IsHexAddress(owner) {
			return "", false, fmt.Errorf("malformed evm owner %q", owner)
		}
		ownerArg = common.HexToAddress(owner)
	}

	// The contract mapping is 0-based; counts are 1-based.
	out, err := cl.Call(ctx, method, ownerArg, new(big.Int).SetUint64(count-1))
	if err != nil {
		return "", false, err
	}
	id, okCast := out[0].([32]byte)
	if !okCast {
		return "", false, fmt.Errorf("unexpected %s output type %T", method, out[0])
	}
	if id == ([32]byte{}) {
		// Zero sentinel: the chain has not recorded this count.
		return "", false, nil
	}
	return "0x" + hex.EncodeToString(id[:]), true, nil
}

func (r *Resolver) readCosmwasm(ctx context.Context, ch chains.Chain, owner string, kind models.Kind, count uint64) (string, bool, error) {
	cl, err := r.clients.Cosmwasm(ch)
	if err != nil {
		return "", false, err
	}
	name, ownerField, err := cosmwasmQuery(kind)
	if err != nil {
		return "", false, err
	}

	var resp struct {
		ID string `json:"id"`
	}
	query := map[string]interface{}{
		name: map[string]interface{}{ownerField: owner, "count": count},
	}
	if err := cl.SmartQuery(ctx, query, &resp); err != nil {
		if errors.Is(err, cberrors.ErrEntityNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if resp.ID == "" {
		return "", false, nil
	}
	return strings.ToLower(resp.ID), true, nil
}
