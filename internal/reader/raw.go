// Package reader fetches raw entity state from chain adapters and returns
// it untouched for the normalizer. Every fetch distinguishes three
// outcomes: success, ErrEntityNotFound (the chain confirmed absence) and a
// transient transport failure; callers retry only on the third.
package reader

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	solanago "github.com/gagliardetto/solana-go"
)

// EVM raw payloads. Field order mirrors the ABI tuple components exactly;
// abi.ConvertType fills them by position.

type EVMTokenAndAmount struct {
	Token  common.Address
	Amount *big.Int
}

type EVMPayable struct {
	Host                    common.Address
	HostCount               *big.Int
	ChainCount              *big.Int
	PaymentsCount           *big.Int
	WithdrawalsCount        *big.Int
	CreatedAt               *big.Int
	IsClosed                bool
	AllowedTokensAndAmounts []EVMTokenAndAmount
	Balances                []EVMTokenAndAmount
}

type EVMUserPayment struct {
	Payer          common.Address
	PayableID      [32]byte
	PayableChainID uint16
	PayerCount     *big.Int
	ChainCount     *big.Int
	Timestamp      *big.Int
	Details        EVMTokenAndAmount
}

type EVMPayablePayment struct {
	PayableID    [32]byte
	Payer        [32]byte
	PayerChainID uint16
	PayableCount *big.Int
	ChainCount   *big.Int
	Timestamp    *big.Int
	Details      EVMTokenAndAmount
}

type EVMWithdrawal struct {
	Host         common.Address
	PayableID    [32]byte
	HostCount    *big.Int
	PayableCount *big.Int
	Timestamp    *big.Int
	Details      EVMTokenAndAmount
}

type EVMUser struct {
	ChainCount       *big.Int
	PayablesCount    *big.Int
	PaymentsCount    *big.Int
	WithdrawalsCount *big.Int
	CreatedAt        *big.Int
}

// Solana raw payloads, borsh-encoded after the 8-byte account discriminator.

type SolanaTokenAndAmount struct {
	Token  solanago.PublicKey
	Amount uint64
}

type SolanaPayable struct {
	Host                    solanago.PublicKey
	HostCount               uint64
	ChainCount              uint64
	AllowedTokensAndAmounts []SolanaTokenAndAmount
	Balances                []SolanaTokenAndAmount
	CreatedAt               int64
	PaymentsCount           uint64
	WithdrawalsCount        uint64
	IsClosed                bool
}

type SolanaUserPayment struct {
	Payer          solanago.PublicKey
	PayableID      [32]byte
	PayableChainID uint16
	PayerCount     uint64
	ChainCount     uint64
	Timestamp      int64
	Details        SolanaTokenAndAmount
}

type SolanaPayablePayment struct {
	PayableID    solanago.PublicKey
	Payer        [32]byte
	PayerChainID uint16
	PayableCount uint64
	ChainCount   uint64
	Timestamp    int64
	Details      SolanaTokenAndAmount
}

type SolanaWithdrawal struct {
	Host         solanago.PublicKey
	PayableID    solanago.PublicKey
	HostCount    uint64
	PayableCount uint64
	Timestamp    int64
	Details      SolanaTokenAndAmount
}

type SolanaUser struct {
	Wallet           solanago.PublicKey
	ChainCount       uint64
	PayablesCount    uint64
	PaymentsCount    uint64
	WithdrawalsCount uint64
	CreatedAt        int64
}

// Cosmwasm raw payloads, JSON smart-query responses. Amounts arrive as
// decimal strings (Uint128).

type CosmosTokenAndAmount struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type CosmosPayable struct {
	Host                    string                 `json:"host"`
	HostCount               uint64                 `json:"host_count"`
	ChainCount              uint64                 `json:"chain_count"`
	AllowedTokensAndAmounts []CosmosTokenAndAmount `json:"allowed_tokens_and_amounts"`
	Balances                []CosmosTokenAndAmount `json:"balances"`
	CreatedAt               int64                  `json:"created_at"`
	PaymentsCount           uint64                 `json:"payments_count"`
	WithdrawalsCount        uint64                 `json:"withdrawals_count"`
	IsClosed                bool                   `json:"is_closed"`
}

type CosmosUserPayment struct {
	Payer          string               `json:"payer"`
	PayableID      string               `json:"payable_id"` // 32 bytes, lowercase hex
	PayableChainID uint16               `json:"payable_chain_id"`
	PayerCount     uint64               `json:"payer_count"`
	ChainCount     uint64               `json:"chain_count"`
	Timestamp      int64                `json:"timestamp"`
	Details        CosmosTokenAndAmount `json:"details"`
}

type CosmosPayablePayment struct {
	PayableID    string               `json:"payable_id"`
	Payer        string               `json:"payer"` // 32 bytes, lowercase hex
	PayerChainID uint16               `json:"payer_chain_id"`
	PayableCount uint64               `json:"payable_count"`
	ChainCount   uint64               `json:"chain_count"`
	Timestamp    int64                `json:"timestamp"`
	Details      CosmosTokenAndAmount `json:"details"`
}

type CosmosWithdrawal struct {
	Host         string               `json:"host"`
	PayableID    string               `json:"payable_id"`
	HostCount    uint64               `json:"host_count"`
	PayableCount uint64               `json:"payable_count"`
	Timestamp    int64                `json:"timestamp"`
	Details      CosmosTokenAndAmount `json:"details"`
}

type CosmosUser struct {
	Wallet           string `json:"wallet"`
	ChainCount       uint64 `json:"chain_count"`
	PayablesCount    uint64 `json:"payables_count"`
	PaymentsCount    uint64 `json:"payments_count"`
	WithdrawalsCount uint64 `json:"withdrawals_count"`
	CreatedAt        int64  `json:"created_at"`
}
