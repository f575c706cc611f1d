// Package models holds the canonical entity records. Every row mirrors an
// immutable on-chain account or contract record; this service only observes
// and persists them. Counters are write-once values set by the chain at
// creation time and are never recomputed here.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Kind discriminates the entity families tracked by the relay.
type Kind string

const (
	KindPayable        Kind = "payable"
	KindUserPayment    Kind = "user_payment"
	KindPayablePayment Kind = "payable_payment"
	KindWithdrawal     Kind = "withdrawal"
	KindUser           Kind = "user"
)

// Valid reports whether k is a registered kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPayable, KindUserPayment, KindPayablePayment, KindWithdrawal, KindUser:
		return true
	}
	return false
}

// TokenAmount is the persisted form of a resolved token amount.
type TokenAmount struct {
	Token   string `json:"token"`   // chain-native token identifier
	Symbol  string `json:"symbol"`  // catalog symbol
	Amount  string `json:"amount"`  // raw base units, decimal string
	Display string `json:"display"` // raw / 10^decimals
}

// TokenAmountList stores token amounts as a JSONB column.
type TokenAmountList []TokenAmount

// Value implements driver.Valuer.
func (l TokenAmountList) Value() (driver.Value, error) {
	if l == nil {
		l = TokenAmountList{}
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *TokenAmountList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into TokenAmountList", src)
	}
}

// Payable is a host-created invoice-like record specifying accepted tokens
// and accumulated balances.
type Payable struct {
	ID        string `json:"id" gorm:"primaryKey;size:128"`
	ChainName string `json:"chainName" gorm:"primaryKey;size:32"`
	ChainID   uint16 `json:"chainId" gorm:"not null"`

	Host       string `json:"host" gorm:"size:128;index;not null"`
	HostCount  uint64 `json:"hostCount" gorm:"not null"`
	ChainCount uint64 `json:"chainCount" gorm:"not null"`

	AllowedTokensAndAmounts TokenAmountList `json:"allowedTokensAndAmounts" gorm:"type:jsonb"`
	Balances                TokenAmountList `json:"balances" gorm:"type:jsonb"`

	IsClosed         bool   `json:"isClosed"`
	CreatedOnChainAt int64  `json:"createdOnChainAt" gorm:"not null"` // epoch seconds
	PaymentsCount    uint64 `json:"paymentsCount"`
	WithdrawalsCount uint64 `json:"withdrawalsCount"`

	// Off-chain metadata, merged at finalization and never allowed to
	// overwrite on-chain-sourced fields.
	Description string `json:"description,omitempty" gorm:"size:2048"`
	Email       string `json:"email,omitempty" gorm:"size:320"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// UserPayment is a payment recorded on the payer's chain. Its payable may
// live on a different chain; PayableID is already decoded with the payable
// chain's address family.
type UserPayment struct {
	ID        string `json:"id" gorm:"primaryKey;size:128"`
	ChainName string `json:"chainName" gorm:"primaryKey;size:32"`
	ChainID   uint16 `json:"chainId" gorm:"not null"`

	Payer          string `json:"payer" gorm:"size:128;index;not null"`
	PayableID      string `json:"payableId" gorm:"size:128;index;not null"`
	PayableChainID uint16 `json:"payableChainId" gorm:"not null"`

	PayerCount uint64 `json:"payerCount" gorm:"not null"`
	ChainCount uint64 `json:"chainCount" gorm:"not null"`

	Details TokenAmountList `json:"details" gorm:"type:jsonb"`

	CreatedOnChainAt int64 `json:"createdOnChainAt" gorm:"not null"`

	Email string `json:"email,omitempty" gorm:"size:320"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// PayablePayment is the same transfer recorded on the payable's chain. The
// payer may live on a different chain; Payer is already decoded with the
// payer chain's address family.
type PayablePayment struct {
	ID        string `json:"id" gorm:"primaryKey;size:128"`
	ChainName string `json:"chainName" gorm:"primaryKey;size:32"`
	ChainID   uint16 `json:"chainId" gorm:"not null"`

	PayableID    string `json:"payableId" gorm:"size:128;index;not null"`
	Payer        string `json:"payer" gorm:"size:128;not null"`
	PayerChainID uint16 `json:"payerChainId" gorm:"not null"`

	PayableCount uint64 `json:"payableCount" gorm:"not null"`
	ChainCount   uint64 `json:"chainCount" gorm:"not null"`

	Details TokenAmountList `json:"details" gorm:"type:jsonb"`

	CreatedOnChainAt int64 `json:"createdOnChainAt" gorm:"not null"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Withdrawal is a record of a host extracting accumulated balance from a
// payable.
type Withdrawal struct {
	ID        string `json:"id" gorm:"primaryKey;size:128"`
	ChainName string `json:"chainName" gorm:"primaryKey;size:32"`
	ChainID   uint16 `json:"chainId" gorm:"not null"`

	PayableID string `json:"payableId" gorm:"size:128;index;not null"`
	Host      string `json:"host" gorm:"size:128;index;not null"`

	PayableCount uint64 `json:"payableCount" gorm:"not null"`
	HostCount    uint64 `json:"hostCount" gorm:"not null"`

	Details TokenAmountList `json:"details" gorm:"type:jsonb"`

	CreatedOnChainAt int64 `json:"createdOnChainAt" gorm:"not null"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// User is a wallet's per-chain activity record.
type User struct {
	WalletAddress string `json:"walletAddress" gorm:"primaryKey;size:128"`
	ChainName     string `json:"chainName" gorm:"primaryKey;size:32"`
	ChainID       uint16 `json:"chainId" gorm:"not null"`

	ChainCount       uint64 `json:"chainCount" gorm:"not null"`
	PayablesCount    uint64 `json:"payablesCount"`
	PaymentsCount    uint64 `json:"paymentsCount"`
	WithdrawalsCount uint64 `json:"withdrawalsCount"`

	CreatedOnChainAt int64 `json:"createdOnChainAt" gorm:"not null"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}
