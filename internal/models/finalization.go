package models

import "time"

// FinalizationStatus is the persisted state machine per entity id.
type FinalizationStatus string

const (
	// StatusRecording marks a finalize request that has claimed the id but
	// not yet durably persisted the canonical record.
	StatusRecording FinalizationStatus = "recording"
	// StatusFinalized marks a durably persisted record whose notification
	// has been dispatched (or claimed).
	StatusFinalized FinalizationStatus = "finalized"
	// StatusFailedRecording marks a claim whose fetch or persist failed;
	// a later finalize request may retry it.
	StatusFailedRecording FinalizationStatus = "failed_recording"
)

// FinalizationRecord tracks the Unseen -> Recording -> Finalized transition
// for one entity id. EntityID is stored in the chain's canonical convention
// (lowercased for EVM) so case variants of one id share a row. The unique
// primary key backs the atomic create-if-absent claim; it bounds duplicate
// work but does not eliminate it, so the notification claim below is the
// final gate.
type FinalizationRecord struct {
	ChainName string             `json:"chainName" gorm:"primaryKey;size:32"`
	Kind      Kind               `json:"kind" gorm:"primaryKey;size:24"`
	EntityID  string             `json:"entityId" gorm:"primaryKey;size:128"`
	Status    FinalizationStatus `json:"status" gorm:"size:24;not null"`

	// NotifiedAt is set by the single request that wins the notification
	// claim; the host notification fires at most once per row.
	NotifiedAt *time.Time `json:"notifiedAt,omitempty"`

	LastError string `json:"-" gorm:"size:1024"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}
