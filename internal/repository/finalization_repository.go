// Package repository provides data access interfaces and implementations.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"payables-relay/internal/cberrors"
	"payables-relay/internal/models"
)

// pqUniqueViolation is the postgres error code for duplicate keys.
const pqUniqueViolation = "23505"

// FinalizationRepository tracks the per-entity finalization state machine.
type FinalizationRepository interface {
	// Claim atomically creates the Recording row for (chain, kind, id) if
	// no row exists. created reports whether this call won the claim;
	// when it lost, existing carries the current row.
	Claim(ctx context.Context, chain string, kind models.Kind, id string) (created bool, existing *models.FinalizationRecord, err error)

	// Get returns the row for (chain, kind, id), matching the id both
	// as given and case-folded so EVM case variants share one record.
	Get(ctx context.Context, chain string, kind models.Kind, id string) (*models.FinalizationRecord, error)

	// MarkFinalized transitions the row to Finalized.
	MarkFinalized(ctx context.Context, chain string, kind models.Kind, id string) error

	// MarkFailed transitions the row to FailedRecording so a later
	// request may retry.
	MarkFailed(ctx context.Context, chain string, kind models.Kind, id string, cause string) error

	// ClaimNotification atomically claims the one-time notification for
	// the row; only the caller that gets true may send.
	ClaimNotification(ctx context.Context, chain string, kind models.Kind, id string) (bool, error)
}

type finalizationRepository struct {
	db *gorm.DB
}

// NewFinalizationRepository creates a FinalizationRepository.
func NewFinalizationRepository(db *gorm.DB) FinalizationRepository {
	return &finalizationRepository{db: db}
}

func (r *finalizationRepository) Claim(ctx context.Context, chain string, kind models.Kind, id string) (bool, *models.FinalizationRecord, error) {
	rec := models.FinalizationRecord{
		ChainName: chain,
		Kind:      kind,
		EntityID:  id,
		Status:    models.StatusRecording,
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec)
	if res.Error != nil {
		var pqErr *pq.Error
		if errors.As(res.Error, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			existing, err := r.Get(ctx, chain, kind, id)
			return false, existing, err
		}
		return false, nil, cberrors.FatalStore("claim finalization", res.Error)
	}
	if res.RowsAffected == 0 {
		existing, err := r.Get(ctx, chain, kind, id)
		return false, existing, err
	}
	return true, nil, nil
}

func (r *finalizationRepository) Get(ctx context.Context, chain string, kind models.Kind, id string) (*models.FinalizationRecord, error) {
	var rec models.FinalizationRecord
	err := r.db.WithContext(ctx).
		Where("chain_name = ? AND kind = ? AND (entity_id = ? OR LOWER(entity_id) = LOWER(?))", chain, kind, id, id).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, cberrors.FatalStore("load finalization record", err)
	}
	return &rec, nil
}

func (r *finalizationRepository) MarkFinalized(ctx context.Context, chain string, kind models.Kind, id string) error {
	err := r.db.WithContext(ctx).
		Model(&models.FinalizationRecord{}).
		Where("chain_name = ? AND kind = ? AND entity_id = ?", chain, kind, id).
		Updates(map[string]interface{}{"status": models.StatusFinalized, "last_error": ""}).Error
	if err != nil {
		return cberrors.FatalStore("mark finalized", err)
	}
	return nil
}

func (r *finalizationRepository) MarkFailed(ctx context.Context, chain string, kind models.Kind, id string, cause string) error {
	if len(cause) > 1000 {
		cause = cause[:1000]
	}
	err := r.db.WithContext(ctx).
		Model(&models.FinalizationRecord{}).
		Where("chain_name = ? AND kind = ? AND entity_id = ?", chain, kind, id).
		Updates(map[string]interface{}{"status": models.StatusFailedRecording, "last_error": cause}).Error
	if err != nil {
		return cberrors.FatalStore("mark failed", err)
	}
	return nil
}

func (r *finalizationRepository) ClaimNotification(ctx context.Context, chain string, kind models.Kind, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.FinalizationRecord{}).
		Where("chain_name = ? AND kind = ? AND entity_id = ? AND notified_at IS NULL", chain, kind, id).
		Update("notified_at", time.Now())
	if res.Error != nil {
		return false, cberrors.FatalStore("claim notification", res.Error)
	}
	return res.RowsAffected == 1, nil
}
