package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"payables-relay/internal/cberrors"
	"payables-relay/internal/models"
)

// PayableRepository defines data access for canonical payables.
type PayableRepository interface {
	// Create persists a canonical payable. The on-chain fields of an
	// existing row are left untouched; only off-chain metadata merges in.
	Create(ctx context.Context, payable *models.Payable) error
	GetByID(ctx context.Context, chain, id string) (*models.Payable, error)
	FindByHost(ctx context.Context, chain, host string, page, pageSize int) ([]*models.Payable, error)
	MergeMetadata(ctx context.Context, chain, id, description, email string) error
}

type payableRepository struct {
	db *gorm.DB
}

// NewPayableRepository creates a PayableRepository.
func NewPayableRepository(db *gorm.DB) PayableRepository {
	return &payableRepository{db: db}
}

func (r *payableRepository) Create(ctx context.Context, payable *models.Payable) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(payable).Error
	if err != nil {
		return cberrors.FatalStore("persist payable", err)
	}
	return nil
}

func (r *payableRepository) GetByID(ctx context.Context, chain, id string) (*models.Payable, error) {
	var p models.Payable
	err := r.db.WithContext(ctx).
		Where("chain_name = ? AND (id = ? OR LOWER(id) = LOWER(?))", chain, id, id).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, cberrors.FatalStore("load payable", err)
	}
	return &p, nil
}

func (r *payableRepository) FindByHost(ctx context.Context, chain, host string, page, pageSize int) ([]*models.Payable, error) {
	var out []*models.Payable
	err := r.db.WithContext(ctx).
		Where("chain_name = ? AND LOWER(host) = LOWER(?)", chain, host).
		Order("host_count DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&out).Error
	if err != nil {
		return nil, cberrors.FatalStore("list payables", err)
	}
	return out, nil
}

// MergeMetadata updates only the off-chain fields; on-chain-sourced columns
// are never written here.
func (r *payableRepository) MergeMetadata(ctx context.Context, chain, id, description, email string) error {
	updates := map[string]interface{}{}
	if description != "" {
		updates["description"] = description
	}
	if email != "" {
		updates["email"] = email
	}
	if len(updates) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Model(&models.Payable{}).
		Where("chain_name = ? AND id = ?", chain, id).
		Updates(updates).Error
	if err != nil {
		return cberrors.FatalStore("merge payable metadata", err)
	}
	return nil
}
