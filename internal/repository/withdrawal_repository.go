package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"payables-relay/internal/cberrors"
	"payables-relay/internal/models"
)

// WithdrawalRepository defines data access for canonical withdrawals.
type WithdrawalRepository interface {
	Create(ctx context.Context, w *models.Withdrawal) error
	GetByID(ctx context.Context, chain, id string) (*models.Withdrawal, error)
	FindByHost(ctx context.Context, chain, host string, page, pageSize int) ([]*models.Withdrawal, error)
	FindByPayable(ctx context.Context, chain, payableID string, page, pageSize int) ([]*models.Withdrawal, error)
}

type withdrawalRepository struct {
	db *gorm.DB
}

// NewWithdrawalRepository creates a WithdrawalRepository.
func NewWithdrawalRepository(db *gorm.DB) WithdrawalRepository {
	return &withdrawalRepository{db: db}
}

func (r *withdrawalRepository) Create(ctx context.Context, w *models.Withdrawal) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(w).Error
	if err != nil {
		return cberrors.FatalStore("persist withdrawal", err)
	}
	return nil
}

func (r *withdrawalRepository) GetByID(ctx context.Context, chain, id string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	err := r.db.WithContext(ctx).
		Where("chain_name = ? AND (id = ? OR LOWER(id) = LOWER(?))", chain, id, id).
		First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, cberrors.FatalStore("load withdrawal", err)
	}
	return &w, nil
}

func (r *withdrawalRepository) FindByHost(ctx context.Context, chain, host string, page, pageSize int) ([]*models.Withdrawal, error) {
	var out []*models.Withdrawal
	err := r.db.WithContext(ctx).
		Where("chain_name = ? AND LOWER(host) = LOWER(?)", chain, host).
		Order("host_count DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&out).Error
	if err != nil {
		return nil, cberrors.FatalStore("list withdrawals", err)
	}
	return out, nil
}

func (r *withdrawalRepository) FindByPayable(ctx context.Context, chain, payableID string, page, pageSize int) ([]*models.Withdrawal, error) {
	var out []*models.Withdrawal
	err := r.db.WithContext(ctx).
		Where("chain_name = ? AND LOWER(payable_id) = LOWER(?)", chain, payableID).
		Order("payable_count DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&out).Error
	if err != nil {
		return nil, cberrors.FatalStore("list withdrawals by payable", err)
	}
	return out, nil
}
