package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"payables-relay/internal/cberrors"
	"payables-relay/internal/models"
)

// PaymentRepository defines data access for both payment records: the
// payer-side UserPayment and the payable-side PayablePayment.
type PaymentRepository interface {
	CreateUserPayment(ctx context.Context, p *models.UserPayment) error
	GetUserPayment(ctx context.Context, chain, id string) (*models.UserPayment, error)
	FindByPayer(ctx context.Context, chain, payer string, page, pageSize int) ([]*models.UserPayment, error)
	MergeUserPaymentMetadata(ctx context.Context, chain, id, email string) error

	CreatePayablePayment(ctx context.Context, p *models.PayablePayment) error
	GetPayablePayment(ctx context.Context, chain, id string) (*models.PayablePayment, error)
	FindByPayable(ctx context.Context, chain, payableID string, page, pageSize int) ([]*models.PayablePayment, error)
}

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a PaymentRepository.
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) CreateUserPayment(ctx context.Context, p *models.UserPayment) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(p).Error
	if err != nil {
		return cberrors.FatalStore("persist user payment", err)
	}
	return nil
}

func (r *paymentRepository) GetUserPayment(ctx context.Context, chain, id string) (*models.UserPayment, error) {
	var p models.UserPayment
	err := r.db.WithContext(ctx).
		Where("chain_name = ? AND (id = ? OR LOWER(id) = LOWER(?))", chain, id, id).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, cberrors.FatalStore("load user payment", err)
	}
	return &p, nil
}

func (r *paymentRepository) FindByPayer(ctx context.Context, chain, payer string, page, pageSize int) ([]*models.UserPayment, error) {
	var out []*models.UserPayment
	err := r.db.WithContext(ctx).
		Where("chain_name = ? AND LOWER(payer) = LOWER(?)", chain, payer).
		Order("payer_count DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&out).Error
	if err != nil {
		return nil, cberrors.FatalStore("list user payments", err)
	}
	return out, nil
}

func (r *paymentRepository) MergeUserPaymentMetadata(ctx context.Context, chain, id, email string) error {
	if email == "" {
		return nil
	}
	err := r.db.WithContext(ctx).
		Model(&models.UserPayment{}).
		Where("chain_name = ? AND id = ?", chain, id).
		Update("email", email).Error
	if err != nil {
		return cberrors.FatalStore("merge payment metadata", err)
	}
	return nil
}

func (r *paymentRepository) CreatePayablePayment(ctx context.Context, p *models.PayablePayment) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(p).Error
	if err != nil {
		return cberrors.FatalStore("persist payable payment", err)
	}
	return nil
}

func (r *paymentRepository) GetPayablePayment(ctx context.Context, chain, id string) (*models.PayablePayment, error) {
	var p models.PayablePayment
	err := r.db.WithContext(ctx).
		Where("chain_name = ? AND (id = ? OR LOWER(id) = LOWER(?))", chain, id, id).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, cberrors.FatalStore("load payable payment", err)
	}
	return &p, nil
}

func (r *paymentRepository) FindByPayable(ctx context.Context, chain, payableID string, page, pageSize int) ([]*models.PayablePayment, error) {
	var out []*models.PayablePayment
	err := r.db.WithContext(ctx).
		Where("chain_name = ? AND LOWER(payable_id) = LOWER(?)", chain, payableID).
		Order("payable_count DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&out).Error
	if err != nil {
		return nil, cberrors.FatalStore("list payable payments", err)
	}
	return out, nil
}
