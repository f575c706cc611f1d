package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"payables-relay/internal/cberrors"
	"payables-relay/internal/models"
)

// UserRepository defines data access for per-chain user activity records.
type UserRepository interface {
	// Upsert stores the latest observed snapshot of a user's counters.
	// User rows are the one entity whose counters advance over time, so
	// unlike the other repositories this overwrites.
	Upsert(ctx context.Context, u *models.User) error
	Get(ctx context.Context, chain, wallet string) (*models.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a UserRepository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Upsert(ctx context.Context, u *models.User) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "wallet_address"}, {Name: "chain_name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"chain_count", "payables_count", "payments_count", "withdrawals_count", "updated_at",
			}),
		}).
		Create(u).Error
	if err != nil {
		return cberrors.FatalStore("persist user", err)
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, chain, wallet string) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).
		Where("chain_name = ? AND LOWER(wallet_address) = LOWER(?)", chain, wallet).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, cberrors.FatalStore("load user", err)
	}
	return &u, nil
}
