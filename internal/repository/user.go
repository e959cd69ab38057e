package repository

import (
	"context"
	"errors"

	"github.com/Fi44er/miniapp_gateway/internal/models"
	"gorm.io/gorm"
)

func (r *Repository) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "telegram_id = ?", telegramID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// IncrementBalance adds delta to the user's balance and returns the new value.
// The UPDATE takes a row lock, so concurrent increments inside transactions
// serialize instead of losing writes.
func (r *Repository) IncrementBalance(ctx context.Context, userID, delta int64, tx *gorm.DB) (int64, error) {
	db := r.conn(tx).WithContext(ctx)

	res := db.Model(&models.User{}).
		Where("telegram_id = ?", userID).
		Update("balance", gorm.Expr("balance + ?", delta))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrUserNotFound
	}

	var balance int64
	if err := db.Model(&models.User{}).
		Where("telegram_id = ?", userID).
		Select("balance").
		Scan(&balance).Error; err != nil {
		return 0, err
	}
	return balance, nil
}
