package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Fi44er/miniapp_gateway/internal/models"
	"gorm.io/gorm"
)

func (r *Repository) GetActiveInstagramAccount(ctx context.Context, userID int64) (*models.InstagramAccount, error) {
	var account models.InstagramAccount
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("updated_at DESC").
		First(&account).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instagram account for user %d: %w", userID, err)
	}
	return &account, nil
}

func (r *Repository) CreateInstagramAccount(ctx context.Context, account *models.InstagramAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *Repository) UpdateInstagramToken(ctx context.Context, accountID uint, token string, expiresAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.InstagramAccount{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"access_token":     token,
			"token_expires_at": expiresAt,
		}).
		Error
	if err != nil {
		return fmt.Errorf("failed to update instagram token: %w", err)
	}
	return nil
}
