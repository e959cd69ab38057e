package repository

import (
	"context"
	"fmt"

	"github.com/Fi44er/miniapp_gateway/internal/models"
	"gorm.io/gorm"
)

func (r *Repository) CreateLedgerEntry(ctx context.Context, entry *models.Transaction, tx *gorm.DB) error {
	if err := r.conn(tx).WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}
	return nil
}

func (r *Repository) GetLedgerEntries(ctx context.Context, userID int64) ([]models.Transaction, error) {
	var entries []models.Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&entries).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries for user %d: %w", userID, err)
	}
	return entries, nil
}
