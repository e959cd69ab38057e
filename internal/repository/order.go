package repository

import (
	"context"
	"fmt"

	"github.com/Fi44er/miniapp_gateway/internal/models"
)

// ClaimOrder records orderID as processed. It returns ErrAlreadyClaimed when
// the unique index on order_id rejects the insert, which is the only source of
// truth for "this order was handled before".
func (r *Repository) ClaimOrder(ctx context.Context, orderID string, telegramID int64) error {
	claim := &models.ProcessedOrder{OrderID: orderID, TelegramID: telegramID}
	err := r.db.WithContext(ctx).Create(claim).Error
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return ErrAlreadyClaimed
	}
	return fmt.Errorf("failed to claim order %s: %w", orderID, err)
}
