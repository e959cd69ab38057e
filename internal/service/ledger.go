package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Fi44er/miniapp_gateway/internal/models"
	"gorm.io/datatypes"
)

// ApplyCredit adds amount to the user's balance and records the ledger row in
// one transaction. It returns the balance after the credit.
func (s *Service) ApplyCredit(ctx context.Context, userID, amount int64, txType models.TransactionType, description string, metadata map[string]any) (int64, error) {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return 0, fmt.Errorf("marshal metadata: %w", err)
	}

	tx, err := s.repo.BeginTransaction(ctx)
	if err != nil {
		return 0, err
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("Panic occurred while crediting user %d: %v", userID, r)
			s.repo.Rollback(tx)
			panic(r)
		}
	}()

	balance, err := s.repo.IncrementBalance(ctx, userID, amount, tx)
	if err != nil {
		s.logger.Errorf("Failed to increment balance for user %d: %v", userID, err)
		s.repo.Rollback(tx)
		return 0, fmt.Errorf("increment balance: %w", err)
	}

	entry := &models.Transaction{
		UserID:       userID,
		Amount:       amount,
		Type:         txType,
		Description:  description,
		BalanceAfter: balance,
		Metadata:     datatypes.JSON(meta),
	}
	if err := s.repo.CreateLedgerEntry(ctx, entry, tx); err != nil {
		s.logger.Errorf("Failed to create ledger entry for user %d: %v", userID, err)
		s.repo.Rollback(tx)
		return 0, fmt.Errorf("create ledger entry: %w", err)
	}

	if err := s.repo.Commit(tx); err != nil {
		return 0, fmt.Errorf("commit credit: %w", err)
	}

	s.logger.Infof("Credited %d coins (%s) to user %d, balance %d", amount, txType, userID, balance)
	return balance, nil
}
