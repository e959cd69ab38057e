package service

import (
	"context"
	"fmt"

	"github.com/Fi44er/miniapp_gateway/internal/bot"
	"github.com/Fi44er/miniapp_gateway/internal/models"
)

// PayReferralBonus credits the buyer's referrer with a share of the purchased
// coins and returns the bonus paid. No referrer or a zero bonus is a no-op.
func (s *Service) PayReferralBonus(ctx context.Context, buyerID, coinsPurchased int64, orderID string) (int64, error) {
	buyer, err := s.repo.GetUser(ctx, buyerID)
	if err != nil {
		return 0, fmt.Errorf("load buyer: %w", err)
	}
	if buyer == nil || buyer.ReferrerID == nil || *buyer.ReferrerID == buyerID {
		return 0, nil
	}

	bonus := coinsPurchased * s.opts.ReferralPercent / 100
	if bonus <= 0 {
		return 0, nil
	}

	referrerID := *buyer.ReferrerID
	_, err = s.ApplyCredit(ctx, referrerID, bonus, models.TransactionReferral,
		fmt.Sprintf("Реферальный бонус %d%% от покупки", s.opts.ReferralPercent),
		map[string]any{
			"source":          "referral",
			"order_id":        orderID,
			"referral_id":     buyerID,
			"coins_purchased": coinsPurchased,
			"percent":         s.opts.ReferralPercent,
		})
	if err != nil {
		return 0, fmt.Errorf("credit referrer %d: %w", referrerID, err)
	}

	s.notifier.NotifyUser(referrerID, bot.ReferralBonusUser(bonus, buyerID))
	return bonus, nil
}
