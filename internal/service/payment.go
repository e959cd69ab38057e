package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Fi44er/miniapp_gateway/internal/bot"
	"github.com/Fi44er/miniapp_gateway/internal/models"
	"github.com/Fi44er/miniapp_gateway/internal/order"
	"github.com/Fi44er/miniapp_gateway/internal/payload"
	"github.com/Fi44er/miniapp_gateway/internal/repository"
	"github.com/Fi44er/miniapp_gateway/internal/signature"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// WebhookOutcome says what a payment notification ended up doing. Every
// outcome is answered with 200 OK.
type WebhookOutcome string

const (
	OutcomeCredited       WebhookOutcome = "credited"
	OutcomeDuplicate      WebhookOutcome = "duplicate"
	OutcomeForeign        WebhookOutcome = "foreign"
	OutcomeIgnored        WebhookOutcome = "ignored"
	OutcomeRejected       WebhookOutcome = "rejected"
	OutcomeUnresolved     WebhookOutcome = "unresolved"
	OutcomeUnknownPackage WebhookOutcome = "unknown_package"
	OutcomeCreditFailed   WebhookOutcome = "credit_failed"
	OutcomeFailed         WebhookOutcome = "failed"
)

type WebhookRequest struct {
	Body        []byte
	ContentType string
	Signature   string
	RemoteAddr  string
}

// HandlePaymentWebhook processes one payment notification. Conditions that
// were fully handled (including admin alerts) return a nil error; a non-nil
// error means something unexpected happened and nobody has been told yet.
func (s *Service) HandlePaymentWebhook(ctx context.Context, req WebhookRequest) (WebhookOutcome, error) {
	raw, err := payload.Decode(req.Body, req.ContentType)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("decode payment payload: %w", err)
	}

	event := parsePaymentEvent(raw, req.Signature)
	log := s.logger.WithFields(logrus.Fields{
		"order_id": event.OrderID,
		"status":   event.Status,
	})

	if s.opts.WebhookSecret == "" {
		log.Warn("WEBHOOK_SECRET is not set, skipping signature verification")
	} else if !signature.Verify(event.Raw, event.Signature, s.opts.WebhookSecret) {
		log.Warnf("Rejected payment webhook with invalid signature from %s", req.RemoteAddr)
		if s.codec.Owns(event.OrderID) {
			s.notifier.NotifyAdmins(bot.InvalidSignatureAdmin(event.OrderID, req.RemoteAddr))
		}
		return OutcomeRejected, nil
	}

	if !s.codec.Owns(event.OrderID) {
		log.Info("Ignoring payment webhook for a foreign order")
		return OutcomeForeign, nil
	}

	if event.Status != models.PaymentStatusSuccess {
		log.Info("Ignoring payment webhook with non-success status")
		return OutcomeIgnored, nil
	}

	telegramID, packageID := s.resolveIdentity(event)
	if telegramID == 0 {
		log.Error("Cannot resolve telegram id for paid order")
		s.notifier.NotifyAdmins(bot.MissingIdentityAdmin(event.OrderID, event.CustomerExtra))
		return OutcomeUnresolved, nil
	}
	log = log.WithFields(logrus.Fields{"telegram_id": telegramID, "package_id": packageID})

	if err := s.repo.ClaimOrder(ctx, event.OrderID, telegramID); err != nil {
		if errors.Is(err, repository.ErrAlreadyClaimed) {
			log.Info("Order already processed, skipping")
			return OutcomeDuplicate, nil
		}
		return OutcomeFailed, fmt.Errorf("claim order %s: %w", event.OrderID, err)
	}

	amount := event.Amount.StringFixed(2)

	pkg, ok := models.LookupPackage(packageID)
	if !ok {
		log.Error("Unknown package in paid order")
		s.notifier.NotifyAdmins(bot.UnknownPackageAdmin(event.OrderID, telegramID, packageID, amount))
		return OutcomeUnknownPackage, nil
	}

	if !event.Amount.IsZero() && !event.Amount.Equal(pkg.Price) {
		log.Warnf("Paid amount %s differs from package price %s", amount, pkg.Price.StringFixed(2))
		s.notifier.NotifyAdmins(bot.AmountMismatchAdmin(event.OrderID, amount, pkg.Price.StringFixed(2)))
	}

	balance, err := s.ApplyCredit(ctx, telegramID, pkg.Coins, models.TransactionPurchase,
		fmt.Sprintf("Покупка пакета %s", pkg.Title),
		map[string]any{
			"source":             s.codec.Prefix(),
			"order_id":           event.OrderID,
			"package_id":         pkg.ID,
			"amount_in_currency": amount,
		})
	if err != nil {
		log.Errorf("Failed to credit paid order: %v", err)
		s.notifier.NotifyAdmins(bot.CreditFailedAdmin(event.OrderID, telegramID, pkg.ID, pkg.Coins, err))
		return OutcomeCreditFailed, nil
	}

	if bonus, err := s.PayReferralBonus(ctx, telegramID, pkg.Coins, event.OrderID); err != nil {
		log.Errorf("Failed to pay referral bonus: %v", err)
	} else if bonus > 0 {
		log.Infof("Paid referral bonus of %d coins", bonus)
	}

	s.notifier.NotifyAdmins(bot.PaymentCreditedAdmin(event.OrderID, telegramID, pkg.Title, pkg.Coins, amount, balance))
	s.notifier.NotifyUser(telegramID, bot.PaymentCreditedUser(pkg.Coins, balance))

	log.Infof("Payment processed: +%d coins, balance %d", pkg.Coins, balance)
	return OutcomeCredited, nil
}

// resolveIdentity prefers the positional order id and falls back to the
// customer_extra text and the first product name.
func (s *Service) resolveIdentity(event models.PaymentEvent) (int64, string) {
	if o, err := s.codec.Decode(event.OrderID); err == nil {
		return o.TelegramID, o.PackageID
	}

	var telegramID int64
	if id, ok := order.TelegramIDFromExtra(event.CustomerExtra); ok {
		telegramID = id
	}

	var packageID string
	if name, ok := payload.Lookup(event.Raw, "products", "0", "name"); ok {
		if str, ok := name.(string); ok {
			packageID = strings.TrimSpace(str)
		}
	}
	return telegramID, packageID
}

func parsePaymentEvent(raw map[string]any, sign string) models.PaymentEvent {
	amount, err := decimal.NewFromString(strings.ReplaceAll(payload.String(raw, "sum"), ",", "."))
	if err != nil {
		amount = decimal.Zero
	}
	return models.PaymentEvent{
		OrderID:       payload.FirstString(raw, "order_num", "order_id"),
		Amount:        amount,
		Status:        strings.TrimSpace(payload.String(raw, "payment_status")),
		CustomerExtra: payload.String(raw, "customer_extra"),
		Signature:     sign,
		Raw:           raw,
	}
}
