package service

import (
	"context"
	"errors"
	"time"

	"github.com/Fi44er/miniapp_gateway/internal/models"
	"github.com/Fi44er/miniapp_gateway/utils"
)

var ErrTokenExpired = errors.New("instagram access token expired, reconnect the account")

// Instagram long-lived tokens live 60 days; used when the refresh response
// omits expires_in.
const defaultTokenLifetime = 60 * 24 * time.Hour

// EnsureFreshToken returns the token to use for account. A token close to
// expiry is refreshed and persisted; a failed refresh falls back to the old
// token.
func (s *Service) EnsureFreshToken(ctx context.Context, account *models.InstagramAccount) (string, error) {
	if account.TokenExpiresAt == nil {
		return account.AccessToken, nil
	}

	now := s.now()
	expiresAt := *account.TokenExpiresAt
	if !expiresAt.After(now) {
		return "", ErrTokenExpired
	}
	if expiresAt.Sub(now) > s.opts.TokenRefreshHorizon {
		return account.AccessToken, nil
	}

	refreshed, err := s.instagram.RefreshToken(ctx, account.AccessToken)
	if err != nil {
		s.logger.Warnf("Failed to refresh instagram token %s for account %d, using the current one: %v", utils.MaskSecret(account.AccessToken), account.ID, err)
		return account.AccessToken, nil
	}

	lifetime := time.Duration(refreshed.ExpiresIn) * time.Second
	if lifetime <= 0 {
		lifetime = defaultTokenLifetime
	}
	newExpiry := now.Add(lifetime)

	if err := s.repo.UpdateInstagramToken(ctx, account.ID, refreshed.AccessToken, newExpiry); err != nil {
		s.logger.Errorf("Refreshed token %s for account %d but failed to persist it: %v", utils.MaskSecret(refreshed.AccessToken), account.ID, err)
	} else {
		s.logger.Infof("Refreshed instagram token for account %d to %s, expires %s", account.ID, utils.MaskSecret(refreshed.AccessToken), newExpiry.Format(time.RFC3339))
	}

	account.AccessToken = refreshed.AccessToken
	account.TokenExpiresAt = &newExpiry
	return refreshed.AccessToken, nil
}
