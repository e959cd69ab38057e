package service

import (
	"context"
	"time"

	"github.com/Fi44er/miniapp_gateway/internal/instagram"
	"github.com/Fi44er/miniapp_gateway/internal/models"
	"github.com/Fi44er/miniapp_gateway/internal/order"
	"github.com/Fi44er/miniapp_gateway/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	GetUser(ctx context.Context, telegramID int64) (*models.User, error)
	IncrementBalance(ctx context.Context, userID, delta int64, tx *gorm.DB) (int64, error)
	CreateLedgerEntry(ctx context.Context, entry *models.Transaction, tx *gorm.DB) error

	ClaimOrder(ctx context.Context, orderID string, telegramID int64) error

	BeginTransaction(ctx context.Context) (*gorm.DB, error)
	Commit(tx *gorm.DB) error
	Rollback(tx *gorm.DB)

	GetActiveInstagramAccount(ctx context.Context, userID int64) (*models.InstagramAccount, error)
	UpdateInstagramToken(ctx context.Context, accountID uint, token string, expiresAt time.Time) error

	GetPost(ctx context.Context, id uuid.UUID) (*models.Post, error)
	MarkPostPublished(ctx context.Context, id uuid.UUID, instagramPostID string, publishedAt time.Time) error
	MarkPostFailed(ctx context.Context, id uuid.UUID, message string) error
	GetDuePosts(ctx context.Context, now time.Time, limit int) ([]models.Post, error)
	AppendPublishLog(ctx context.Context, entry *models.PublishLog) error
}

type Notifier interface {
	NotifyAdmins(text string)
	NotifyUser(chatID int64, text string)
}

type InstagramAPI interface {
	CreateImageContainer(ctx context.Context, igUserID, token, imageURL, caption string) (string, error)
	CreateCarouselItem(ctx context.Context, igUserID, token, imageURL string) (string, error)
	CreateCarouselContainer(ctx context.Context, igUserID, token string, children []string, caption string) (string, error)
	Publish(ctx context.Context, igUserID, token, creationID string) (string, error)
	RefreshToken(ctx context.Context, token string) (*instagram.RefreshedToken, error)
}

type ContainerWaiter interface {
	WaitReady(ctx context.Context, containerID, token string) error
}

type Options struct {
	OrderPrefix         string
	WebhookSecret       string
	ReferralPercent     int64
	TokenRefreshHorizon time.Duration
}

type Service struct {
	repo      Repository
	notifier  Notifier
	instagram InstagramAPI
	poller    ContainerWaiter
	codec     *order.Codec
	opts      Options
	now       func() time.Time
	logger    *utils.Logger
}

func NewService(repo Repository, notifier Notifier, ig InstagramAPI, poller ContainerWaiter, opts Options, logger *utils.Logger) *Service {
	if opts.TokenRefreshHorizon <= 0 {
		opts.TokenRefreshHorizon = 7 * 24 * time.Hour
	}
	return &Service{
		repo:      repo,
		notifier:  notifier,
		instagram: ig,
		poller:    poller,
		codec:     order.NewCodec(opts.OrderPrefix),
		opts:      opts,
		now:       time.Now,
		logger:    logger,
	}
}

// SetClock replaces the wall clock. Tests only.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}
