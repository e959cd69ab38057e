package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Fi44er/miniapp_gateway/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GetPost loads a post with its media in publishing order.
func (r *Repository) GetPost(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).
		Preload("Media", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&post, "id = ?", id).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post %s: %w", id, err)
	}
	return &post, nil
}

func (r *Repository) CreatePost(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

func (r *Repository) MarkPostPublished(ctx context.Context, id uuid.UUID, instagramPostID string, publishedAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":            models.PostStatusPublished,
			"instagram_post_id": instagramPostID,
			"published_at":      publishedAt,
			"error_message":     "",
		}).
		Error
	if err != nil {
		return fmt.Errorf("failed to mark post %s published: %w", id, err)
	}
	return nil
}

func (r *Repository) MarkPostFailed(ctx context.Context, id uuid.UUID, message string) error {
	err := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        models.PostStatusFailed,
			"error_message": message,
		}).
		Error
	if err != nil {
		return fmt.Errorf("failed to mark post %s failed: %w", id, err)
	}
	return nil
}

func (r *Repository) GetDuePosts(ctx context.Context, now time.Time, limit int) ([]models.Post, error) {
	var posts []models.Post
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", models.PostStatusScheduled, now).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&posts).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to get due posts: %w", err)
	}
	return posts, nil
}

func (r *Repository) AppendPublishLog(ctx context.Context, entry *models.PublishLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append publish log: %w", err)
	}
	return nil
}

func (r *Repository) GetPublishLogs(ctx context.Context, postID uuid.UUID) ([]models.PublishLog, error) {
	var logs []models.PublishLog
	err := r.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("id ASC").
		Find(&logs).
		Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
