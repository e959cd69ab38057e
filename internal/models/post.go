package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusPublished PostStatus = "published"
	PostStatusFailed    PostStatus = "failed"
)

type InstagramAccount struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          int64      `gorm:"index;not null" json:"user_id"`
	InstagramUserID string     `gorm:"not null" json:"instagram_user_id"`
	AccessToken     string     `gorm:"not null" json:"-"`
	TokenExpiresAt  *time.Time `json:"token_expires_at,omitempty"`
	Username        string     `json:"username"`
	IsActive        bool       `gorm:"not null" json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type Post struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          int64      `gorm:"index;not null" json:"user_id"`
	Caption         string     `json:"caption"`
	Status          PostStatus `gorm:"type:varchar(16);not null;default:draft;index" json:"status"`
	ScheduledAt     *time.Time `gorm:"index" json:"scheduled_at,omitempty"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	InstagramPostID string     `json:"instagram_post_id,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	Media []PostMedia `gorm:"foreignKey:PostID" json:"media"`
}

func (p *Post) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// MediaURLs returns the image URLs in publishing order.
func (p *Post) MediaURLs() []string {
	urls := make([]string, 0, len(p.Media))
	for _, m := range p.Media {
		urls = append(urls, m.URL)
	}
	return urls
}

type PostMedia struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	PostID   uuid.UUID `gorm:"type:uuid;index;not null" json:"post_id"`
	Position int       `gorm:"not null" json:"position"`
	URL      string    `gorm:"not null" json:"url"`
}

type PublishAction string

const (
	PublishActionSuccess PublishAction = "success"
	PublishActionError   PublishAction = "error"
)

// PublishLog is append-only.
type PublishLog struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	PostID    uuid.UUID      `gorm:"type:uuid;index;not null" json:"post_id"`
	Action    PublishAction  `gorm:"type:varchar(16);not null" json:"action"`
	Message   string         `json:"message"`
	Details   datatypes.JSON `json:"details"`
	CreatedAt time.Time      `json:"created_at"`
}
