package repository

import (
	"context"
	"errors"

	"github.com/Fi44er/miniapp_gateway/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (r *Repository) GetSession(ctx context.Context, userID int64) (string, error) {
	var session models.UserSession
	err := r.db.WithContext(ctx).First(&session, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return session.SessionID, nil
}

func (r *Repository) SaveSession(ctx context.Context, userID int64, sessionID string) error {
	session := &models.UserSession{UserID: userID, SessionID: sessionID}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"session_id", "updated_at"}),
		}).
		Create(session).
		Error
}
