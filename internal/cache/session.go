package cache

import (
	"context"
	"fmt"

	"github.com/Fi44er/miniapp_gateway/utils"
	"github.com/google/uuid"
)

// Store is one layer of session storage. An empty id with a nil error is a miss.
type Store interface {
	GetSession(ctx context.Context, userID int64) (string, error)
	SaveSession(ctx context.Context, userID int64, sessionID string) error
}

// SessionCache resolves the session id of a user. Reads go through the fast
// layer first, then the durable one; writes go to both. The fast layer is
// optional and its failures are only logged.
type SessionCache struct {
	fast    Store
	durable Store
	newID   func() string
	logger  *utils.Logger
}

func NewSessionCache(fast, durable Store, logger *utils.Logger) *SessionCache {
	return &SessionCache{
		fast:    fast,
		durable: durable,
		newID:   func() string { return uuid.NewString() },
		logger:  logger,
	}
}

func (c *SessionCache) Resolve(ctx context.Context, userID int64) (string, error) {
	if c.fast != nil {
		id, err := c.fast.GetSession(ctx, userID)
		if err != nil {
			c.logger.Warnf("Session cache read failed for user %d, falling back to database: %v", userID, err)
		} else if id != "" {
			return id, nil
		}
	}

	id, err := c.durable.GetSession(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}

	if id == "" {
		id = c.newID()
		if err := c.durable.SaveSession(ctx, userID, id); err != nil {
			return "", fmt.Errorf("save session: %w", err)
		}
		c.logger.Debugf("Created session %s for user %d", id, userID)
	}

	c.warm(ctx, userID, id)
	return id, nil
}

func (c *SessionCache) warm(ctx context.Context, userID int64, id string) {
	if c.fast == nil {
		return
	}
	if err := c.fast.SaveSession(ctx, userID, id); err != nil {
		c.logger.Warnf("Failed to cache session for user %d: %v", userID, err)
	}
}
