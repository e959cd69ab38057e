package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Fi44er/miniapp_gateway/internal/bot"
	"github.com/Fi44er/miniapp_gateway/internal/instagram"
	"github.com/Fi44er/miniapp_gateway/internal/models"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

var (
	ErrPostNotFound        = errors.New("post not found")
	ErrNotPostOwner        = errors.New("post belongs to another user")
	ErrAlreadyPublished    = errors.New("post is already published")
	ErrAccountNotConnected = errors.New("instagram account is not connected")
	ErrNoMedia             = errors.New("post has no media")
	ErrTooManyMedia        = errors.New("carousel supports at most 10 images")
)

const (
	MaxCarouselItems = 10
	duePostsBatch    = 20
)

var publishTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gateway_publish_total",
		Help: "Instagram publish attempts by result",
	},
	[]string{"result"},
)

type PublishResult struct {
	PostID          uuid.UUID
	InstagramPostID string
	ContainerID     string
}

// stepError remembers which stage of the publish flow failed.
type stepError struct {
	step        string
	containerID string
	err         error
}

func (e *stepError) Error() string {
	return fmt.Sprintf("%s: %v", e.step, e.err)
}

func (e *stepError) Unwrap() error {
	return e.err
}

func failStep(step, containerID string, err error) error {
	return &stepError{step: step, containerID: containerID, err: err}
}

// PublishPostForUser publishes a post on behalf of userID, who must own it.
func (s *Service) PublishPostForUser(ctx context.Context, postID uuid.UUID, userID int64) (*PublishResult, error) {
	post, err := s.repo.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrPostNotFound
	}
	if post.UserID != userID {
		return nil, ErrNotPostOwner
	}
	return s.publish(ctx, post)
}

// PublishPost pushes a post to Instagram. Any failure after the post is loaded
// leaves it in the failed state with a publish log entry; nothing is retried.
func (s *Service) PublishPost(ctx context.Context, postID uuid.UUID) (*PublishResult, error) {
	post, err := s.repo.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrPostNotFound
	}
	return s.publish(ctx, post)
}

func (s *Service) publish(ctx context.Context, post *models.Post) (*PublishResult, error) {
	if post.Status == models.PostStatusPublished {
		return nil, ErrAlreadyPublished
	}

	log := s.logger.WithFields(logrus.Fields{"post_id": post.ID, "user_id": post.UserID})
	log.Infof("Publishing post with %d media", len(post.Media))

	containerID, mediaID, err := s.pushToInstagram(ctx, post)
	if err != nil {
		s.recordFailure(ctx, log, post, err)
		return nil, err
	}

	publishedAt := s.now()
	result := &PublishResult{PostID: post.ID, InstagramPostID: mediaID, ContainerID: containerID}

	if err := s.repo.MarkPostPublished(ctx, post.ID, mediaID, publishedAt); err != nil {
		log.Errorf("Post is live as %s but its state was not saved: %v", mediaID, err)
		publishTotal.WithLabelValues("unsaved").Inc()
		return result, err
	}
	post.Status = models.PostStatusPublished
	post.InstagramPostID = mediaID
	post.PublishedAt = &publishedAt

	s.appendLog(ctx, log, post.ID, models.PublishActionSuccess, "published", map[string]any{
		"instagram_post_id": mediaID,
		"container_id":      containerID,
		"media_count":       len(post.Media),
	})
	s.notifier.NotifyUser(post.UserID, bot.PostPublishedUser(post.Caption, mediaID))
	publishTotal.WithLabelValues("success").Inc()

	log.Infof("Post published as %s", mediaID)
	return result, nil
}

func (s *Service) pushToInstagram(ctx context.Context, post *models.Post) (string, string, error) {
	account, err := s.repo.GetActiveInstagramAccount(ctx, post.UserID)
	if err != nil {
		return "", "", failStep("load_account", "", err)
	}
	if account == nil {
		return "", "", failStep("load_account", "", ErrAccountNotConnected)
	}

	token, err := s.EnsureFreshToken(ctx, account)
	if err != nil {
		return "", "", failStep("token", "", err)
	}

	urls := post.MediaURLs()
	var containerID string
	switch {
	case len(urls) == 0:
		return "", "", failStep("validate", "", ErrNoMedia)
	case len(urls) > MaxCarouselItems:
		return "", "", failStep("validate", "", fmt.Errorf("%w: got %d", ErrTooManyMedia, len(urls)))
	case len(urls) == 1:
		containerID, err = s.createSingle(ctx, account.InstagramUserID, token, urls[0], post.Caption)
	default:
		containerID, err = s.createCarousel(ctx, account.InstagramUserID, token, urls, post.Caption)
	}
	if err != nil {
		return "", "", err
	}

	mediaID, err := s.instagram.Publish(ctx, account.InstagramUserID, token, containerID)
	if err != nil {
		return containerID, "", failStep("publish", containerID, err)
	}
	return containerID, mediaID, nil
}

func (s *Service) createSingle(ctx context.Context, igUserID, token, imageURL, caption string) (string, error) {
	containerID, err := s.instagram.CreateImageContainer(ctx, igUserID, token, imageURL, caption)
	if err != nil {
		return "", failStep("create_container", "", err)
	}
	if err := s.poller.WaitReady(ctx, containerID, token); err != nil {
		return "", failStep("wait_container", containerID, err)
	}
	return containerID, nil
}

// createCarousel creates every child, waits for all of them and only then
// creates the parent container.
func (s *Service) createCarousel(ctx context.Context, igUserID, token string, urls []string, caption string) (string, error) {
	children := make([]string, 0, len(urls))
	for i, u := range urls {
		childID, err := s.instagram.CreateCarouselItem(ctx, igUserID, token, u)
		if err != nil {
			return "", failStep("create_carousel_item", "", fmt.Errorf("item %d: %w", i, err))
		}
		children = append(children, childID)
	}

	for _, childID := range children {
		if err := s.poller.WaitReady(ctx, childID, token); err != nil {
			return "", failStep("wait_carousel_item", childID, err)
		}
	}

	parentID, err := s.instagram.CreateCarouselContainer(ctx, igUserID, token, children, caption)
	if err != nil {
		return "", failStep("create_carousel", "", err)
	}
	if err := s.poller.WaitReady(ctx, parentID, token); err != nil {
		return "", failStep("wait_carousel", parentID, err)
	}
	return parentID, nil
}

func (s *Service) recordFailure(ctx context.Context, log *logrus.Entry, post *models.Post, cause error) {
	log.Errorf("Failed to publish post: %v", cause)
	publishTotal.WithLabelValues(failureKind(cause)).Inc()

	message := cause.Error()
	if err := s.repo.MarkPostFailed(ctx, post.ID, message); err != nil {
		log.Errorf("Failed to mark post failed: %v", err)
	}
	post.Status = models.PostStatusFailed
	post.ErrorMessage = message

	details := map[string]any{
		"error_type":  failureKind(cause),
		"media_count": len(post.Media),
	}
	var se *stepError
	if errors.As(cause, &se) {
		details["step"] = se.step
		if se.containerID != "" {
			details["container_id"] = se.containerID
		}
	}
	var apiErr *instagram.APIError
	if errors.As(cause, &apiErr) {
		details["api_code"] = apiErr.Code
		details["api_status"] = apiErr.StatusCode
	}
	s.appendLog(ctx, log, post.ID, models.PublishActionError, message, details)

	s.notifier.NotifyUser(post.UserID, bot.PostFailedUser(userFacingReason(cause)))
}

func (s *Service) appendLog(ctx context.Context, log *logrus.Entry, postID uuid.UUID, action models.PublishAction, message string, details map[string]any) {
	raw, err := json.Marshal(details)
	if err != nil {
		log.Warnf("Failed to marshal publish log details: %v", err)
		raw = []byte("{}")
	}
	entry := &models.PublishLog{
		PostID:  postID,
		Action:  action,
		Message: message,
		Details: datatypes.JSON(raw),
	}
	if err := s.repo.AppendPublishLog(ctx, entry); err != nil {
		log.Errorf("Failed to append publish log: %v", err)
	}
}

func failureKind(err error) string {
	var containerErr *instagram.ContainerError
	var apiErr *instagram.APIError
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrAccountNotConnected):
		return "not_connected"
	case errors.Is(err, ErrNoMedia), errors.Is(err, ErrTooManyMedia):
		return "invalid_media"
	case errors.Is(err, instagram.ErrProcessingTimeout):
		return "timeout"
	case errors.As(err, &containerErr):
		return "container_error"
	case errors.As(err, &apiErr):
		return "api_error"
	default:
		return "error"
	}
}

func userFacingReason(err error) string {
	var containerErr *instagram.ContainerError
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "срок действия доступа к Instagram истёк, переподключите аккаунт"
	case errors.Is(err, ErrAccountNotConnected):
		return "Instagram аккаунт не подключён"
	case errors.Is(err, ErrNoMedia):
		return "в посте нет изображений"
	case errors.Is(err, ErrTooManyMedia):
		return fmt.Sprintf("в карусели может быть не больше %d изображений", MaxCarouselItems)
	case errors.Is(err, instagram.ErrProcessingTimeout):
		return "Instagram не успел обработать изображения, попробуйте позже"
	case errors.As(err, &containerErr):
		return "Instagram отклонил изображение: " + containerErr.Message
	default:
		return err.Error()
	}
}

// PublishDuePosts publishes scheduled posts whose time has come, oldest first.
func (s *Service) PublishDuePosts(ctx context.Context) (published, failed int, err error) {
	posts, err := s.repo.GetDuePosts(ctx, s.now(), duePostsBatch)
	if err != nil {
		return 0, 0, err
	}

	for _, due := range posts {
		if ctx.Err() != nil {
			return published, failed, ctx.Err()
		}
		if _, err := s.PublishPost(ctx, due.ID); err != nil {
			failed++
			continue
		}
		published++
	}

	if len(posts) > 0 {
		s.logger.Infof("Scheduled publishing: %d published, %d failed", published, failed)
	}
	return published, failed, nil
}
