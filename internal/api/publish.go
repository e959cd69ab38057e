package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/Fi44er/miniapp_gateway/internal/instagram"
	"github.com/Fi44er/miniapp_gateway/internal/service"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const publishEndpoint = "/api/v1/posts/{id}/publish"

func (h *Handler) PublishPostHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(http.MethodPost, publishEndpoint))
	defer timer.ObserveDuration()

	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized", http.MethodPost, publishEndpoint)
		return
	}

	postID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid post id", http.MethodPost, publishEndpoint)
		return
	}

	log := h.logger.WithFields(logrus.Fields{
		"post_id":    postID,
		"user_id":    userID,
		"session_id": SessionIDFromContext(r.Context()),
	})

	result, err := h.posts.PublishPostForUser(r.Context(), postID, userID)
	if err != nil {
		code, msg := publishErrorStatus(err)
		if code >= http.StatusInternalServerError {
			log.Errorf("Publish failed: %v", err)
		} else {
			log.Infof("Publish rejected: %v", err)
		}
		h.respondError(w, code, msg, http.MethodPost, publishEndpoint)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"status":            "published",
		"post_id":           result.PostID.String(),
		"instagram_post_id": result.InstagramPostID,
	}, http.MethodPost, publishEndpoint)
}

func publishErrorStatus(err error) (int, string) {
	var containerErr *instagram.ContainerError
	var apiErr *instagram.APIError
	switch {
	case errors.Is(err, service.ErrPostNotFound):
		return http.StatusNotFound, "Post not found"
	case errors.Is(err, service.ErrNotPostOwner):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, service.ErrAlreadyPublished):
		return http.StatusConflict, "Post is already published"
	case errors.Is(err, service.ErrTokenExpired):
		return http.StatusUnprocessableEntity, "Instagram token expired, reconnect the account"
	case errors.Is(err, service.ErrAccountNotConnected):
		return http.StatusUnprocessableEntity, "Instagram account is not connected"
	case errors.Is(err, service.ErrNoMedia):
		return http.StatusUnprocessableEntity, "Post has no media"
	case errors.Is(err, service.ErrTooManyMedia):
		return http.StatusUnprocessableEntity, "Too many media for a carousel"
	case errors.Is(err, instagram.ErrProcessingTimeout):
		return http.StatusBadGateway, "Instagram did not finish processing the media"
	case errors.As(err, &containerErr):
		return http.StatusBadGateway, "Instagram rejected the media: " + containerErr.Message
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, "Instagram API error: " + apiErr.Message
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "Publishing timed out"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}
