package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/Fi44er/miniapp_gateway/internal/telegram"
	"github.com/gorilla/mux"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	sessionIDKey
)

const SessionHeader = "X-Session-Id"

// RequireInitData authenticates Mini App requests by their Telegram initData
// and attaches the user id and session id to the request context.
func (h *Handler) RequireInitData(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := telegram.ValidateInitData(initDataFromRequest(r), h.auth.BotToken, h.auth.InitDataMaxAge, h.now())
		if err != nil {
			h.logger.Debugf("Rejected init data for %s: %v", r.URL.Path, err)
			h.respondError(w, http.StatusUnauthorized, "Unauthorized", r.Method, routeTemplate(r))
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, data.User.ID)
		sessionID, err := h.sessions.Resolve(ctx, data.User.ID)
		if err != nil {
			h.logger.Warnf("Failed to resolve session for user %d: %v", data.User.ID, err)
		} else {
			ctx = context.WithValue(ctx, sessionIDKey, sessionID)
			w.Header().Set(SessionHeader, sessionID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func initDataFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, value, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "tma") {
			return strings.TrimSpace(value)
		}
	}
	return r.Header.Get("X-Telegram-Init-Data")
}

func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}
