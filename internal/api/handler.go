package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Fi44er/miniapp_gateway/internal/service"
	"github.com/Fi44er/miniapp_gateway/utils"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 30, 60},
	}, []string{"method", "endpoint"})

	paymentWebhooksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_payment_webhooks_total",
		Help: "Payment webhooks by processing outcome",
	}, []string{"outcome"})
)

type PaymentService interface {
	HandlePaymentWebhook(ctx context.Context, req service.WebhookRequest) (service.WebhookOutcome, error)
}

type PostPublisher interface {
	PublishPostForUser(ctx context.Context, postID uuid.UUID, userID int64) (*service.PublishResult, error)
}

type SessionResolver interface {
	Resolve(ctx context.Context, userID int64) (string, error)
}

type AdminNotifier interface {
	NotifyAdmins(text string)
}

type AuthConfig struct {
	BotToken       string
	InitDataMaxAge time.Duration
}

type Handler struct {
	payments PaymentService
	posts    PostPublisher
	sessions SessionResolver
	notifier AdminNotifier
	auth     AuthConfig
	now      func() time.Time
	logger   *utils.Logger
}

func NewHandler(payments PaymentService, posts PostPublisher, sessions SessionResolver, notifier AdminNotifier, auth AuthConfig, logger *utils.Logger) *Handler {
	return &Handler{
		payments: payments,
		posts:    posts,
		sessions: sessions,
		notifier: notifier,
		auth:     auth,
		now:      time.Now,
		logger:   logger,
	}
}

func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)
	r.Handle("/webhooks/payment", h.PaymentWebhookHandler()).Methods(http.MethodPost)

	if h.auth.BotToken == "" {
		h.logger.Warn("TELEGRAM_BOT_TOKEN is not set, every /api/v1 request will be rejected")
	}
	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(h.RequireInitData)
	apiV1.HandleFunc("/posts/{id}/publish", h.PublishPostHandler).Methods(http.MethodPost)
	return r
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	respondWithJSON(w, code, payload)
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
