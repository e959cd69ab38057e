package api

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/Fi44er/miniapp_gateway/internal/bot"
	"github.com/Fi44er/miniapp_gateway/internal/service"
	"github.com/Fi44er/miniapp_gateway/utils"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	webhookEndpoint = "/webhooks/payment"
	maxWebhookBody  = 1 << 20
)

// AbsorbAndNotify turns fn into a handler that always answers 200 OK. A
// returned error or a panic is logged and reported to the admins instead of
// reaching the caller, so the payment gateway never retries.
func AbsorbAndNotify(notifier AdminNotifier, logger *utils.Logger, fn func(r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Errorf("Panic while handling %s: %v\n%s", r.URL.Path, rec, debug.Stack())
				notifier.NotifyAdmins(bot.WebhookFailedAdmin(fmt.Errorf("panic: %v", rec)))
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		}()

		if err := fn(r); err != nil {
			logger.Errorf("Failed to handle %s: %v", r.URL.Path, err)
			notifier.NotifyAdmins(bot.WebhookFailedAdmin(err))
		}
	}
}

func (h *Handler) PaymentWebhookHandler() http.HandlerFunc {
	absorbed := AbsorbAndNotify(h.notifier, h.logger, h.handlePaymentWebhook)
	return func(w http.ResponseWriter, r *http.Request) {
		timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(http.MethodPost, webhookEndpoint))
		defer timer.ObserveDuration()
		defer httpRequestsTotal.WithLabelValues(http.MethodPost, webhookEndpoint, "200").Inc()

		absorbed(w, r)
	}
}

func (h *Handler) handlePaymentWebhook(r *http.Request) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		paymentWebhooksTotal.WithLabelValues(string(service.OutcomeFailed)).Inc()
		return fmt.Errorf("read webhook body: %w", err)
	}

	outcome, err := h.payments.HandlePaymentWebhook(r.Context(), service.WebhookRequest{
		Body:        body,
		ContentType: r.Header.Get("Content-Type"),
		Signature:   r.Header.Get("Sign"),
		RemoteAddr:  clientIP(r),
	})
	paymentWebhooksTotal.WithLabelValues(string(outcome)).Inc()
	return err
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
