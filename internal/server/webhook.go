package server

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/switchboardhq/switchboard/internal/api"
	"github.com/switchboardhq/switchboard/internal/delivery"
	"github.com/switchboardhq/switchboard/internal/errs"
	"github.com/switchboardhq/switchboard/internal/logging"
	"github.com/switchboardhq/switchboard/internal/metrics"
)

const maxWebhookBytes = 64 << 10

func (s *APIServer) handleStatusCallback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBytes)
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid form body"})
		return
	}

	status := "unknown"
	if ps := r.PostForm.Get("MessageStatus"); ps != "" {
		status = string(delivery.MapStatus(ps))
	}

	outcome, err := s.Reconciler.Reconcile(r.Context(), delivery.Callback{
		URL:       s.callbackURL(r),
		Params:    r.PostForm,
		Signature: r.Header.Get(delivery.SignatureHeader),
	})
	switch {
	case errors.Is(err, errs.ErrAuthentication):
		metrics.StatusCallbacks.WithLabelValues(status, "rejected").Inc()
		s.logger().Warn("status callback rejected", logging.Status(status), logging.RemoteIP(r.RemoteAddr), zap.Error(err))
		writeJSON(w, http.StatusForbidden, api.ErrorResponse{Error: "forbidden"})
		return
	case err != nil:
		metrics.StatusCallbacks.WithLabelValues(status, "error").Inc()
		s.logger().Error("status callback failed", logging.Status(status), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
		return
	}

	metrics.StatusCallbacks.WithLabelValues(status, string(outcome)).Inc()
	s.logger().Debug("status callback handled", logging.Status(status), zap.String("outcome", string(outcome)))
	w.WriteHeader(http.StatusOK)
}

// callbackURL returns the URL Twilio computed its signature over.
func (s *APIServer) callbackURL(r *http.Request) string {
	if s.WebhookURL != "" {
		return s.WebhookURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme, _, _ = strings.Cut(p, ",")
		scheme = strings.TrimSpace(scheme)
	}
	host := r.Host
	if h := r.Header.Get("X-Forwarded-Host"); h != "" {
		host, _, _ = strings.Cut(h, ",")
		host = strings.TrimSpace(host)
	}
	return scheme + "://" + host + r.URL.RequestURI()
}
