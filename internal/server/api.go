// Package server implements the HTTP API and the delivery status webhook.
package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/switchboardhq/switchboard/internal/accounts"
	"github.com/switchboardhq/switchboard/internal/api"
	"github.com/switchboardhq/switchboard/internal/auth"
	"github.com/switchboardhq/switchboard/internal/db"
	"github.com/switchboardhq/switchboard/internal/delivery"
	"github.com/switchboardhq/switchboard/internal/errs"
	"github.com/switchboardhq/switchboard/internal/logging"
	"github.com/switchboardhq/switchboard/internal/metrics"
	"github.com/switchboardhq/switchboard/internal/models"
	"github.com/switchboardhq/switchboard/internal/platform"
	"github.com/switchboardhq/switchboard/internal/platform/whatsapp"
	"github.com/switchboardhq/switchboard/internal/ratelimit"
	"github.com/switchboardhq/switchboard/internal/vault"
)

type contextKey string

const apiKeyIDContextKey contextKey = "apiKeyID"

const maxBodyBytes = 1 << 20

func getAPIKeyID(r *http.Request) int64 {
	if id, ok := r.Context().Value(apiKeyIDContextKey).(int64); ok {
		return id
	}
	return 0
}

// APIServer serves the REST API, health and metrics endpoints and the
// WhatsApp status webhook.
type APIServer struct {
	DB         *sql.DB
	Accounts   *accounts.Service
	Registry   *platform.Registry
	Limiter    *ratelimit.Limiter
	Reconciler *delivery.Reconciler
	Messages   *delivery.SQLiteStore
	// WebhookURL is the public URL Twilio signs. When empty it is rebuilt
	// from the request and X-Forwarded-* headers.
	WebhookURL string
	Logger     *zap.Logger
}

func (s *APIServer) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// AuthMiddleware validates API key authentication for protected routes.
func (s *APIServer) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
			return
		}

		prefix, _, err := auth.ParseAPIKey(apiKey)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
			return
		}

		storedKey, err := db.GetAPIKeyByPrefix(s.DB, prefix)
		if err != nil || storedKey == nil {
			writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
			return
		}

		if storedKey.RevokedAt != nil {
			writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
			return
		}

		if !auth.VerifyAPIKey(apiKey, storedKey.KeyHash) {
			writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
			return
		}

		ctx := context.WithValue(r.Context(), apiKeyIDContextKey, storedKey.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Handler returns the HTTP handler for the API server. /v1 routes are rate
// limited before authentication; the webhook, health and metrics endpoints
// are not.
func (s *APIServer) Handler() http.Handler {
	v1 := http.NewServeMux()
	v1.HandleFunc("GET /v1/platforms", s.handleListPlatforms)
	v1.HandleFunc("POST /v1/platforms/{platform}/validate", s.handleValidate)
	v1.HandleFunc("POST /v1/accounts", s.handleConnectAccount)
	v1.HandleFunc("GET /v1/accounts", s.handleListAccounts)
	v1.HandleFunc("GET /v1/accounts/{id}", s.handleGetAccount)
	v1.HandleFunc("DELETE /v1/accounts/{id}", s.handleDeleteAccount)
	v1.HandleFunc("POST /v1/accounts/{id}/publish", s.handlePublish)
	v1.HandleFunc("POST /v1/accounts/{id}/refresh", s.handleRefresh)
	v1.HandleFunc("GET /v1/accounts/{id}/token", s.handleValidateToken)
	v1.HandleFunc("GET /v1/conversations/{phone}/messages", s.handleListMessages)

	var protected http.Handler = s.AuthMiddleware(v1)
	if s.Limiter != nil {
		protected = ratelimit.Middleware(s.Limiter, s.logger().Named("ratelimit"))(protected)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("POST /webhooks/whatsapp/status", s.handleStatusCallback)
	mux.Handle("/v1/", protected)
	return mux
}

func (s *APIServer) handleListPlatforms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.ListPlatformsResponse{Platforms: s.Registry.List()})
}

func (s *APIServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	adapter, err := s.Registry.Lookup(r.PathValue("platform"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var p platform.Payload
	if !decodeJSON(w, r, &p) {
		return
	}
	writeJSON(w, http.StatusOK, adapter.ValidatePayload(p.For(adapter.ID())))
}

func (s *APIServer) handleConnectAccount(w http.ResponseWriter, r *http.Request) {
	var req api.ConnectAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	acct, err := s.Accounts.Connect(r.Context(), getAPIKeyID(r), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (s *APIServer) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := s.Accounts.List(r.Context(), getAPIKeyID(r), r.URL.Query().Get("user_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ListAccountsResponse{Accounts: list})
}

func (s *APIServer) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.Accounts.Get(r.Context(), getAPIKeyID(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *APIServer) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.Accounts.Delete(r.Context(), getAPIKeyID(r), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.DeleteAccountResponse{Deleted: true})
}

func (s *APIServer) handlePublish(w http.ResponseWriter, r *http.Request) {
	var p platform.Payload
	if !decodeJSON(w, r, &p) {
		return
	}
	res, v, err := s.Accounts.Publish(r.Context(), getAPIKeyID(r), r.PathValue("id"), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	switch {
	case !v.Valid:
		status = http.StatusUnprocessableEntity
	case !res.Success:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, api.PublishResponse{Validation: v, Result: res})
}

func (s *APIServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ok, err := s.Accounts.Refresh(r.Context(), getAPIKeyID(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.RefreshResponse{Refreshed: ok})
}

func (s *APIServer) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	ok, err := s.Accounts.ValidateToken(r.Context(), getAPIKeyID(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.TokenStatusResponse{Valid: ok})
}

func (s *APIServer) handleListMessages(w http.ResponseWriter, r *http.Request) {
	phone := whatsapp.Normalize(r.PathValue("phone"))
	convs, err := s.Messages.Conversations(r.Context(), getAPIKeyID(r), phone)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// Conversations are visible only through an account of the caller.
	if len(convs) == 0 {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "conversation not found"})
		return
	}

	msgs, err := s.Messages.Messages(r.Context(), getAPIKeyID(r), phone)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := api.ListMessagesResponse{Phone: phone, Messages: make([]api.Message, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, messageResponse(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

func messageResponse(m models.Message) api.Message {
	out := api.Message{
		ID:                m.ID,
		Direction:         m.Direction,
		Body:              m.Body,
		ProviderMessageID: deref(m.ProviderMessageID),
		Status:            m.Status,
		ProviderStatus:    deref(m.ProviderStatus),
		ErrorCode:         deref(m.ErrorCode),
		ErrorMessage:      deref(m.ErrorMessage),
		CreatedAt:         time.Unix(m.CreatedAt, 0).UTC().Format(time.RFC3339),
	}
	if m.StatusUpdatedAt != nil {
		out.StatusUpdatedAt = time.Unix(*m.StatusUpdatedAt, 0).UTC().Format(time.RFC3339)
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// writeError maps err onto a status code. Internal failures, including stored
// tokens that no longer decrypt, are logged and reported without detail.
func (s *APIServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, platform.ErrUnknownPlatform), errors.Is(err, errs.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrValidation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, errs.ErrAuthentication) && !errors.Is(err, vault.ErrDecrypt):
		status = http.StatusForbidden
	case errors.Is(err, errs.ErrTransport):
		status = http.StatusBadGateway
	default:
		s.logger().Error("request failed", logging.Method(r.Method), logging.Path(r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, api.ErrorResponse{Error: err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "request body required"})
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			writeJSON(w, http.StatusRequestEntityTooLarge, api.ErrorResponse{Error: "request body too large"})
		case errors.Is(err, io.EOF):
			writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "request body required"})
		default:
			writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid JSON"})
		}
		return false
	}
	if dec.Decode(&struct{}{}) != io.EOF {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "unexpected trailing data"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
