package delivery

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/switchboardhq/switchboard/internal/errs"
	"github.com/switchboardhq/switchboard/internal/logging"
	"github.com/switchboardhq/switchboard/internal/platform/whatsapp"
)

var (
	// ErrInvalidSignature is returned when a signature is present but does
	// not verify.
	ErrInvalidSignature = fmt.Errorf("%w: invalid webhook signature", errs.ErrAuthentication)
	// ErrMissingSignature is returned when signatures are required and the
	// callback carries none.
	ErrMissingSignature = fmt.Errorf("%w: missing webhook signature", errs.ErrAuthentication)
	// ErrNoAuthToken means a signature cannot be checked because no auth token
	// is configured.
	ErrNoAuthToken = fmt.Errorf("%w: webhook auth token not configured", errs.ErrConfiguration)
)

// Callback is one inbound status webhook.
type Callback struct {
	URL       string
	Params    url.Values
	Signature string
}

// Update is a status change addressed to a stored message.
type Update struct {
	MessageID      string    `json:"message_id"`
	Recipient      string    `json:"recipient"`
	Status         Status    `json:"status"`
	ProviderStatus string    `json:"provider_status"`
	ErrorCode      string    `json:"error_code,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	At             time.Time `json:"at"`
}

// Outcome describes what Reconcile did with a valid callback.
type Outcome string

// Outcomes.
const (
	OutcomeApplied  Outcome = "applied"
	OutcomeIgnored  Outcome = "ignored"
	OutcomeNotFound Outcome = "not_found"
)

// MessageStore applies status updates to stored messages.
type MessageStore interface {
	// ApplyStatus reports false when no message matches the recipient and
	// message ID.
	ApplyStatus(ctx context.Context, u Update) (bool, error)
}

// Notifier is told about every applied update.
type Notifier interface {
	StatusChanged(ctx context.Context, u Update) error
}

// Config configures a Reconciler.
type Config struct {
	AuthToken        string
	RequireSignature bool
	Store            MessageStore
	Notifier         Notifier
	Logger           *zap.Logger
	Now              func() time.Time
}

// Reconciler verifies and applies status callbacks.
type Reconciler struct {
	authToken        string
	requireSignature bool
	store            MessageStore
	notifier         Notifier
	logger           *zap.Logger
	now              func() time.Time
}

// NewReconciler returns a Reconciler.
func NewReconciler(cfg Config) *Reconciler {
	r := &Reconciler{
		authToken:        cfg.AuthToken,
		requireSignature: cfg.RequireSignature,
		store:            cfg.Store,
		notifier:         cfg.Notifier,
		logger:           cfg.Logger,
		now:              cfg.Now,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Reconcile verifies cb and applies its status. Authentication failures
// leave state untouched. Callbacks missing the message ID, status or
// recipient are ignored, and callbacks for unknown messages report
// OutcomeNotFound; neither is an error.
func (r *Reconciler) Reconcile(ctx context.Context, cb Callback) (Outcome, error) {
	if err := r.verify(cb); err != nil {
		return "", err
	}

	u, ok := parseUpdate(cb.Params)
	if !ok {
		r.logger.Debug("status callback missing fields ignored")
		return OutcomeIgnored, nil
	}
	u.At = r.now()

	found, err := r.store.ApplyStatus(ctx, u)
	if err != nil {
		return "", fmt.Errorf("apply status: %w", err)
	}

	if u.Status == StatusFailed && u.ErrorCode != "" {
		r.logger.Warn("message delivery failed",
			logging.MessageSID(u.MessageID),
			zap.String("provider_status", u.ProviderStatus),
			zap.String("error_code", u.ErrorCode),
			zap.String("error_message", u.ErrorMessage))
	}

	if !found {
		r.logger.Debug("status callback for unknown message", logging.MessageSID(u.MessageID))
		return OutcomeNotFound, nil
	}

	if r.notifier != nil {
		if err := r.notifier.StatusChanged(ctx, u); err != nil {
			r.logger.Warn("status notification failed", logging.MessageSID(u.MessageID), zap.Error(err))
		}
	}
	return OutcomeApplied, nil
}

func (r *Reconciler) verify(cb Callback) error {
	if cb.Signature == "" {
		if r.requireSignature {
			return ErrMissingSignature
		}
		return nil
	}
	if r.authToken == "" {
		return ErrNoAuthToken
	}
	if !VerifySignature(r.authToken, cb.URL, cb.Params, cb.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

func parseUpdate(params url.Values) (Update, bool) {
	u := Update{
		MessageID:      first(params, "MessageSid", "SmsSid"),
		ProviderStatus: first(params, "MessageStatus", "SmsStatus"),
		Recipient:      whatsapp.Normalize(params.Get("To")),
		ErrorCode:      params.Get("ErrorCode"),
		ErrorMessage:   params.Get("ErrorMessage"),
	}
	if u.MessageID == "" || u.ProviderStatus == "" || u.Recipient == "" {
		return Update{}, false
	}
	u.Status = MapStatus(u.ProviderStatus)
	return u, true
}

func first(params url.Values, keys ...string) string {
	for _, k := range keys {
		if v := params.Get(k); v != "" {
			return v
		}
	}
	return ""
}
