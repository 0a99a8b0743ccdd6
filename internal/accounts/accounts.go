// Package accounts manages connected platform accounts. Tokens are encrypted
// by the vault before they reach the database and decrypted only for the
// duration of one adapter call.
package accounts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/switchboardhq/switchboard/internal/api"
	"github.com/switchboardhq/switchboard/internal/db"
	"github.com/switchboardhq/switchboard/internal/errs"
	"github.com/switchboardhq/switchboard/internal/events"
	"github.com/switchboardhq/switchboard/internal/logging"
	"github.com/switchboardhq/switchboard/internal/metrics"
	"github.com/switchboardhq/switchboard/internal/models"
	"github.com/switchboardhq/switchboard/internal/platform"
	"github.com/switchboardhq/switchboard/internal/platform/whatsapp"
	"github.com/switchboardhq/switchboard/internal/vault"
)

// ErrNotFound is returned for accounts that do not exist or belong to
// another API key.
var ErrNotFound = fmt.Errorf("%w: account not found", errs.ErrNotFound)

// OutboundRecorder stores sent WhatsApp messages for later status updates.
type OutboundRecorder interface {
	RecordOutbound(ctx context.Context, recipient, accountID, body, messageID string) error
}

// PublishNotifier is told about every publish attempt.
type PublishNotifier interface {
	Published(ctx context.Context, e events.PublishEvent) error
}

// Service connects, loads and uses accounts.
type Service struct {
	DB       *sql.DB
	Vault    *vault.Vault
	Registry *platform.Registry
	Outbound OutboundRecorder
	Notifier PublishNotifier
	Logger   *zap.Logger
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Connect validates req, encrypts its tokens and stores the account.
func (s *Service) Connect(ctx context.Context, apiKeyID int64, req api.ConnectAccountRequest) (*api.Account, error) {
	id, err := platform.ParseID(req.Platform)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown platform %q", errs.ErrValidation, req.Platform)
	}
	var missing []string
	if strings.TrimSpace(req.UserID) == "" {
		missing = append(missing, "user_id")
	}
	if strings.TrimSpace(req.PlatformAccountID) == "" {
		missing = append(missing, "platform_account_id")
	}
	if req.AccessToken == "" {
		missing = append(missing, "access_token")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", errs.ErrValidation, strings.Join(missing, ", "))
	}

	access, err := s.Vault.Encrypt(req.AccessToken)
	if err != nil {
		return nil, err
	}
	row := &models.SocialAccount{
		ID:                  uuid.NewString(),
		APIKeyID:            &apiKeyID,
		UserID:              req.UserID,
		Platform:            string(id),
		PlatformAccountID:   req.PlatformAccountID,
		PlatformAccountName: req.PlatformAccountName,
		AccessToken:         columns(access),
	}
	if req.RefreshToken != "" {
		refresh, err := s.Vault.Encrypt(req.RefreshToken)
		if err != nil {
			return nil, err
		}
		c := columns(refresh)
		row.RefreshToken = &c
	}
	if req.TokenExpiresAt != nil {
		exp := req.TokenExpiresAt.Unix()
		row.TokenExpiresAt = &exp
	}
	if len(req.Metadata) > 0 {
		meta, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: metadata: %v", errs.ErrValidation, err)
		}
		row.Metadata = string(meta)
	}

	if err := db.CreateSocialAccount(s.DB, row); err != nil {
		if errors.Is(err, db.ErrAccountExists) {
			return nil, err
		}
		return nil, fmt.Errorf("store account: %w", err)
	}
	s.logger().Info("account connected", logging.AccountID(row.ID), logging.Platform(row.Platform))
	return summarize(row), nil
}

// List returns the accounts of apiKeyID, optionally for one user.
func (s *Service) List(ctx context.Context, apiKeyID int64, userID string) ([]api.Account, error) {
	rows, err := db.ListSocialAccounts(s.DB, apiKeyID, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := make([]api.Account, 0, len(rows))
	for i := range rows {
		out = append(out, *summarize(&rows[i]))
	}
	return out, nil
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, apiKeyID int64, id string) (*api.Account, error) {
	row, err := s.row(apiKeyID, id)
	if err != nil {
		return nil, err
	}
	return summarize(row), nil
}

// Delete removes an account.
func (s *Service) Delete(ctx context.Context, apiKeyID int64, id string) error {
	if _, err := s.row(apiKeyID, id); err != nil {
		return err
	}
	if _, err := db.DeleteSocialAccount(s.DB, id); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

// Load returns the account with its tokens decrypted.
func (s *Service) Load(ctx context.Context, apiKeyID int64, id string) (platform.Account, error) {
	row, err := s.row(apiKeyID, id)
	if err != nil {
		return platform.Account{}, err
	}

	acct := platform.Account{
		ID:                  row.ID,
		UserID:              row.UserID,
		Platform:            platform.ID(row.Platform),
		PlatformAccountID:   row.PlatformAccountID,
		PlatformAccountName: row.PlatformAccountName,
		Metadata:            decodeMetadata(row.Metadata),
	}
	if acct.AccessToken, err = s.Vault.Decrypt(token(row.AccessToken)); err != nil {
		return platform.Account{}, fmt.Errorf("decrypt access token: %w", err)
	}
	if row.RefreshToken != nil {
		if acct.RefreshToken, err = s.Vault.Decrypt(token(*row.RefreshToken)); err != nil {
			return platform.Account{}, fmt.Errorf("decrypt refresh token: %w", err)
		}
	}
	return acct, nil
}

// Publish validates p and publishes it with the account. Successful WhatsApp
// sends are recorded so delivery callbacks can be reconciled.
func (s *Service) Publish(ctx context.Context, apiKeyID int64, id string, p platform.Payload) (platform.Result, platform.Validation, error) {
	acct, err := s.Load(ctx, apiKeyID, id)
	if err != nil {
		return platform.Result{}, platform.Validation{}, err
	}

	res, v, err := s.Registry.Publish(ctx, acct, p)
	if err != nil {
		return res, v, err
	}

	outcome := "success"
	switch {
	case !v.Valid:
		outcome = "invalid"
	case !res.Success && res.Error != nil:
		outcome = res.Error.Code
	}
	metrics.PublishResults.WithLabelValues(string(acct.Platform), outcome).Inc()

	if res.Success && acct.Platform == platform.WhatsApp && s.Outbound != nil {
		wp := p.For(platform.WhatsApp)
		if err := s.Outbound.RecordOutbound(ctx, whatsapp.Recipient(p), acct.ID, wp.Caption(), res.PlatformPostID); err != nil {
			s.logger().Error("record outbound message", logging.AccountID(acct.ID), logging.MessageSID(res.PlatformPostID), zap.Error(err))
		}
	}
	if v.Valid && s.Notifier != nil {
		if err := s.Notifier.Published(ctx, events.PublishEvent{AccountID: acct.ID, Platform: acct.Platform, Result: res, At: time.Now().UTC()}); err != nil {
			s.logger().Warn("publish notification failed", logging.AccountID(acct.ID), zap.Error(err))
		}
	}
	return res, v, nil
}

// ValidateToken asks the platform whether the access token still works.
func (s *Service) ValidateToken(ctx context.Context, apiKeyID int64, id string) (bool, error) {
	acct, err := s.Load(ctx, apiKeyID, id)
	if err != nil {
		return false, err
	}
	adapter, err := s.Registry.Lookup(string(acct.Platform))
	if err != nil {
		return false, err
	}
	ok, err := adapter.ValidateToken(ctx, acct)
	if err != nil {
		return false, err
	}
	if !ok {
		if err := db.SetSocialAccountStatus(s.DB, acct.ID, models.AccountExpired); err != nil {
			s.logger().Error("mark account expired", logging.AccountID(acct.ID), zap.Error(err))
		}
	}
	return ok, nil
}

// Refresh obtains new tokens from the platform and stores them. It reports
// false when the platform or account cannot be refreshed.
func (s *Service) Refresh(ctx context.Context, apiKeyID int64, id string) (bool, error) {
	acct, err := s.Load(ctx, apiKeyID, id)
	if err != nil {
		return false, err
	}
	adapter, err := s.Registry.Lookup(string(acct.Platform))
	if err != nil {
		return false, err
	}

	label := string(acct.Platform)
	tr, err := adapter.RefreshToken(ctx, acct)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues(label, "error").Inc()
		if errors.Is(err, errs.ErrAuthentication) {
			if serr := db.SetSocialAccountStatus(s.DB, acct.ID, models.AccountExpired); serr != nil {
				s.logger().Error("mark account expired", logging.AccountID(acct.ID), zap.Error(serr))
			}
		}
		return false, err
	}
	if tr == nil {
		metrics.TokenRefreshes.WithLabelValues(label, "unsupported").Inc()
		return false, nil
	}

	access, err := s.Vault.Encrypt(tr.AccessToken)
	if err != nil {
		return false, err
	}
	var refresh *models.EncryptedColumns
	if tr.RefreshToken != "" {
		enc, err := s.Vault.Encrypt(tr.RefreshToken)
		if err != nil {
			return false, err
		}
		c := columns(enc)
		refresh = &c
	}
	var expiresAt *int64
	if !tr.ExpiresAt.IsZero() {
		exp := tr.ExpiresAt.Unix()
		expiresAt = &exp
	}
	if err := db.UpdateSocialAccountTokens(s.DB, acct.ID, columns(access), refresh, expiresAt); err != nil {
		return false, fmt.Errorf("store refreshed tokens: %w", err)
	}

	metrics.TokenRefreshes.WithLabelValues(label, "refreshed").Inc()
	s.logger().Info("token refreshed", logging.AccountID(acct.ID), logging.Platform(label))
	return true, nil
}

func (s *Service) row(apiKeyID int64, id string) (*models.SocialAccount, error) {
	row, err := db.GetSocialAccount(s.DB, id)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if row == nil || row.APIKeyID == nil || *row.APIKeyID != apiKeyID {
		return nil, ErrNotFound
	}
	return row, nil
}

func columns(t vault.EncryptedToken) models.EncryptedColumns {
	return models.EncryptedColumns{Ciphertext: t.Ciphertext, IV: t.IV, Tag: t.AuthTag}
}

func token(c models.EncryptedColumns) vault.EncryptedToken {
	return vault.EncryptedToken{Ciphertext: c.Ciphertext, IV: c.IV, AuthTag: c.Tag}
}

func decodeMetadata(raw string) map[string]string {
	meta := map[string]string{}
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &meta)
	}
	return meta
}

func summarize(row *models.SocialAccount) *api.Account {
	s := &api.Account{
		ID:                  row.ID,
		UserID:              row.UserID,
		Platform:            platform.ID(row.Platform),
		PlatformAccountID:   row.PlatformAccountID,
		PlatformAccountName: row.PlatformAccountName,
		Status:              row.Status,
		HasRefreshToken:     row.RefreshToken != nil,
		Metadata:            decodeMetadata(row.Metadata),
		CreatedAt:           time.Unix(row.CreatedAt, 0).UTC(),
	}
	if row.TokenExpiresAt != nil {
		t := time.Unix(*row.TokenExpiresAt, 0).UTC()
		s.TokenExpiresAt = &t
	}
	return s
}
