// Package api defines the request and response bodies of the HTTP API.
package api

import (
	"time"

	"github.com/switchboardhq/switchboard/internal/platform"
)

type ListPlatformsResponse struct {
	Platforms []platform.Info `json:"platforms"`
}

type ConnectAccountRequest struct {
	UserID              string            `json:"user_id"`
	Platform            string            `json:"platform"`
	PlatformAccountID   string            `json:"platform_account_id"`
	PlatformAccountName string            `json:"platform_account_name,omitempty"`
	AccessToken         string            `json:"access_token"`
	RefreshToken        string            `json:"refresh_token,omitempty"`
	TokenExpiresAt      *time.Time        `json:"token_expires_at,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// Account is a connected account as returned by the API. Tokens are never
// included.
type Account struct {
	ID                  string            `json:"id"`
	UserID              string            `json:"user_id"`
	Platform            platform.ID       `json:"platform"`
	PlatformAccountID   string            `json:"platform_account_id"`
	PlatformAccountName string            `json:"platform_account_name,omitempty"`
	Status              string            `json:"status"`
	HasRefreshToken     bool              `json:"has_refresh_token"`
	TokenExpiresAt      *time.Time        `json:"token_expires_at,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
}

type ListAccountsResponse struct {
	Accounts []Account `json:"accounts"`
}

type DeleteAccountResponse struct {
	Deleted bool `json:"deleted"`
}

type PublishResponse struct {
	Validation platform.Validation `json:"validation"`
	Result     platform.Result     `json:"result"`
}

type RefreshResponse struct {
	Refreshed bool `json:"refreshed"`
}

type TokenStatusResponse struct {
	Valid bool `json:"valid"`
}

type Message struct {
	ID                int64  `json:"id"`
	Direction         string `json:"direction"`
	Body              string `json:"body"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Status            string `json:"status"`
	ProviderStatus    string `json:"provider_status,omitempty"`
	ErrorCode         string `json:"error_code,omitempty"`
	ErrorMessage      string `json:"error_message,omitempty"`
	CreatedAt         string `json:"created_at"`
	StatusUpdatedAt   string `json:"status_updated_at,omitempty"`
}

type ListMessagesResponse struct {
	Phone    string    `json:"phone"`
	Messages []Message `json:"messages"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
