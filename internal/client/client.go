// Package client is a Go client for the switchboard HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/switchboardhq/switchboard/internal/api"
	"github.com/switchboardhq/switchboard/internal/platform"
)

type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: http.DefaultClient,
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

func (c *Client) ListPlatforms(ctx context.Context) (*api.ListPlatformsResponse, error) {
	var out api.ListPlatformsResponse
	return &out, c.do(ctx, http.MethodGet, "/v1/platforms", nil, &out)
}

func (c *Client) Validate(ctx context.Context, id string, p platform.Payload) (*platform.Validation, error) {
	var out platform.Validation
	return &out, c.do(ctx, http.MethodPost, "/v1/platforms/"+url.PathEscape(id)+"/validate", p, &out)
}

func (c *Client) ConnectAccount(ctx context.Context, req api.ConnectAccountRequest) (*api.Account, error) {
	var out api.Account
	return &out, c.do(ctx, http.MethodPost, "/v1/accounts", req, &out)
}

func (c *Client) ListAccounts(ctx context.Context, userID string) (*api.ListAccountsResponse, error) {
	path := "/v1/accounts"
	if userID != "" {
		path += "?user_id=" + url.QueryEscape(userID)
	}
	var out api.ListAccountsResponse
	return &out, c.do(ctx, http.MethodGet, path, nil, &out)
}

func (c *Client) DeleteAccount(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/accounts/"+url.PathEscape(id), nil, nil)
}

// Publish posts p through the account. A rejected payload (422) or a failed
// publish (502) still returns the decoded response so callers can show the
// validation errors or platform failure.
func (c *Client) Publish(ctx context.Context, id string, p platform.Payload) (*api.PublishResponse, error) {
	var out api.PublishResponse
	err := c.do(ctx, http.MethodPost, "/v1/accounts/"+url.PathEscape(id)+"/publish", p, &out)
	var se *StatusError
	if errors.As(err, &se) && se.Message == "" {
		return &out, nil
	}
	return &out, err
}

func (c *Client) RefreshAccount(ctx context.Context, id string) (*api.RefreshResponse, error) {
	var out api.RefreshResponse
	return &out, c.do(ctx, http.MethodPost, "/v1/accounts/"+url.PathEscape(id)+"/refresh", nil, &out)
}

func (c *Client) ValidateToken(ctx context.Context, id string) (*api.TokenStatusResponse, error) {
	var out api.TokenStatusResponse
	return &out, c.do(ctx, http.MethodGet, "/v1/accounts/"+url.PathEscape(id)+"/token", nil, &out)
}

func (c *Client) ListMessages(ctx context.Context, phone string) (*api.ListMessagesResponse, error) {
	var out api.ListMessagesResponse
	return &out, c.do(ctx, http.MethodGet, "/v1/conversations/"+url.PathEscape(phone)+"/messages", nil, &out)
}

// do sends the request and decodes the body into out. Error responses that
// carry a JSON body other than {"error": ...} are decoded into out as well and
// reported as a StatusError with an empty message.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp, out)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func parseError(resp *http.Response, out any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &StatusError{StatusCode: resp.StatusCode, Message: err.Error()}
	}

	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &StatusError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}
	if out != nil && json.Unmarshal(body, out) == nil {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: string(body)}
}
