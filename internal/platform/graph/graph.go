// Package graph is a minimal Meta Graph API client shared by the Facebook and
// Instagram adapters.
package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/switchboardhq/switchboard/internal/platform"
)

// DefaultBaseURL is the versioned Graph API root.
const DefaultBaseURL = "https://graph.facebook.com/v21.0"

// Graph error codes that need a classification other than the HTTP status.
const (
	codeAPIUnknown      = 1
	codeAPIService      = 2
	codeTooManyCalls    = 4
	codeUserRequestRate = 17
	codeAppRequestRate  = 32
	codePermission      = 10
	codeAccessToken     = 190
	codeSessionKey      = 102
	codeCallsPerAction  = 613
)

// Client issues form-encoded Graph API calls.
type Client struct {
	BaseURL string
	HTTP    platform.HTTPClient
}

// New returns a Client. Empty arguments select defaults.
func New(baseURL string, client platform.HTTPClient) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: client}
}

// Get calls GET {BaseURL}/{path}?params&access_token=token.
func (c *Client) Get(ctx context.Context, path, token string, params url.Values, out any) *platform.PublishError {
	q := cloneWithToken(params, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/"+strings.TrimLeft(path, "/")+"?"+q.Encode(), nil)
	if err != nil {
		return platform.TransportFailure(err)
	}
	return c.do(req, out)
}

// Post calls POST {BaseURL}/{path} with a form body including access_token.
func (c *Client) Post(ctx context.Context, path, token string, params url.Values, out any) *platform.PublishError {
	form := cloneWithToken(params, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/"+strings.TrimLeft(path, "/"), strings.NewReader(form.Encode()))
	if err != nil {
		return platform.TransportFailure(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) *platform.PublishError {
	resp, perr := platform.Do(c.HTTP, req)
	if perr != nil {
		return perr
	}
	if !resp.OK() {
		return Classify(resp.StatusCode, resp.Body)
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// Classify maps a Graph error response onto a PublishError. Graph reports
// throttling and expired tokens with 400/403 plus an error code, so the code
// takes precedence over the HTTP status.
func Classify(status int, body []byte) *platform.PublishError {
	pe := platform.StatusFailure(status, body)

	var env struct {
		Error struct {
			Message     string `json:"message"`
			Code        int    `json:"code"`
			IsTransient bool   `json:"is_transient"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) != nil || env.Error.Code == 0 {
		return pe
	}

	switch env.Error.Code {
	case codeTooManyCalls, codeUserRequestRate, codeAppRequestRate, codeCallsPerAction:
		pe.Code, pe.Retryable = platform.CodeRateLimited, true
	case codeAccessToken, codeSessionKey:
		pe.Code, pe.Retryable = platform.CodeUnauthorized, false
	case codePermission:
		pe.Code, pe.Retryable = platform.CodeForbidden, false
	case codeAPIUnknown, codeAPIService:
		pe.Code, pe.Retryable = platform.CodeUpstream, true
	default:
		if env.Error.Code >= 200 && env.Error.Code < 300 {
			pe.Code, pe.Retryable = platform.CodeForbidden, false
		}
	}
	if env.Error.IsTransient {
		pe.Retryable = true
	}
	return pe
}

func cloneWithToken(params url.Values, token string) url.Values {
	q := url.Values{}
	for k, v := range params {
		q[k] = append([]string(nil), v...)
	}
	if token != "" {
		q.Set("access_token", token)
	}
	return q
}

// IDResponse is the common {"id": ...} reply.
type IDResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id,omitempty"`
}

// TokenResponse is the reply of the token exchange endpoints.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}
