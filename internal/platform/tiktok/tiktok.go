// Package tiktok publishes through the TikTok Content Posting API. Media is
// pulled by TikTok from its public URL; the adapter only initialises the post.
package tiktok

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/switchboardhq/switchboard/internal/platform"
)

// DefaultBaseURL is the Content Posting API root.
const DefaultBaseURL = "https://open.tiktokapis.com"

const defaultPrivacy = "SELF_ONLY"

// Privacy levels accepted by post/publish.
var privacyLevels = map[string]bool{
	"PUBLIC_TO_EVERYONE":    true,
	"MUTUAL_FOLLOW_FRIENDS": true,
	"FOLLOWER_OF_CREATOR":   true,
	"SELF_ONLY":             true,
}

// Config configures the adapter. ClientKey and ClientSecret enable refresh.
type Config struct {
	BaseURL      string
	HTTPClient   platform.HTTPClient
	ClientKey    string
	ClientSecret string
}

// Adapter implements platform.Adapter for TikTok.
type Adapter struct {
	baseURL      string
	http         platform.HTTPClient
	clientKey    string
	clientSecret string
}

// New returns a TikTok adapter.
func New(cfg Config) *Adapter {
	a := &Adapter{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		http:         cfg.HTTPClient,
		clientKey:    cfg.ClientKey,
		clientSecret: cfg.ClientSecret,
	}
	if a.baseURL == "" {
		a.baseURL = DefaultBaseURL
	}
	if a.http == nil {
		a.http = http.DefaultClient
	}
	return a
}

var limits = platform.Limits{
	MaxTextLength:      2200,
	MaxHashtags:        100,
	MaxImages:          35,
	MaxVideos:          1,
	MaxImageSizeBytes:  20 << 20,
	MaxVideoSizeBytes:  4 << 30,
	MaxVideoDuration:   10 * time.Minute,
	SupportedMIMETypes: []string{"image/jpeg", "image/webp", "video/mp4", "video/webm", "video/quicktime"},
	MaxPostsPerDay:     15,
	RequiresMedia:      true,
}

func (a *Adapter) ID() platform.ID { return platform.TikTok }

func (a *Adapter) DisplayName() string { return "TikTok" }

func (a *Adapter) Limits() platform.Limits { return limits }

// ValidatePayload checks limits plus the optional privacy_level option.
func (a *Adapter) ValidatePayload(p platform.Payload) platform.Validation {
	v := platform.ValidateAgainst(platform.TikTok, limits, p.For(platform.TikTok))
	if lvl := p.Option(platform.TikTok, "privacy_level"); lvl != "" && !privacyLevels[lvl] {
		v = v.Merge("tiktok privacy_level " + lvl + " is not supported")
	}
	return v
}

type envelope struct {
	Data struct {
		PublishID string `json:"publish_id"`
		OpenID    string `json:"open_id"`
	} `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		LogID   string `json:"log_id"`
	} `json:"error"`
}

// Publish initialises a video or photo post.
func (a *Adapter) Publish(ctx context.Context, account platform.Account, p platform.Payload) platform.Result {
	p = p.For(platform.TikTok)
	privacy := p.Option(platform.TikTok, "privacy_level")
	if privacy == "" {
		privacy = defaultPrivacy
	}

	var path string
	var body map[string]any
	if videos := p.Videos(); len(videos) > 0 {
		path = "/v2/post/publish/video/init/"
		body = map[string]any{
			"post_info": map[string]any{
				"title":         p.Caption(),
				"privacy_level": privacy,
			},
			"source_info": map[string]any{
				"source":    "PULL_FROM_URL",
				"video_url": videos[0].URL,
			},
		}
	} else {
		urls := make([]string, 0, len(p.Media))
		for _, m := range p.Images() {
			urls = append(urls, m.URL)
		}
		path = "/v2/post/publish/content/init/"
		body = map[string]any{
			"media_type": "PHOTO",
			"post_mode":  "DIRECT_POST",
			"post_info": map[string]any{
				"description":   p.Caption(),
				"privacy_level": privacy,
			},
			"source_info": map[string]any{
				"source":            "PULL_FROM_URL",
				"photo_images":      urls,
				"photo_cover_index": 0,
			},
		}
	}

	var env envelope
	if perr := a.callJSON(ctx, http.MethodPost, path, account.AccessToken, body, &env); perr != nil {
		return platform.Failed(perr)
	}
	return platform.Succeeded(env.Data.PublishID, "")
}

// ValidateToken asks for the caller's open_id.
func (a *Adapter) ValidateToken(ctx context.Context, account platform.Account) (bool, error) {
	var env envelope
	return platform.TokenStatus(a.callJSON(ctx, http.MethodGet, "/v2/user/info/?fields=open_id", account.AccessToken, nil, &env))
}

// RefreshToken runs the refresh_token grant. Accounts without a refresh
// token and adapters without client credentials cannot refresh.
func (a *Adapter) RefreshToken(ctx context.Context, account platform.Account) (*platform.TokenRefresh, error) {
	if account.RefreshToken == "" || a.clientKey == "" || a.clientSecret == "" {
		return nil, nil
	}

	form := url.Values{
		"client_key":    {a.clientKey},
		"client_secret": {a.clientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {account.RefreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v2/oauth/token/", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, platform.RefreshFailure(platform.TikTok, platform.TransportFailure(err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out struct {
		AccessToken      string `json:"access_token"`
		RefreshToken     string `json:"refresh_token"`
		ExpiresIn        int64  `json:"expires_in"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if perr := platform.DoJSON(a.http, req, &out); perr != nil {
		return nil, platform.RefreshFailure(platform.TikTok, perr)
	}
	if out.Error != "" || out.AccessToken == "" {
		return nil, platform.RefreshFailure(platform.TikTok, &platform.PublishError{
			Code:    platform.CodeUnauthorized,
			Message: strings.TrimSpace(out.Error + " " + out.ErrorDescription),
		})
	}

	refresh := &platform.TokenRefresh{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}
	if refresh.RefreshToken == "" {
		refresh.RefreshToken = account.RefreshToken
	}
	if out.ExpiresIn > 0 {
		refresh.ExpiresAt = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	}
	return refresh, nil
}

func (a *Adapter) callJSON(ctx context.Context, method, path, token string, body any, env *envelope) *platform.PublishError {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &platform.PublishError{Code: platform.CodeRejected, Message: err.Error()}
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, rdr)
	if err != nil {
		return platform.TransportFailure(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	}

	resp, perr := platform.Do(a.http, req)
	if perr != nil {
		return perr
	}
	// TikTok returns the envelope on errors too; prefer its code.
	if err := json.Unmarshal(resp.Body, env); err != nil {
		if !resp.OK() {
			return platform.StatusFailure(resp.StatusCode, resp.Body)
		}
		return resp.Decode(env)
	}
	if env.Error.Code != "" && env.Error.Code != "ok" {
		return classify(resp, env)
	}
	if !resp.OK() {
		return platform.StatusFailure(resp.StatusCode, resp.Body)
	}
	return nil
}

// classify maps TikTok envelope error codes. Unknown codes fall back to the
// HTTP status.
func classify(resp *platform.Response, env *envelope) *platform.PublishError {
	pe := platform.StatusFailure(resp.StatusCode, resp.Body)
	pe.Message = env.Error.Message
	if pe.Message == "" {
		pe.Message = env.Error.Code
	}
	switch env.Error.Code {
	case "rate_limit_exceeded", "spam_risk_too_many_posts":
		pe.Code, pe.Retryable = platform.CodeRateLimited, true
	case "access_token_invalid", "token_not_authorized_for_specified_endpoint":
		pe.Code, pe.Retryable = platform.CodeUnauthorized, false
	case "scope_not_authorized", "unaudited_client_can_only_post_to_private_accounts", "privacy_level_option_mismatch":
		pe.Code, pe.Retryable = platform.CodeForbidden, false
	case "internal_error":
		pe.Code, pe.Retryable = platform.CodeUpstream, true
	default:
		if resp.OK() {
			pe.Code, pe.Retryable = platform.CodeRejected, false
		}
	}
	return pe
}
