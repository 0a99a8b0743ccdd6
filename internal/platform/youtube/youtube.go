// Package youtube uploads videos with the YouTube Data API v3 resumable
// upload protocol. The video is streamed from its public URL straight into
// the upload session without buffering it in memory.
package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/oauth2"

	"github.com/switchboardhq/switchboard/internal/platform"
)

// Default endpoints.
const (
	DefaultBaseURL      = "https://www.googleapis.com"
	DefaultTokenURL     = "https://oauth2.googleapis.com/token"
	DefaultTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"
)

const (
	maxTitleLength = 100
	defaultPrivacy = "private"
)

var privacyStatuses = map[string]bool{"public": true, "private": true, "unlisted": true}

// Config configures the adapter. ClientID and ClientSecret enable refresh.
type Config struct {
	BaseURL      string
	TokenURL     string
	TokenInfoURL string
	HTTPClient   *http.Client
	ClientID     string
	ClientSecret string
}

// Adapter implements platform.Adapter for YouTube.
type Adapter struct {
	baseURL      string
	tokenInfoURL string
	http         *http.Client
	oauth        *oauth2.Config
}

// New returns a YouTube adapter.
func New(cfg Config) *Adapter {
	a := &Adapter{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		tokenInfoURL: cfg.TokenInfoURL,
		http:         cfg.HTTPClient,
	}
	if a.baseURL == "" {
		a.baseURL = DefaultBaseURL
	}
	if a.tokenInfoURL == "" {
		a.tokenInfoURL = DefaultTokenInfoURL
	}
	if a.http == nil {
		a.http = http.DefaultClient
	}
	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		tokenURL := cfg.TokenURL
		if tokenURL == "" {
			tokenURL = DefaultTokenURL
		}
		a.oauth = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
		}
	}
	return a
}

var limits = platform.Limits{
	MaxTextLength:      5000,
	MaxHashtags:        15,
	MaxImages:          0,
	MaxVideos:          1,
	MaxVideoSizeBytes:  256 << 30,
	MaxVideoDuration:   12 * time.Hour,
	SupportedMIMETypes: []string{"video/mp4", "video/quicktime", "video/webm", "video/x-msvideo", "video/mpeg"},
	RequiresMedia:      true,
}

// ID returns platform.YouTube.
func (a *Adapter) ID() platform.ID { return platform.YouTube }

// DisplayName returns the human readable platform name.
func (a *Adapter) DisplayName() string { return "YouTube" }

// Limits returns the static YouTube limits.
func (a *Adapter) Limits() platform.Limits { return limits }

// ValidatePayload checks limits, the title length and the privacy option.
func (a *Adapter) ValidatePayload(p platform.Payload) platform.Validation {
	p = p.For(platform.YouTube)
	v := platform.ValidateAgainst(platform.YouTube, limits, p)
	if n := utf8.RuneCountInString(p.Option(platform.YouTube, "title")); n > maxTitleLength {
		v = v.Merge("youtube title is " + strconv.Itoa(n) + " characters, at most 100 allowed")
	}
	if ps := p.Option(platform.YouTube, "privacy"); ps != "" && !privacyStatuses[ps] {
		v = v.Merge("youtube privacy must be public, private or unlisted")
	}
	return v
}

type videoResource struct {
	Snippet struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Tags        []string `json:"tags,omitempty"`
		CategoryID  string   `json:"categoryId,omitempty"`
	} `json:"snippet"`
	Status struct {
		PrivacyStatus string `json:"privacyStatus"`
	} `json:"status"`
}

// Publish opens an upload session, then streams the video into it.
func (a *Adapter) Publish(ctx context.Context, account platform.Account, p platform.Payload) platform.Result {
	p = p.For(platform.YouTube)
	videos := p.Videos()
	if len(videos) == 0 {
		return platform.Failed(&platform.PublishError{Code: platform.CodeValidationFailed, Message: "youtube requires a video"})
	}
	video := videos[0]

	session, perr := a.openSession(ctx, account.AccessToken, p, video)
	if perr != nil {
		return platform.Failed(perr)
	}

	src, perr := a.fetch(ctx, video.URL)
	if perr != nil {
		return platform.Failed(perr)
	}
	defer src.Body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session, src.Body)
	if err != nil {
		return platform.Failed(platform.TransportFailure(err))
	}
	req.ContentLength = src.ContentLength
	req.Header.Set("Authorization", "Bearer "+account.AccessToken)
	req.Header.Set("Content-Type", video.MIMEType)

	resp, perr := platform.Do(a.http, req)
	if perr != nil {
		return platform.Failed(perr)
	}
	if !resp.OK() {
		return platform.Failed(classify(resp.StatusCode, resp.Body))
	}
	var out struct {
		ID string `json:"id"`
	}
	if perr := resp.Decode(&out); perr != nil {
		return platform.Failed(perr)
	}
	return platform.Succeeded(out.ID, "https://www.youtube.com/watch?v="+out.ID)
}

func (a *Adapter) openSession(ctx context.Context, token string, p platform.Payload, video platform.Media) (string, *platform.PublishError) {
	var meta videoResource
	meta.Snippet.Title = title(p)
	meta.Snippet.Description = p.Caption()
	meta.Snippet.Tags = p.Tags()
	meta.Snippet.CategoryID = p.Option(platform.YouTube, "category_id")
	meta.Status.PrivacyStatus = p.Option(platform.YouTube, "privacy")
	if meta.Status.PrivacyStatus == "" {
		meta.Status.PrivacyStatus = defaultPrivacy
	}
	body, err := json.Marshal(meta)
	if err != nil {
		return "", &platform.PublishError{Code: platform.CodeRejected, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/upload/youtube/v3/videos?uploadType=resumable&part=snippet,status", bytes.NewReader(body))
	if err != nil {
		return "", platform.TransportFailure(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Type", video.MIMEType)
	if video.SizeBytes > 0 {
		req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(video.SizeBytes, 10))
	}

	resp, perr := platform.Do(a.http, req)
	if perr != nil {
		return "", perr
	}
	if !resp.OK() {
		return "", classify(resp.StatusCode, resp.Body)
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", &platform.PublishError{
			Code:       platform.CodeInvalidResponse,
			Message:    "upload session response has no Location header",
			StatusCode: resp.StatusCode,
		}
	}
	return loc, nil
}

// fetch opens the media source. The caller closes the body.
func (a *Adapter) fetch(ctx context.Context, mediaURL string) (*http.Response, *platform.PublishError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, &platform.PublishError{Code: platform.CodeRejected, Message: "media url: " + err.Error()}
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, platform.TransportFailure(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		pe := platform.StatusFailure(resp.StatusCode, nil)
		pe.Message = "fetch media: " + pe.Message
		return nil, pe
	}
	return resp, nil
}

// title is the explicit title option, or the first line of the text cut to
// the title limit.
func title(p platform.Payload) string {
	if t := p.Option(platform.YouTube, "title"); t != "" {
		return t
	}
	t, _, _ := strings.Cut(strings.TrimSpace(p.Text), "\n")
	if utf8.RuneCountInString(t) > maxTitleLength {
		t = string([]rune(t)[:maxTitleLength])
	}
	if t == "" {
		t = "Untitled"
	}
	return t
}

// classify reads Google's error reasons; quota errors come back as 403.
func classify(status int, body []byte) *platform.PublishError {
	pe := platform.StatusFailure(status, body)
	var env struct {
		Error struct {
			Errors []struct {
				Reason string `json:"reason"`
			} `json:"errors"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) != nil {
		return pe
	}
	for _, e := range env.Error.Errors {
		switch e.Reason {
		case "quotaExceeded", "rateLimitExceeded", "userRateLimitExceeded", "uploadLimitExceeded":
			pe.Code, pe.Retryable = platform.CodeRateLimited, true
		case "authError":
			pe.Code, pe.Retryable = platform.CodeUnauthorized, false
		}
	}
	return pe
}

// ValidateToken checks the token with Google's tokeninfo endpoint.
func (a *Adapter) ValidateToken(ctx context.Context, account platform.Account) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.tokenInfoURL+"?access_token="+url.QueryEscape(account.AccessToken), nil)
	if err != nil {
		return platform.TokenStatus(platform.TransportFailure(err))
	}
	return platform.TokenStatus(platform.DoJSON(a.http, req, nil))
}

// RefreshToken runs the refresh_token grant through golang.org/x/oauth2.
// Google usually omits the refresh token in the reply; the old one is kept.
func (a *Adapter) RefreshToken(ctx context.Context, account platform.Account) (*platform.TokenRefresh, error) {
	if a.oauth == nil || account.RefreshToken == "" {
		return nil, nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.http)
	tok, err := a.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: account.RefreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return nil, platform.RefreshFailure(platform.YouTube, platform.StatusFailure(re.Response.StatusCode, re.Body))
		}
		return nil, platform.RefreshFailure(platform.YouTube, platform.TransportFailure(err))
	}

	refresh := &platform.TokenRefresh{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if refresh.RefreshToken == "" {
		refresh.RefreshToken = account.RefreshToken
	}
	return refresh, nil
}
