// Package facebook publishes to Facebook Pages through the Graph API.
package facebook

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/switchboardhq/switchboard/internal/platform"
	"github.com/switchboardhq/switchboard/internal/platform/graph"
)

// Config configures the adapter. AppID and AppSecret enable long-lived
// token exchange; without them RefreshToken reports no refresh.
type Config struct {
	BaseURL    string
	HTTPClient platform.HTTPClient
	AppID      string
	AppSecret  string
}

// Adapter implements platform.Adapter for Facebook Pages. The account's
// PlatformAccountID is the page ID and AccessToken a page access token.
type Adapter struct {
	graph     *graph.Client
	appID     string
	appSecret string
}

// New returns a Facebook adapter.
func New(cfg Config) *Adapter {
	return &Adapter{
		graph:     graph.New(cfg.BaseURL, cfg.HTTPClient),
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
	}
}

var limits = platform.Limits{
	MaxTextLength:      63206,
	MaxHashtags:        30,
	MaxImages:          10,
	MaxVideos:          1,
	MaxImageSizeBytes:  10 << 20,
	MaxVideoSizeBytes:  10 << 30,
	MaxVideoDuration:   240 * time.Minute,
	SupportedMIMETypes: []string{"image/jpeg", "image/png", "image/gif", "video/mp4", "video/quicktime"},
	MaxPostsPerDay:     50,
}

// ID returns platform.Facebook.
func (a *Adapter) ID() platform.ID { return platform.Facebook }

// DisplayName returns the human readable platform name.
func (a *Adapter) DisplayName() string { return "Facebook" }

// Limits returns the static Facebook limits.
func (a *Adapter) Limits() platform.Limits { return limits }

// ValidatePayload checks the payload against Facebook's limits.
func (a *Adapter) ValidatePayload(p platform.Payload) platform.Validation {
	return platform.ValidateAgainst(platform.Facebook, limits, p.For(platform.Facebook))
}

// Publish posts text, a photo, a photo album or a video to the page.
func (a *Adapter) Publish(ctx context.Context, account platform.Account, p platform.Payload) platform.Result {
	p = p.For(platform.Facebook)
	page, token := account.PlatformAccountID, account.AccessToken
	caption := p.Caption()

	var out graph.IDResponse
	var perr *platform.PublishError

	switch images, videos := p.Images(), p.Videos(); {
	case len(videos) > 0:
		perr = a.graph.Post(ctx, page+"/videos", token, url.Values{
			"file_url":    {videos[0].URL},
			"description": {caption},
		}, &out)

	case len(images) == 1:
		perr = a.graph.Post(ctx, page+"/photos", token, url.Values{
			"url":     {images[0].URL},
			"caption": {caption},
		}, &out)

	case len(images) > 1:
		form := url.Values{"message": {caption}}
		for i, img := range images {
			var photo graph.IDResponse
			if perr = a.graph.Post(ctx, page+"/photos", token, url.Values{
				"url":       {img.URL},
				"published": {"false"},
			}, &photo); perr != nil {
				return platform.Failed(perr)
			}
			ref, _ := json.Marshal(map[string]string{"media_fbid": photo.ID})
			form.Set("attached_media["+strconv.Itoa(i)+"]", string(ref))
		}
		perr = a.graph.Post(ctx, page+"/feed", token, form, &out)

	default:
		form := url.Values{"message": {caption}}
		if link := p.Option(platform.Facebook, "link"); link != "" {
			form.Set("link", link)
		}
		perr = a.graph.Post(ctx, page+"/feed", token, form, &out)
	}

	if perr != nil {
		return platform.Failed(perr)
	}

	postID := out.PostID
	if postID == "" {
		postID = out.ID
	}
	return platform.Succeeded(postID, "https://www.facebook.com/"+postID)
}

// ValidateToken probes /me with the page token.
func (a *Adapter) ValidateToken(ctx context.Context, account platform.Account) (bool, error) {
	return platform.TokenStatus(a.graph.Get(ctx, "me", account.AccessToken, url.Values{"fields": {"id"}}, nil))
}

// RefreshToken exchanges the current token for a long-lived one.
func (a *Adapter) RefreshToken(ctx context.Context, account platform.Account) (*platform.TokenRefresh, error) {
	if a.appID == "" || a.appSecret == "" || account.AccessToken == "" {
		return nil, nil
	}

	var out graph.TokenResponse
	if perr := a.graph.Get(ctx, "oauth/access_token", "", url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {a.appID},
		"client_secret":     {a.appSecret},
		"fb_exchange_token": {account.AccessToken},
	}, &out); perr != nil {
		return nil, platform.RefreshFailure(platform.Facebook, perr)
	}

	refresh := &platform.TokenRefresh{AccessToken: out.AccessToken}
	if out.ExpiresIn > 0 {
		refresh.ExpiresAt = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	}
	return refresh, nil
}
