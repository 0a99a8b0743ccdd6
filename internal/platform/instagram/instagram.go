// Package instagram publishes to Instagram professional accounts through the
// Graph API content publishing flow: create a media container, wait for it to
// finish processing, then publish it.
package instagram

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/switchboardhq/switchboard/internal/platform"
	"github.com/switchboardhq/switchboard/internal/platform/graph"
)

// DefaultRefreshBaseURL hosts the long-lived token refresh endpoint.
const DefaultRefreshBaseURL = "https://graph.instagram.com"

const (
	defaultPollInterval = 3 * time.Second
	defaultMaxPolls     = 20
)

// Container status codes.
const (
	statusFinished   = "FINISHED"
	statusInProgress = "IN_PROGRESS"
	statusError      = "ERROR"
	statusExpired    = "EXPIRED"
)

// Config configures the adapter.
type Config struct {
	BaseURL        string
	RefreshBaseURL string
	HTTPClient     platform.HTTPClient
	PollInterval   time.Duration
	MaxPolls       int
}

// Adapter implements platform.Adapter for Instagram. The account's
// PlatformAccountID is the Instagram user ID.
type Adapter struct {
	graph        *graph.Client
	refresh      *graph.Client
	pollInterval time.Duration
	maxPolls     int
}

// New returns an Instagram adapter.
func New(cfg Config) *Adapter {
	a := &Adapter{
		graph:        graph.New(cfg.BaseURL, cfg.HTTPClient),
		pollInterval: cfg.PollInterval,
		maxPolls:     cfg.MaxPolls,
	}
	refreshBase := cfg.RefreshBaseURL
	if refreshBase == "" {
		refreshBase = DefaultRefreshBaseURL
	}
	a.refresh = graph.New(refreshBase, cfg.HTTPClient)
	if a.pollInterval <= 0 {
		a.pollInterval = defaultPollInterval
	}
	if a.maxPolls <= 0 {
		a.maxPolls = defaultMaxPolls
	}
	return a
}

var limits = platform.Limits{
	MaxTextLength:      2200,
	MaxHashtags:        30,
	MaxImages:          10,
	MaxVideos:          10,
	MaxImageSizeBytes:  8 << 20,
	MaxVideoSizeBytes:  1 << 30,
	MaxVideoDuration:   15 * time.Minute,
	SupportedMIMETypes: []string{"image/jpeg", "video/mp4", "video/quicktime"},
	MaxPostsPerDay:     50,
	RequiresMedia:      true,
	AllowMixedMedia:    true,
}

// ID returns platform.Instagram.
func (a *Adapter) ID() platform.ID { return platform.Instagram }

// DisplayName returns the human readable platform name.
func (a *Adapter) DisplayName() string { return "Instagram" }

// Limits returns the static Instagram limits.
func (a *Adapter) Limits() platform.Limits { return limits }

// ValidatePayload checks the payload against Instagram's limits. A carousel
// holds at most ten items of any type.
func (a *Adapter) ValidatePayload(p platform.Payload) platform.Validation {
	p = p.For(platform.Instagram)
	v := platform.ValidateAgainst(platform.Instagram, limits, p)
	if len(p.Media) > limits.MaxImages {
		v = v.Merge("instagram carousels hold at most 10 items")
	}
	return v
}

// Publish creates the container (single image, reel or carousel), waits for
// processing and publishes it.
func (a *Adapter) Publish(ctx context.Context, account platform.Account, p platform.Payload) platform.Result {
	p = p.For(platform.Instagram)
	user, token := account.PlatformAccountID, account.AccessToken

	var containerID string
	var perr *platform.PublishError
	if len(p.Media) == 1 {
		containerID, perr = a.createContainer(ctx, user, token, p.Media[0], p.Caption(), false)
	} else {
		containerID, perr = a.createCarousel(ctx, user, token, p)
	}
	if perr != nil {
		return platform.Failed(perr)
	}

	if perr := a.waitFinished(ctx, containerID, token); perr != nil {
		return platform.Failed(perr)
	}

	var published graph.IDResponse
	if perr := a.graph.Post(ctx, user+"/media_publish", token, url.Values{"creation_id": {containerID}}, &published); perr != nil {
		return platform.Failed(perr)
	}

	var media struct {
		Permalink string `json:"permalink"`
	}
	_ = a.graph.Get(ctx, published.ID, token, url.Values{"fields": {"permalink"}}, &media)

	return platform.Succeeded(published.ID, media.Permalink)
}

func (a *Adapter) createContainer(ctx context.Context, user, token string, m platform.Media, caption string, carouselItem bool) (string, *platform.PublishError) {
	form := url.Values{}
	switch {
	case m.Type == platform.MediaVideo && carouselItem:
		form.Set("media_type", "VIDEO")
		form.Set("video_url", m.URL)
	case m.Type == platform.MediaVideo:
		form.Set("media_type", "REELS")
		form.Set("video_url", m.URL)
	default:
		form.Set("image_url", m.URL)
	}
	if carouselItem {
		form.Set("is_carousel_item", "true")
	} else if caption != "" {
		form.Set("caption", caption)
	}

	var out graph.IDResponse
	if perr := a.graph.Post(ctx, user+"/media", token, form, &out); perr != nil {
		return "", perr
	}
	return out.ID, nil
}

func (a *Adapter) createCarousel(ctx context.Context, user, token string, p platform.Payload) (string, *platform.PublishError) {
	children := make([]string, 0, len(p.Media))
	for _, m := range p.Media {
		id, perr := a.createContainer(ctx, user, token, m, "", true)
		if perr != nil {
			return "", perr
		}
		if m.Type == platform.MediaVideo {
			if perr := a.waitFinished(ctx, id, token); perr != nil {
				return "", perr
			}
		}
		children = append(children, id)
	}

	form := url.Values{
		"media_type": {"CAROUSEL"},
		"children":   {strings.Join(children, ",")},
	}
	if caption := p.Caption(); caption != "" {
		form.Set("caption", caption)
	}

	var out graph.IDResponse
	if perr := a.graph.Post(ctx, user+"/media", token, form, &out); perr != nil {
		return "", perr
	}
	return out.ID, nil
}

// waitFinished polls the container until Instagram reports FINISHED. This is
// part of the publishing protocol, not a retry: a container in ERROR fails
// immediately.
func (a *Adapter) waitFinished(ctx context.Context, containerID, token string) *platform.PublishError {
	for attempt := 0; attempt < a.maxPolls; attempt++ {
		var status struct {
			StatusCode string `json:"status_code"`
		}
		if perr := a.graph.Get(ctx, containerID, token, url.Values{"fields": {"status_code"}}, &status); perr != nil {
			return perr
		}

		switch status.StatusCode {
		case statusFinished, "":
			return nil
		case statusError, statusExpired:
			return &platform.PublishError{
				Code:    platform.CodeRejected,
				Message: "media container " + containerID + " " + strings.ToLower(status.StatusCode),
			}
		}

		select {
		case <-ctx.Done():
			return platform.TransportFailure(ctx.Err())
		case <-time.After(a.pollInterval):
		}
	}
	return &platform.PublishError{
		Code:      platform.CodeTimeout,
		Message:   "media container " + containerID + " still " + statusInProgress,
		Retryable: true,
	}
}

// ValidateToken probes /me with the user token.
func (a *Adapter) ValidateToken(ctx context.Context, account platform.Account) (bool, error) {
	return platform.TokenStatus(a.graph.Get(ctx, "me", account.AccessToken, url.Values{"fields": {"id"}}, nil))
}

// RefreshToken extends a long-lived Instagram token.
func (a *Adapter) RefreshToken(ctx context.Context, account platform.Account) (*platform.TokenRefresh, error) {
	if account.AccessToken == "" {
		return nil, nil
	}

	var out graph.TokenResponse
	if perr := a.refresh.Get(ctx, "refresh_access_token", account.AccessToken, url.Values{
		"grant_type": {"ig_refresh_token"},
	}, &out); perr != nil {
		return nil, platform.RefreshFailure(platform.Instagram, perr)
	}

	refresh := &platform.TokenRefresh{AccessToken: out.AccessToken}
	if out.ExpiresIn > 0 {
		refresh.ExpiresAt = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	}
	return refresh, nil
}
