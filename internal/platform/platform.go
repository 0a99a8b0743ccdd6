// Package platform defines the capability set every social or messaging
// platform adapter implements, the payload and result types they share, and
// the registry that resolves an adapter from its platform identifier.
package platform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/switchboardhq/switchboard/internal/errs"
)

// ID identifies a platform. The set is closed.
type ID string

// Supported platforms.
const (
	Facebook  ID = "facebook"
	Instagram ID = "instagram"
	TikTok    ID = "tiktok"
	YouTube   ID = "youtube"
	WhatsApp  ID = "whatsapp"
)

// All lists every supported platform in display order.
var All = []ID{Facebook, Instagram, TikTok, YouTube, WhatsApp}

// ErrUnknownPlatform is returned for identifiers outside the supported set.
var ErrUnknownPlatform = fmt.Errorf("%w: unknown platform", errs.ErrConfiguration)

// Valid reports whether id is one of the supported platforms.
func (id ID) Valid() bool {
	for _, known := range All {
		if id == known {
			return true
		}
	}
	return false
}

// ParseID converts s to an ID, rejecting unknown identifiers.
func ParseID(s string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(s)))
	if !id.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
	}
	return id, nil
}

// Account is a connected platform account with its credentials already
// decrypted. It lives for a single adapter call and is never persisted in
// this form.
type Account struct {
	ID                  string
	UserID              string
	Platform            ID
	PlatformAccountID   string
	PlatformAccountName string
	AccessToken         string
	RefreshToken        string
	Metadata            map[string]string
}

// Meta returns a metadata value or "".
func (a Account) Meta(key string) string {
	if a.Metadata == nil {
		return ""
	}
	return a.Metadata[key]
}

// MediaType classifies an attachment.
type MediaType string

// Media types.
const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// Media is one attachment, referenced by a publicly reachable URL.
type Media struct {
	URL       string    `json:"url"`
	Type      MediaType `json:"type"`
	MIMEType  string    `json:"mime_type"`
	SizeBytes int64     `json:"size_bytes"`
	Duration  float64   `json:"duration,omitempty"` // seconds
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
}

// Override replaces parts of a payload for one platform.
type Override struct {
	Text     *string           `json:"text,omitempty"`
	Hashtags []string          `json:"hashtags,omitempty"`
	Options  map[string]string `json:"options,omitempty"`
}

// Payload is a post composed once and published to one or more platforms.
type Payload struct {
	Text      string          `json:"text"`
	Hashtags  []string        `json:"hashtags,omitempty"`
	Media     []Media         `json:"media,omitempty"`
	Overrides map[ID]Override `json:"overrides,omitempty"`
}

// For returns the payload as seen by platform id, with its override applied.
func (p Payload) For(id ID) Payload {
	out := p
	o, ok := p.Overrides[id]
	if !ok {
		return out
	}
	if o.Text != nil {
		out.Text = *o.Text
	}
	if o.Hashtags != nil {
		out.Hashtags = o.Hashtags
	}
	return out
}

// Option returns a platform-specific option from the override for id.
func (p Payload) Option(id ID, key string) string {
	return p.Overrides[id].Options[key]
}

// Tags returns the hashtags without leading '#', dropping empty entries.
func (p Payload) Tags() []string {
	tags := make([]string, 0, len(p.Hashtags))
	for _, h := range p.Hashtags {
		h = strings.TrimLeft(strings.TrimSpace(h), "#")
		if h != "" {
			tags = append(tags, h)
		}
	}
	return tags
}

// Caption joins the text and hashtags the way they are posted.
func (p Payload) Caption() string {
	tags := p.Tags()
	if len(tags) == 0 {
		return p.Text
	}
	var b strings.Builder
	b.WriteString(p.Text)
	if p.Text != "" {
		b.WriteString("\n\n")
	}
	for i, t := range tags {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte('#')
		b.WriteString(t)
	}
	return b.String()
}

// Images returns the image attachments in order.
func (p Payload) Images() []Media { return p.mediaOf(MediaImage) }

// Videos returns the video attachments in order.
func (p Payload) Videos() []Media { return p.mediaOf(MediaVideo) }

func (p Payload) mediaOf(t MediaType) []Media {
	var out []Media
	for _, m := range p.Media {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

// PublishError describes a failed publish. Retryable failures may be
// requeued by the caller; the rest must be surfaced to the user.
type PublishError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Retryable   bool   `json:"retryable"`
	StatusCode  int    `json:"status_code,omitempty"`
	RawResponse string `json:"raw_response,omitempty"`
}

func (e *PublishError) Error() string {
	return e.Code + ": " + e.Message
}

// Result is the outcome of Publish. Failures are data, not errors.
type Result struct {
	Success         bool          `json:"success"`
	PlatformPostID  string        `json:"platform_post_id,omitempty"`
	PlatformPostURL string        `json:"platform_post_url,omitempty"`
	Error           *PublishError `json:"error,omitempty"`
}

// Succeeded builds a successful Result.
func Succeeded(postID, postURL string) Result {
	return Result{Success: true, PlatformPostID: postID, PlatformPostURL: postURL}
}

// Failed builds a failed Result.
func Failed(err *PublishError) Result {
	return Result{Success: false, Error: err}
}

// Limits are the static ceilings a platform imposes on a post. A zero
// MaxImages or MaxVideos means the platform does not accept that media type;
// a zero size, duration or per-day value means no limit is enforced.
type Limits struct {
	MaxTextLength      int           `json:"max_text_length"`
	MaxHashtags        int           `json:"max_hashtags"`
	MaxImages          int           `json:"max_images"`
	MaxVideos          int           `json:"max_videos"`
	MaxImageSizeBytes  int64         `json:"max_image_size_bytes,omitempty"`
	MaxVideoSizeBytes  int64         `json:"max_video_size_bytes,omitempty"`
	MaxVideoDuration   time.Duration `json:"max_video_duration,omitempty"`
	SupportedMIMETypes []string      `json:"supported_mime_types"`
	MaxPostsPerDay     int           `json:"max_posts_per_day,omitempty"`
	RequiresMedia      bool          `json:"requires_media,omitempty"`
	AllowMixedMedia    bool          `json:"allow_mixed_media,omitempty"`
}

// Supports reports whether mime is in SupportedMIMETypes.
func (l Limits) Supports(mime string) bool {
	mime = strings.ToLower(strings.TrimSpace(mime))
	for _, m := range l.SupportedMIMETypes {
		if m == mime {
			return true
		}
	}
	return false
}

// Validation is the outcome of ValidatePayload.
type Validation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// TokenRefresh is new credential material returned by RefreshToken.
type TokenRefresh struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Adapter is the capability set implemented once per platform.
type Adapter interface {
	ID() ID
	DisplayName() string
	Limits() Limits

	// ValidatePayload checks p against Limits without any I/O.
	ValidatePayload(p Payload) Validation

	// Publish posts p using account. It never mutates account and reports
	// every failure through Result.Error.
	Publish(ctx context.Context, account Account, p Payload) Result

	// ValidateToken reports whether the access token is still accepted.
	// A rejected token is (false, nil); errors are reserved for transport failures.
	ValidateToken(ctx context.Context, account Account) (bool, error)

	// RefreshToken returns new credentials, or (nil, nil) when the platform
	// or account cannot be refreshed.
	RefreshToken(ctx context.Context, account Account) (*TokenRefresh, error)
}
