// Package whatsapp sends WhatsApp messages through the Twilio Messages API.
//
// The connected account's PlatformAccountID is the Twilio account SID, its
// AccessToken the Twilio auth token and its "from" metadata the sending
// WhatsApp number. The recipient is taken from the "to" option of the
// WhatsApp override.
package whatsapp

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/switchboardhq/switchboard/internal/platform"
)

// DefaultBaseURL is the Twilio REST API root.
const DefaultBaseURL = "https://api.twilio.com"

const addressPrefix = "whatsapp:"

// Config configures the adapter. StatusCallbackURL, when set, is sent with
// every message so Twilio reports delivery updates to the webhook.
type Config struct {
	BaseURL           string
	HTTPClient        platform.HTTPClient
	StatusCallbackURL string
}

// Adapter implements platform.Adapter for WhatsApp.
type Adapter struct {
	baseURL  string
	http     platform.HTTPClient
	callback string
}

// New returns a WhatsApp adapter.
func New(cfg Config) *Adapter {
	a := &Adapter{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     cfg.HTTPClient,
		callback: cfg.StatusCallbackURL,
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
	MaxTextLength:      4096,
	MaxImages:          1,
	MaxVideos:          1,
	MaxImageSizeBytes:  5 << 20,
	MaxVideoSizeBytes:  16 << 20,
	SupportedMIMETypes: []string{"image/jpeg", "image/png", "video/mp4"},
}

// ID returns platform.WhatsApp.
func (a *Adapter) ID() platform.ID { return platform.WhatsApp }

// DisplayName returns the human readable platform name.
func (a *Adapter) DisplayName() string { return "WhatsApp" }

// Limits returns the static WhatsApp limits.
func (a *Adapter) Limits() platform.Limits { return limits }

// ValidatePayload checks limits and requires a recipient.
func (a *Adapter) ValidatePayload(p platform.Payload) platform.Validation {
	v := platform.ValidateAgainst(platform.WhatsApp, limits, p.For(platform.WhatsApp))
	if Recipient(p) == "" {
		v = v.Merge("whatsapp requires a recipient in the \"to\" option")
	}
	return v
}

// Recipient returns the normalised recipient of p, without the whatsapp:
// prefix.
func Recipient(p platform.Payload) string {
	return Normalize(p.Option(platform.WhatsApp, "to"))
}

// Normalize strips the whatsapp: channel prefix and surrounding space.
func Normalize(addr string) string {
	return strings.TrimPrefix(strings.TrimSpace(addr), addressPrefix)
}

func address(number string) string {
	return addressPrefix + Normalize(number)
}

// Publish sends the message.
func (a *Adapter) Publish(ctx context.Context, account platform.Account, p platform.Payload) platform.Result {
	p = p.For(platform.WhatsApp)
	from := account.Meta("from")
	if from == "" {
		return platform.Failed(&platform.PublishError{
			Code:    platform.CodeMissingConfig,
			Message: "whatsapp account has no sender number",
		})
	}
	to := Recipient(p)
	if to == "" {
		return platform.Failed(&platform.PublishError{
			Code:    platform.CodeValidationFailed,
			Message: "whatsapp requires a recipient",
		})
	}

	form := url.Values{
		"To":   {address(to)},
		"From": {address(from)},
	}
	if body := p.Caption(); body != "" {
		form.Set("Body", body)
	}
	for _, m := range p.Media {
		form.Add("MediaUrl", m.URL)
	}
	if a.callback != "" {
		form.Set("StatusCallback", a.callback)
	}

	req, err := a.request(ctx, http.MethodPost, "/2010-04-01/Accounts/"+url.PathEscape(account.PlatformAccountID)+"/Messages.json", account, strings.NewReader(form.Encode()))
	if err != nil {
		return platform.Failed(platform.TransportFailure(err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if perr := platform.DoJSON(a.http, req, &out); perr != nil {
		return platform.Failed(perr)
	}
	return platform.Succeeded(out.SID, "")
}

// ValidateToken fetches the account resource with the credentials.
func (a *Adapter) ValidateToken(ctx context.Context, account platform.Account) (bool, error) {
	req, err := a.request(ctx, http.MethodGet, "/2010-04-01/Accounts/"+url.PathEscape(account.PlatformAccountID)+".json", account, nil)
	if err != nil {
		return platform.TokenStatus(platform.TransportFailure(err))
	}
	return platform.TokenStatus(platform.DoJSON(a.http, req, nil))
}

// RefreshToken always reports no refresh: Twilio auth tokens do not expire.
func (a *Adapter) RefreshToken(context.Context, platform.Account) (*platform.TokenRefresh, error) {
	return nil, nil
}

func (a *Adapter) request(ctx context.Context, method, path string, account platform.Account, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(account.PlatformAccountID, account.AccessToken)
	return req, nil
}
