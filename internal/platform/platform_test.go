package platform

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/switchboardhq/switchboard/internal/errs"
)

type stubAdapter struct {
	id        ID
	limits    Limits
	published int
	result    Result
}

func (s *stubAdapter) ID() ID              { return s.id }
func (s *stubAdapter) DisplayName() string { return strings.ToUpper(string(s.id)) }
func (s *stubAdapter) Limits() Limits      { return s.limits }

func (s *stubAdapter) ValidatePayload(p Payload) Validation {
	return ValidateAgainst(s.id, s.limits, p.For(s.id))
}

func (s *stubAdapter) Publish(context.Context, Account, Payload) Result {
	s.published++
	return s.result
}

func (s *stubAdapter) ValidateToken(context.Context, Account) (bool, error) { return true, nil }

func (s *stubAdapter) RefreshToken(context.Context, Account) (*TokenRefresh, error) { return nil, nil }

func TestParseID(t *testing.T) {
	tests := []struct {
		in      string
		want    ID
		wantErr bool
	}{
		{"facebook", Facebook, false},
		{" Instagram ", Instagram, false},
		{"tiktok", TikTok, false},
		{"youtube", YouTube, false},
		{"whatsapp", WhatsApp, false},
		{"twitter", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseID(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownPlatform) {
					t.Fatalf("expected ErrUnknownPlatform, got %v", err)
				}
				if !errors.Is(err, errs.ErrConfiguration) {
					t.Errorf("expected configuration error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRegistry_LookupUnknown(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Register(&stubAdapter{id: Facebook}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := r.Lookup("myspace"); !errors.Is(err, ErrUnknownPlatform) {
		t.Errorf("expected ErrUnknownPlatform for unknown tag, got %v", err)
	}
	if _, err := r.Lookup("tiktok"); !errors.Is(err, ErrUnknownPlatform) {
		t.Errorf("expected ErrUnknownPlatform for unregistered platform, got %v", err)
	}
	a, err := r.Lookup("FACEBOOK")
	if err != nil {
		t.Fatalf("lookup facebook: %v", err)
	}
	if a.ID() != Facebook {
		t.Errorf("got adapter %q", a.ID())
	}
}

func TestRegistry_RegisterRejects(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Register(&stubAdapter{id: "myspace"}); !errors.Is(err, ErrUnknownPlatform) {
		t.Errorf("expected ErrUnknownPlatform, got %v", err)
	}
	if err := r.Register(&stubAdapter{id: YouTube}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(&stubAdapter{id: YouTube}); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestRegistry_ListSorted(t *testing.T) {
	r := NewRegistry(nil)
	for _, id := range []ID{YouTube, Facebook, WhatsApp} {
		if err := r.Register(&stubAdapter{id: id}); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}

	infos := r.List()
	if len(infos) != 3 {
		t.Fatalf("expected 3 adapters, got %d", len(infos))
	}
	want := []ID{Facebook, WhatsApp, YouTube}
	for i, info := range infos {
		if info.ID != want[i] {
			t.Errorf("infos[%d] = %q, want %q", i, info.ID, want[i])
		}
	}
}

func TestRegistry_PublishSkipsInvalidPayload(t *testing.T) {
	stub := &stubAdapter{id: Instagram, limits: Limits{MaxTextLength: 10, MaxImages: 1, RequiresMedia: true}}
	r := NewRegistry(nil)
	if err := r.Register(stub); err != nil {
		t.Fatalf("register: %v", err)
	}

	res, v, err := r.Publish(context.Background(), Account{Platform: Instagram}, Payload{Text: "hello"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if v.Valid {
		t.Fatal("expected invalid validation")
	}
	if stub.published != 0 {
		t.Errorf("adapter Publish called %d times for invalid payload", stub.published)
	}
	if res.Success || res.Error == nil || res.Error.Code != CodeValidationFailed || res.Error.Retryable {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestRegistry_PublishValid(t *testing.T) {
	stub := &stubAdapter{
		id:     Facebook,
		limits: Limits{MaxTextLength: 100},
		result: Succeeded("123", "https://example.com/123"),
	}
	r := NewRegistry(nil)
	if err := r.Register(stub); err != nil {
		t.Fatalf("register: %v", err)
	}

	res, v, err := r.Publish(context.Background(), Account{Platform: Facebook}, Payload{Text: "hello"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !v.Valid || !res.Success || stub.published != 1 {
		t.Errorf("valid=%v success=%v published=%d", v.Valid, res.Success, stub.published)
	}

	if _, _, err := r.Publish(context.Background(), Account{Platform: "bebo"}, Payload{Text: "x"}); !errors.Is(err, ErrUnknownPlatform) {
		t.Errorf("expected ErrUnknownPlatform, got %v", err)
	}
}

func TestPayload_ForAndCaption(t *testing.T) {
	alt := "instagram text"
	p := Payload{
		Text:     "base",
		Hashtags: []string{"#go", " news ", "", "#"},
		Overrides: map[ID]Override{
			Instagram: {Text: &alt, Hashtags: []string{"insta"}, Options: map[string]string{"k": "v"}},
		},
	}

	if got := p.For(Facebook).Caption(); got != "base\n\n#go #news" {
		t.Errorf("facebook caption = %q", got)
	}
	ig := p.For(Instagram)
	if got := ig.Caption(); got != "instagram text\n\n#insta" {
		t.Errorf("instagram caption = %q", got)
	}
	if got := ig.Option(Instagram, "k"); got != "v" {
		t.Errorf("option = %q", got)
	}
	if got := p.Option(TikTok, "k"); got != "" {
		t.Errorf("missing option = %q", got)
	}
	if got := (Payload{Hashtags: []string{"a"}}).Caption(); got != "#a" {
		t.Errorf("tags only caption = %q", got)
	}
}

func TestValidateAgainst(t *testing.T) {
	limits := Limits{
		MaxTextLength:      10,
		MaxHashtags:        1,
		MaxImages:          1,
		MaxVideos:          0,
		MaxImageSizeBytes:  100,
		SupportedMIMETypes: []string{"image/jpeg"},
	}
	img := Media{URL: "https://cdn.example.com/a.jpg", Type: MediaImage, MIMEType: "image/jpeg", SizeBytes: 50}

	tests := []struct {
		name     string
		payload  Payload
		wantErrs int
	}{
		{"valid", Payload{Text: "hi", Media: []Media{img}}, 0},
		{"empty", Payload{}, 1},
		{"text too long", Payload{Text: "this is far too long"}, 1},
		{"multibyte counted as runes", Payload{Text: "ééééééééé"}, 0},
		{"too many hashtags", Payload{Text: "a", Hashtags: []string{"x", "y"}}, 1},
		{"video not accepted", Payload{Text: "a", Media: []Media{{URL: "u", Type: MediaVideo, MIMEType: "image/jpeg"}}}, 1},
		{"image too large", Payload{Media: []Media{{URL: "u", Type: MediaImage, MIMEType: "image/jpeg", SizeBytes: 101}}}, 1},
		{"unsupported mime", Payload{Media: []Media{{URL: "u", Type: MediaImage, MIMEType: "image/png"}}}, 1},
		{"missing url", Payload{Media: []Media{{Type: MediaImage, MIMEType: "image/jpeg"}}}, 1},
		{"unknown type", Payload{Media: []Media{{URL: "u", Type: "audio"}}}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ValidateAgainst(Facebook, limits, tt.payload)
			if len(v.Errors) != tt.wantErrs {
				t.Fatalf("got %d errors %q, want %d", len(v.Errors), v.Errors, tt.wantErrs)
			}
			if v.Valid != (tt.wantErrs == 0) {
				t.Errorf("Valid = %v", v.Valid)
			}
			if v.Errors == nil {
				t.Error("Errors must never be nil")
			}
		})
	}
}

func TestValidateAgainst_VideoDuration(t *testing.T) {
	limits := Limits{MaxVideos: 1, MaxVideoDuration: time.Minute, SupportedMIMETypes: []string{"video/mp4"}}
	p := Payload{Media: []Media{{URL: "u", Type: MediaVideo, MIMEType: "video/mp4", Duration: 61}}}
	if v := ValidateAgainst(YouTube, limits, p); v.Valid {
		t.Error("expected 61s video to exceed a 1 minute limit")
	}
	p.Media[0].Duration = 60
	if v := ValidateAgainst(YouTube, limits, p); !v.Valid {
		t.Errorf("expected 60s video to pass, got %q", v.Errors)
	}
}

func TestStatusFailure(t *testing.T) {
	tests := []struct {
		status    int
		code      string
		retryable bool
	}{
		{http.StatusTooManyRequests, CodeRateLimited, true},
		{http.StatusInternalServerError, CodeUpstream, true},
		{http.StatusBadGateway, CodeUpstream, true},
		{http.StatusUnauthorized, CodeUnauthorized, false},
		{http.StatusForbidden, CodeForbidden, false},
		{http.StatusNotFound, CodeNotFound, false},
		{http.StatusBadRequest, CodeRejected, false},
		{http.StatusUnprocessableEntity, CodeRejected, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			pe := StatusFailure(tt.status, []byte(`{"error":{"message":"boom"}}`))
			if pe.Code != tt.code || pe.Retryable != tt.retryable {
				t.Errorf("got code=%s retryable=%v, want %s/%v", pe.Code, pe.Retryable, tt.code, tt.retryable)
			}
			if pe.Message != "boom" {
				t.Errorf("message = %q", pe.Message)
			}
			if pe.StatusCode != tt.status {
				t.Errorf("status = %d", pe.StatusCode)
			}
		})
	}
}

func TestExtractMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"error":{"message":"nested"}}`, "nested"},
		{`{"error":"invalid_grant","error_description":"expired"}`, "expired"},
		{`{"message":"flat","code":21211}`, "flat"},
		{`{"error":"plain"}`, "plain"},
		{`not json`, "not json"},
		{`{}`, ""},
	}
	for _, tt := range tests {
		if got := extractMessage([]byte(tt.body)); got != tt.want {
			t.Errorf("extractMessage(%s) = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestTransportFailure(t *testing.T) {
	if pe := TransportFailure(context.DeadlineExceeded); pe.Code != CodeTimeout || !pe.Retryable {
		t.Errorf("deadline: %+v", pe)
	}
	if pe := TransportFailure(context.Canceled); pe.Code != CodeCanceled || !pe.Retryable {
		t.Errorf("canceled: %+v", pe)
	}
	if pe := TransportFailure(errors.New("connection refused")); pe.Code != CodeNetwork || !pe.Retryable {
		t.Errorf("network: %+v", pe)
	}
}

func TestTokenStatus(t *testing.T) {
	if ok, err := TokenStatus(nil); !ok || err != nil {
		t.Errorf("nil: ok=%v err=%v", ok, err)
	}
	if ok, err := TokenStatus(StatusFailure(http.StatusUnauthorized, nil)); ok || err != nil {
		t.Errorf("401: ok=%v err=%v", ok, err)
	}
	ok, err := TokenStatus(StatusFailure(http.StatusServiceUnavailable, nil))
	if ok || !errors.Is(err, errs.ErrTransport) {
		t.Errorf("503: ok=%v err=%v", ok, err)
	}
}
