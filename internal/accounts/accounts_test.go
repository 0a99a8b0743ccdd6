package accounts

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/switchboardhq/switchboard/internal/api"
	"github.com/switchboardhq/switchboard/internal/db"
	"github.com/switchboardhq/switchboard/internal/errs"
	"github.com/switchboardhq/switchboard/internal/events"
	"github.com/switchboardhq/switchboard/internal/models"
	"github.com/switchboardhq/switchboard/internal/platform"
	"github.com/switchboardhq/switchboard/internal/vault"
)

type stubAdapter struct {
	id         platform.ID
	result     platform.Result
	tokenOK    bool
	refresh    *platform.TokenRefresh
	refreshErr error

	published []platform.Account
}

func (s *stubAdapter) ID() platform.ID { return s.id }

func (s *stubAdapter) DisplayName() string { return string(s.id) }

func (s *stubAdapter) Limits() platform.Limits {
	return platform.Limits{MaxTextLength: 100, MaxImages: 1, SupportedMIMETypes: []string{"image/jpeg"}}
}

func (s *stubAdapter) ValidatePayload(p platform.Payload) platform.Validation {
	return platform.ValidateAgainst(s.id, s.Limits(), p)
}

func (s *stubAdapter) Publish(_ context.Context, a platform.Account, _ platform.Payload) platform.Result {
	s.published = append(s.published, a)
	return s.result
}

func (s *stubAdapter) ValidateToken(context.Context, platform.Account) (bool, error) {
	return s.tokenOK, nil
}

func (s *stubAdapter) RefreshToken(context.Context, platform.Account) (*platform.TokenRefresh, error) {
	return s.refresh, s.refreshErr
}

type outboundCall struct {
	recipient, accountID, body, messageID string
}

type fakeOutbound struct{ calls []outboundCall }

func (f *fakeOutbound) RecordOutbound(_ context.Context, recipient, accountID, body, messageID string) error {
	f.calls = append(f.calls, outboundCall{recipient, accountID, body, messageID})
	return nil
}

type fakeNotifier struct{ events []events.PublishEvent }

func (f *fakeNotifier) Published(_ context.Context, e events.PublishEvent) error {
	f.events = append(f.events, e)
	return nil
}

type fixture struct {
	svc      *Service
	db       *sql.DB
	keyID    int64
	adapter  *stubAdapter
	outbound *fakeOutbound
	notifier *fakeNotifier
}

func newFixture(t *testing.T, id platform.ID) *fixture {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	keyID, err := db.CreateAPIKey(d, "pfx", []byte("hash"))
	if err != nil {
		t.Fatalf("create api key: %v", err)
	}
	key, err := vault.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	adapter := &stubAdapter{id: id, tokenOK: true, result: platform.Succeeded("post-1", "https://example.com/post-1")}
	reg := platform.NewRegistry(nil)
	if err := reg.Register(adapter); err != nil {
		t.Fatalf("register: %v", err)
	}

	f := &fixture{db: d, keyID: keyID, adapter: adapter, outbound: &fakeOutbound{}, notifier: &fakeNotifier{}}
	f.svc = &Service{DB: d, Vault: vault.New(key), Registry: reg, Outbound: f.outbound, Notifier: f.notifier}
	return f
}

func (f *fixture) connect(t *testing.T, req api.ConnectAccountRequest) *api.Account {
	t.Helper()
	s, err := f.svc.Connect(context.Background(), f.keyID, req)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return s
}

func TestConnectEncryptsTokens(t *testing.T) {
	f := newFixture(t, platform.Facebook)
	exp := time.Unix(1900000000, 0).UTC()
	s := f.connect(t, api.ConnectAccountRequest{
		UserID:            "user-1",
		Platform:          "Facebook",
		PlatformAccountID: "page-1",
		AccessToken:       "secret-access",
		RefreshToken:      "secret-refresh",
		TokenExpiresAt:    &exp,
		Metadata:          map[string]string{"page_id": "page-1"},
	})

	if s.Platform != platform.Facebook {
		t.Errorf("platform = %q", s.Platform)
	}
	if !s.HasRefreshToken {
		t.Error("expected HasRefreshToken")
	}
	if s.TokenExpiresAt == nil || !s.TokenExpiresAt.Equal(exp) {
		t.Errorf("TokenExpiresAt = %v", s.TokenExpiresAt)
	}

	row, err := db.GetSocialAccount(f.db, s.ID)
	if err != nil || row == nil {
		t.Fatalf("GetSocialAccount: %v", err)
	}
	if row.AccessToken.Ciphertext == "secret-access" {
		t.Error("access token stored in plaintext")
	}

	acct, err := f.svc.Load(context.Background(), f.keyID, s.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if acct.AccessToken != "secret-access" || acct.RefreshToken != "secret-refresh" {
		t.Errorf("decrypted tokens = %q, %q", acct.AccessToken, acct.RefreshToken)
	}
	if acct.Meta("page_id") != "page-1" {
		t.Errorf("metadata = %v", acct.Metadata)
	}
}

func TestConnectValidation(t *testing.T) {
	f := newFixture(t, platform.Facebook)
	tests := []struct {
		name string
		req  api.ConnectAccountRequest
	}{
		{"unknown platform", api.ConnectAccountRequest{UserID: "u", Platform: "myspace", PlatformAccountID: "p", AccessToken: "t"}},
		{"missing user", api.ConnectAccountRequest{Platform: "facebook", PlatformAccountID: "p", AccessToken: "t"}},
		{"missing account id", api.ConnectAccountRequest{UserID: "u", Platform: "facebook", AccessToken: "t"}},
		{"missing token", api.ConnectAccountRequest{UserID: "u", Platform: "facebook", PlatformAccountID: "p"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Connect(context.Background(), f.keyID, tt.req)
			if !errors.Is(err, errs.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestAccountsAreScopedToAPIKey(t *testing.T) {
	f := newFixture(t, platform.Facebook)
	s := f.connect(t, api.ConnectAccountRequest{UserID: "u", Platform: "facebook", PlatformAccountID: "p", AccessToken: "t"})

	other, err := db.CreateAPIKey(f.db, "other", []byte("hash"))
	if err != nil {
		t.Fatalf("create api key: %v", err)
	}
	if _, err := f.svc.Load(context.Background(), other, s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load from other key: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), other, s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get from other key: %v", err)
	}
	if got, err := f.svc.Get(context.Background(), f.keyID, s.ID); err != nil || got.ID != s.ID {
		t.Errorf("Get = %+v, %v", got, err)
	}
	if err := f.svc.Delete(context.Background(), other, s.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Delete from other key: %v", err)
	}

	list, err := f.svc.List(context.Background(), other, "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("other key sees %d accounts", len(list))
	}

	if err := f.svc.Delete(context.Background(), f.keyID, s.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	list, _ = f.svc.List(context.Background(), f.keyID, "")
	if len(list) != 0 {
		t.Errorf("expected no accounts after delete, got %d", len(list))
	}
}

func TestPublishNotifies(t *testing.T) {
	f := newFixture(t, platform.Facebook)
	s := f.connect(t, api.ConnectAccountRequest{UserID: "u", Platform: "facebook", PlatformAccountID: "p", AccessToken: "tok"})

	res, v, err := f.svc.Publish(context.Background(), f.keyID, s.ID, platform.Payload{Text: "hello"})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if !v.Valid || !res.Success || res.PlatformPostID != "post-1" {
		t.Fatalf("unexpected result %+v %+v", res, v)
	}
	if len(f.adapter.published) != 1 || f.adapter.published[0].AccessToken != "tok" {
		t.Errorf("adapter saw %+v", f.adapter.published)
	}
	if len(f.notifier.events) != 1 || f.notifier.events[0].AccountID != s.ID {
		t.Errorf("events = %+v", f.notifier.events)
	}
	if len(f.outbound.calls) != 0 {
		t.Errorf("non-WhatsApp publish recorded outbound: %+v", f.outbound.calls)
	}
}

func TestPublishInvalidPayloadSkipsAdapter(t *testing.T) {
	f := newFixture(t, platform.Facebook)
	s := f.connect(t, api.ConnectAccountRequest{UserID: "u", Platform: "facebook", PlatformAccountID: "p", AccessToken: "tok"})

	res, v, err := f.svc.Publish(context.Background(), f.keyID, s.ID, platform.Payload{Text: strings.Repeat("a", 101)})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if v.Valid || res.Success {
		t.Fatalf("expected invalid payload, got %+v %+v", res, v)
	}
	if len(f.adapter.published) != 0 {
		t.Error("adapter called for invalid payload")
	}
	if len(f.notifier.events) != 0 {
		t.Error("invalid payload should not be announced")
	}
}

func TestPublishWhatsAppRecordsOutbound(t *testing.T) {
	f := newFixture(t, platform.WhatsApp)
	f.adapter.result = platform.Succeeded("SM123", "")
	s := f.connect(t, api.ConnectAccountRequest{UserID: "u", Platform: "whatsapp", PlatformAccountID: "AC1", AccessToken: "tok"})

	p := platform.Payload{
		Text: "your order shipped",
		Overrides: map[platform.ID]platform.Override{
			platform.WhatsApp: {Options: map[string]string{"to": "whatsapp:+15551234567"}},
		},
	}
	if _, _, err := f.svc.Publish(context.Background(), f.keyID, s.ID, p); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(f.outbound.calls) != 1 {
		t.Fatalf("expected 1 outbound record, got %d", len(f.outbound.calls))
	}
	got := f.outbound.calls[0]
	want := outboundCall{"+15551234567", s.ID, "your order shipped", "SM123"}
	if got != want {
		t.Errorf("outbound = %+v, want %+v", got, want)
	}
}

func TestRefreshStoresNewTokens(t *testing.T) {
	f := newFixture(t, platform.Facebook)
	s := f.connect(t, api.ConnectAccountRequest{UserID: "u", Platform: "facebook", PlatformAccountID: "p", AccessToken: "old", RefreshToken: "r1"})

	f.adapter.refresh = &platform.TokenRefresh{AccessToken: "new", ExpiresAt: time.Unix(2000000000, 0)}
	ok, err := f.svc.Refresh(context.Background(), f.keyID, s.ID)
	if err != nil || !ok {
		t.Fatalf("Refresh = %v, %v", ok, err)
	}

	acct, err := f.svc.Load(context.Background(), f.keyID, s.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if acct.AccessToken != "new" {
		t.Errorf("access token = %q", acct.AccessToken)
	}
	if acct.RefreshToken != "r1" {
		t.Errorf("refresh token should be kept, got %q", acct.RefreshToken)
	}
}

func TestRefreshUnsupported(t *testing.T) {
	f := newFixture(t, platform.Facebook)
	s := f.connect(t, api.ConnectAccountRequest{UserID: "u", Platform: "facebook", PlatformAccountID: "p", AccessToken: "old"})

	ok, err := f.svc.Refresh(context.Background(), f.keyID, s.ID)
	if err != nil || ok {
		t.Errorf("Refresh = %v, %v; want false, nil", ok, err)
	}
}

func TestRefreshRejectedMarksExpired(t *testing.T) {
	f := newFixture(t, platform.Facebook)
	s := f.connect(t, api.ConnectAccountRequest{UserID: "u", Platform: "facebook", PlatformAccountID: "p", AccessToken: "old"})

	f.adapter.refreshErr = errs.ErrAuthentication
	if _, err := f.svc.Refresh(context.Background(), f.keyID, s.ID); !errors.Is(err, errs.ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	row, _ := db.GetSocialAccount(f.db, s.ID)
	if row.Status != models.AccountExpired {
		t.Errorf("status = %q", row.Status)
	}
}

func TestValidateTokenMarksExpired(t *testing.T) {
	f := newFixture(t, platform.Facebook)
	s := f.connect(t, api.ConnectAccountRequest{UserID: "u", Platform: "facebook", PlatformAccountID: "p", AccessToken: "old"})

	ok, err := f.svc.ValidateToken(context.Background(), f.keyID, s.ID)
	if err != nil || !ok {
		t.Fatalf("ValidateToken = %v, %v", ok, err)
	}

	f.adapter.tokenOK = false
	ok, err = f.svc.ValidateToken(context.Background(), f.keyID, s.ID)
	if err != nil || ok {
		t.Fatalf("ValidateToken = %v, %v; want false", ok, err)
	}
	row, _ := db.GetSocialAccount(f.db, s.ID)
	if row.Status != models.AccountExpired {
		t.Errorf("status = %q", row.Status)
	}
}
