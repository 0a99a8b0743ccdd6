package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/switchboardhq/switchboard/internal/api"
	"github.com/switchboardhq/switchboard/internal/platform"
)

func TestClientSendsBearerAndDecodes(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer swb_key" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "unauthorized"})
			return
		}
		if r.URL.Path != "/v1/accounts" || r.URL.Query().Get("user_id") != "u 1" {
			t.Errorf("unexpected request %s", r.URL)
		}
		_ = json.NewEncoder(w).Encode(api.ListAccountsResponse{Accounts: []api.Account{{ID: "a1", Platform: platform.TikTok}}})
	}))
	defer ts.Close()

	resp, err := NewClient(ts.URL, "swb_key").ListAccounts(context.Background(), "u 1")
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if len(resp.Accounts) != 1 || resp.Accounts[0].ID != "a1" {
		t.Errorf("unexpected response %+v", resp)
	}

	_, err = NewClient(ts.URL, "wrong").ListAccounts(context.Background(), "u 1")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized || se.Message != "unauthorized" {
		t.Errorf("expected unauthorized StatusError, got %v", err)
	}
}

func TestPublishReturnsRejectedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p platform.Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Text != "hi" {
			t.Errorf("payload not sent: %+v, %v", p, err)
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(api.PublishResponse{
			Validation: platform.Validation{Valid: false, Errors: []string{"too long"}},
			Result:     platform.Failed(&platform.PublishError{Code: platform.CodeValidationFailed}),
		})
	}))
	defer ts.Close()

	resp, err := NewClient(ts.URL, "k").Publish(context.Background(), "acct", platform.Payload{Text: "hi"})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if resp.Validation.Valid || len(resp.Validation.Errors) != 1 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestDeleteAccountNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/v1/accounts/missing" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "not found: account not found"})
	}))
	defer ts.Close()

	err := NewClient(ts.URL, "k").DeleteAccount(context.Background(), "missing")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 StatusError, got %v", err)
	}
}
