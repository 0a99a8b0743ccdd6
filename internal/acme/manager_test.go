package acme

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/caddyserver/certmagic"

	"github.com/switchboardhq/switchboard/internal/errs"
)

func TestCAURL(t *testing.T) {
	if got := CAURL(true); got != certmagic.LetsEncryptStagingCA {
		t.Errorf("staging CA = %q", got)
	}
	if got := CAURL(false); got != certmagic.LetsEncryptProductionCA {
		t.Errorf("production CA = %q", got)
	}
}

func TestManageRequiresDomain(t *testing.T) {
	m := NewManager("", "ops@example.com", nil, true, nil)
	if err := m.Manage(context.Background()); !errors.Is(err, errs.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestUnmanagedManager(t *testing.T) {
	m := NewManager("hooks.example.com", "", nil, true, nil)
	if m.TLSConfig() != nil {
		t.Error("TLSConfig should be nil before Manage")
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	w := httptest.NewRecorder()
	m.HTTPChallengeHandler(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusTeapot {
		t.Errorf("expected passthrough, got %d", w.Code)
	}
}
