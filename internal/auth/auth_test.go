package auth

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/vidwire/vidwire/internal/config"
)

func TestNewVerifier(t *testing.T) {
	v, err := NewVerifier(config.Config{AuthMode: config.AuthModeNone})
	if err != nil {
		t.Fatalf("NewVerifier(none): %v", err)
	}
	if err := v.Verify(""); err != nil {
		t.Errorf("AllowAll should accept empty credential: %v", err)
	}

	v, err = NewVerifier(config.Config{AuthMode: config.AuthModeAPIKey, APIKey: "secret"})
	if err != nil {
		t.Fatalf("NewVerifier(api_key): %v", err)
	}
	if err := v.Verify("secret"); err != nil {
		t.Errorf("valid key rejected: %v", err)
	}

	if _, err := NewVerifier(config.Config{AuthMode: "jwt"}); err == nil {
		t.Error("expected error for unsupported auth mode")
	}
}

func TestAPIKeyVerifier(t *testing.T) {
	v := APIKeyVerifier{Expected: "secret"}

	if err := v.Verify(""); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("empty credential err = %v, want ErrMissingCredentials", err)
	}
	if err := v.Verify("wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong credential err = %v, want ErrInvalidCredentials", err)
	}
	if err := v.Verify("secret"); err != nil {
		t.Errorf("correct credential err = %v", err)
	}

	// A server with no configured key must not accept anything.
	unset := APIKeyVerifier{}
	if err := unset.Verify("anything"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unset expected key err = %v, want ErrInvalidCredentials", err)
	}
}

func TestCredentialFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/signal?apiKey=fromquery", nil)
	if got := CredentialFromRequest(r); got != "fromquery" {
		t.Errorf("query credential = %q", got)
	}

	r.Header.Set("X-API-Key", "fromheader")
	if got := CredentialFromRequest(r); got != "fromheader" {
		t.Errorf("header should win, got %q", got)
	}

	r = httptest.NewRequest("GET", "/signal", nil)
	if got := CredentialFromRequest(r); got != "" {
		t.Errorf("no credential = %q, want empty", got)
	}
}
