// Package auth gates the signaling WebSocket behind an optional shared API
// key. AUTH_MODE=none disables the gate entirely.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"github.com/vidwire/vidwire/internal/config"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type Verifier interface {
	Verify(credential string) error
}

func NewVerifier(cfg config.Config) (Verifier, error) {
	switch cfg.AuthMode {
	case config.AuthModeNone:
		return AllowAllVerifier{}, nil
	case config.AuthModeAPIKey:
		return APIKeyVerifier{Expected: cfg.APIKey}, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.AuthMode)
	}
}

type AllowAllVerifier struct{}

func (AllowAllVerifier) Verify(string) error { return nil }

type APIKeyVerifier struct {
	Expected string
}

func (v APIKeyVerifier) Verify(apiKey string) error {
	if apiKey == "" {
		return ErrMissingCredentials
	}
	if v.Expected == "" {
		return ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(v.Expected)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// CredentialFromRequest extracts the API key from the upgrade request:
// the X-API-Key header is preferred, the apiKey query parameter is the
// fallback for browser clients that cannot set WebSocket headers.
func CredentialFromRequest(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("apiKey")
}
