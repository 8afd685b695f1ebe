// Package turnrest issues coturn-compatible TURN REST credentials for call
// peers, so the TURN server can be shared without a static password.
//
// See https://datatracker.ietf.org/doc/html/draft-uberti-behave-turn-rest:
//
//	username   = <unix_expiry>:<prefix>:<peer_id>
//	credential = base64(hmac_sha1(shared_secret, username))
package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultUsernamePrefix = "vidwire"

// Generator mints short-lived TURN credentials against a shared secret.
type Generator struct {
	secret []byte
	ttl    time.Duration
	prefix string

	// now is swapped out in tests.
	now func() time.Time
}

type Config struct {
	// SharedSecret must match the TURN server's static-auth-secret.
	SharedSecret string

	// TTL bounds the credential lifetime. Zero means 1 hour.
	TTL time.Duration

	// UsernamePrefix tags minted usernames for the TURN server's logs. It
	// must not contain ':'. Empty means "vidwire".
	UsernamePrefix string

	Now func() time.Time
}

func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.SharedSecret == "" {
		return nil, errors.New("turnrest: shared secret is required")
	}
	if cfg.TTL < 0 {
		return nil, errors.New("turnrest: TTL must not be negative")
	}
	if cfg.TTL == 0 {
		cfg.TTL = time.Hour
	}
	if cfg.UsernamePrefix == "" {
		cfg.UsernamePrefix = defaultUsernamePrefix
	}
	if strings.Contains(cfg.UsernamePrefix, ":") {
		return nil, errors.New("turnrest: username prefix must not contain ':'")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Generator{
		secret: []byte(cfg.SharedSecret),
		ttl:    cfg.TTL,
		prefix: cfg.UsernamePrefix,
		now:    cfg.Now,
	}, nil
}

// Credentials are handed to a peer verbatim as its TURN username/credential
// pair.
type Credentials struct {
	Username   string
	Credential string
	ExpiryUnix int64
}

// ForPeer mints credentials scoped to one peer id. Peer ids containing ':'
// are rejected; the TURN username format reserves it.
func (g *Generator) ForPeer(peerID string) (Credentials, error) {
	if peerID == "" {
		peerID = uuid.NewString()
	}
	if strings.Contains(peerID, ":") {
		return Credentials{}, fmt.Errorf("turnrest: peer id %q must not contain ':'", peerID)
	}
	expiry := g.now().UTC().Add(g.ttl).Unix()
	username := fmt.Sprintf("%d:%s:%s", expiry, g.prefix, peerID)
	return Credentials{
		Username:   username,
		Credential: sign(g.secret, username),
		ExpiryUnix: expiry,
	}, nil
}

func sign(secret []byte, username string) string {
	mac := hmac.New(sha1.New, secret)
	mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
