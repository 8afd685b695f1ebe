package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"strconv"
	"strings"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestForPeerMatchesCoturnAlgorithm(t *testing.T) {
	g, err := NewGenerator(Config{
		SharedSecret:   "north-of-the-wall",
		TTL:            10 * time.Minute,
		UsernamePrefix: "vidwire",
		Now:            fixedNow,
	})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	creds, err := g.ForPeer("alice")
	if err != nil {
		t.Fatalf("ForPeer: %v", err)
	}

	wantExpiry := fixedNow().Add(10 * time.Minute).Unix()
	wantUsername := strconv.FormatInt(wantExpiry, 10) + ":vidwire:alice"
	if creds.Username != wantUsername {
		t.Fatalf("username = %q, want %q", creds.Username, wantUsername)
	}
	if creds.ExpiryUnix != wantExpiry {
		t.Fatalf("expiry = %d, want %d", creds.ExpiryUnix, wantExpiry)
	}

	mac := hmac.New(sha1.New, []byte("north-of-the-wall"))
	mac.Write([]byte(wantUsername))
	if want := base64.StdEncoding.EncodeToString(mac.Sum(nil)); creds.Credential != want {
		t.Fatalf("credential = %q, want %q", creds.Credential, want)
	}
}

func TestForPeerGeneratesIDWhenEmpty(t *testing.T) {
	g, err := NewGenerator(Config{SharedSecret: "s", Now: fixedNow})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	creds, err := g.ForPeer("")
	if err != nil {
		t.Fatalf("ForPeer: %v", err)
	}
	parts := strings.SplitN(creds.Username, ":", 3)
	if len(parts) != 3 || parts[2] == "" {
		t.Fatalf("username = %q, want a generated peer part", creds.Username)
	}
}

func TestForPeerRejectsColon(t *testing.T) {
	g, err := NewGenerator(Config{SharedSecret: "s"})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	if _, err := g.ForPeer("a:b"); err == nil {
		t.Fatal("peer id with ':' accepted")
	}
}

func TestNewGeneratorValidation(t *testing.T) {
	if _, err := NewGenerator(Config{}); err == nil {
		t.Fatal("empty secret accepted")
	}
	if _, err := NewGenerator(Config{SharedSecret: "s", UsernamePrefix: "a:b"}); err == nil {
		t.Fatal("prefix with ':' accepted")
	}
	if _, err := NewGenerator(Config{SharedSecret: "s", TTL: -time.Second}); err == nil {
		t.Fatal("negative TTL accepted")
	}
}
