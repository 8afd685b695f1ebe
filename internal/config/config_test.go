package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func fakeEnv(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(fakeEnv(nil), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.SignalListenAddr != DefaultSignalListenAddr {
		t.Errorf("SignalListenAddr = %q, want %q", cfg.SignalListenAddr, DefaultSignalListenAddr)
	}
	if cfg.WebListenAddr != DefaultWebListenAddr {
		t.Errorf("WebListenAddr = %q, want %q", cfg.WebListenAddr, DefaultWebListenAddr)
	}
	if cfg.Mode != ModeDev {
		t.Errorf("Mode = %q, want dev", cfg.Mode)
	}
	if cfg.LogFormat != LogFormatText {
		t.Errorf("LogFormat = %q, want text in dev mode", cfg.LogFormat)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug in dev mode", cfg.LogLevel)
	}
	if cfg.AuthMode != AuthModeNone {
		t.Errorf("AuthMode = %q, want none", cfg.AuthMode)
	}
	if cfg.MaxSignalingMessageBytes != DefaultMaxSignalingMessageBytes {
		t.Errorf("MaxSignalingMessageBytes = %d", cfg.MaxSignalingMessageBytes)
	}
	if len(cfg.STUNURLs) == 0 {
		t.Error("expected default STUN URLs")
	}
}

func TestLoad_ProductionModeDefaultsToJSONInfo(t *testing.T) {
	cfg, err := load(fakeEnv(map[string]string{
		"VIDWIRE_MODE": "production",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Errorf("LogFormat = %q, want json in production mode", cfg.LogFormat)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info in production mode", cfg.LogLevel)
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	env := fakeEnv(map[string]string{
		"VIDWIRE_SIGNAL_LISTEN_ADDR": "127.0.0.1:4001",
		"SIGNALING_WS_IDLE_TIMEOUT":  "90s",
	})
	cfg, err := load(env, []string{"-signal-listen-addr", "127.0.0.1:5001"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SignalListenAddr != "127.0.0.1:5001" {
		t.Errorf("SignalListenAddr = %q, want flag value", cfg.SignalListenAddr)
	}
	if cfg.SignalingWSIdleTimeout != 90*time.Second {
		t.Errorf("SignalingWSIdleTimeout = %v, want 90s from env", cfg.SignalingWSIdleTimeout)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "bad mode",
			env:  map[string]string{"VIDWIRE_MODE": "staging"},
			want: "VIDWIRE_MODE",
		},
		{
			name: "bad log level",
			env:  map[string]string{"VIDWIRE_LOG_LEVEL": "loud"},
			want: "log level",
		},
		{
			name: "bad idle timeout",
			env:  map[string]string{"SIGNALING_WS_IDLE_TIMEOUT": "sixty"},
			want: "SIGNALING_WS_IDLE_TIMEOUT",
		},
		{
			name: "api_key mode without key",
			env:  map[string]string{"AUTH_MODE": "api_key"},
			want: "API_KEY",
		},
		{
			name: "tls without cert paths",
			env:  map[string]string{"VIDWIRE_USE_TLS": "true"},
			want: "VIDWIRE_USE_TLS",
		},
		{
			name: "zero message budget",
			env:  map[string]string{"MAX_SIGNALING_MESSAGE_BYTES": "0"},
			want: "MAX_SIGNALING_MESSAGE_BYTES",
		},
		{
			name: "turn urls without secret",
			env:  map[string]string{"TURN_URLS": "turn:turn.example.com:3478"},
			want: "TURN_SECRET",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := load(fakeEnv(tc.env), nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoad_TURN(t *testing.T) {
	cfg, err := load(fakeEnv(map[string]string{
		"TURN_URLS":           "turn:turn.example.com:3478,turns:turn.example.com:5349",
		"TURN_SECRET":         "shared",
		"TURN_CREDENTIAL_TTL": "30m",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.TURNURLs) != 2 {
		t.Errorf("TURNURLs = %v, want 2 entries", cfg.TURNURLs)
	}
	if cfg.TURNCredentialTTL != 30*time.Minute {
		t.Errorf("TURNCredentialTTL = %v, want 30m", cfg.TURNCredentialTTL)
	}
}

func TestSignalingURL(t *testing.T) {
	cfg := Config{SignalListenAddr: "call.example.com:3001"}
	if got := cfg.SignalingURL(); got != "ws://call.example.com:3001" {
		t.Errorf("SignalingURL = %q", got)
	}

	cfg.UseTLS = true
	if got := cfg.SignalingURL(); got != "wss://call.example.com:3001" {
		t.Errorf("SignalingURL with TLS = %q", got)
	}

	cfg.PublicSignalingURL = "wss://public.example.com/signal"
	if got := cfg.SignalingURL(); got != "wss://public.example.com/signal" {
		t.Errorf("SignalingURL with override = %q", got)
	}
}

func TestPeerConnectionICEServers(t *testing.T) {
	cfg := Config{STUNURLs: []string{"stun:stun.l.google.com:19302"}}
	servers := cfg.PeerConnectionICEServers()
	if len(servers) != 1 || servers[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Fatalf("unexpected ICE servers: %#v", servers)
	}
}
