// Package config loads vidwire's runtime configuration from environment
// variables with command-line flag overrides.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

const (
	envVarSignalListenAddr   = "VIDWIRE_SIGNAL_LISTEN_ADDR"
	envVarWebListenAddr      = "VIDWIRE_WEB_LISTEN_ADDR"
	envVarMode               = "VIDWIRE_MODE"
	envVarLogFormat          = "VIDWIRE_LOG_FORMAT"
	envVarLogLevel           = "VIDWIRE_LOG_LEVEL"
	envVarUseTLS             = "VIDWIRE_USE_TLS"
	envVarTLSCertFile        = "VIDWIRE_TLS_CERT"
	envVarTLSKeyFile         = "VIDWIRE_TLS_KEY"
	envVarStaticDir          = "VIDWIRE_STATIC_DIR"
	envVarPublicSignalingURL = "VIDWIRE_PUBLIC_SIGNALING_URL"
	envVarShutdownTimeout    = "VIDWIRE_SHUTDOWN_TIMEOUT"
	envVarAllowedOrigins     = "ALLOWED_ORIGINS"
	envVarSTUNURLs           = "STUN_URLS"
	envVarTURNURLs           = "TURN_URLS"
	envVarTURNSecret         = "TURN_SECRET"
	envVarTURNCredentialTTL  = "TURN_CREDENTIAL_TTL"

	// Signaling WebSocket hardening.
	envVarAuthMode                      = "AUTH_MODE"
	envVarAPIKey                        = "API_KEY"
	envVarMaxSignalingMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxSignalingMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
	envVarSignalingWSIdleTimeout        = "SIGNALING_WS_IDLE_TIMEOUT"
	envVarSignalingWSPingInterval       = "SIGNALING_WS_PING_INTERVAL"
)

const (
	DefaultSignalListenAddr = "127.0.0.1:3001"
	DefaultWebListenAddr    = "127.0.0.1:3000"
	DefaultShutdownTimeout  = 15 * time.Second
	DefaultStaticDir        = "public"

	DefaultMaxSignalingMessageBytes      = 64 * 1024
	DefaultMaxSignalingMessagesPerSecond = 50
	DefaultSignalingWSIdleTimeout        = 60 * time.Second
	DefaultSignalingWSPingInterval       = 30 * time.Second
	DefaultTURNCredentialTTL             = time.Hour

	DefaultMode Mode = ModeDev
)

// DefaultSTUNURLs are the public STUN servers used when none are configured.
var DefaultSTUNURLs = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

type Mode string

const (
	ModeDev        Mode = "dev"
	ModeProduction Mode = "production"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type AuthMode string

const (
	AuthModeNone   AuthMode = "none"
	AuthModeAPIKey AuthMode = "api_key"
)

type Config struct {
	Mode Mode

	SignalListenAddr string
	WebListenAddr    string

	LogFormat LogFormat
	LogLevel  slog.Level

	UseTLS      bool
	TLSCertFile string
	TLSKeyFile  string

	// StaticDir is served by the web surface (SPA with index.html fallback).
	StaticDir string

	// PublicSignalingURL is the WebSocket URL advertised to browser clients via
	// GET /config.js. When empty it is derived from SignalListenAddr and UseTLS.
	PublicSignalingURL string

	AllowedOrigins []string

	// STUNURLs configure the ICE servers handed to Media Engines.
	STUNURLs []string

	// TURNURLs plus TURNSecret enable minted TURN REST credentials in the
	// ICE config served to browsers (coturn static-auth-secret mode).
	TURNURLs          []string
	TURNSecret        string
	TURNCredentialTTL time.Duration

	AuthMode AuthMode
	APIKey   string

	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int
	SignalingWSIdleTimeout        time.Duration
	SignalingWSPingInterval       time.Duration

	ShutdownTimeout time.Duration
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

// load exists so tests can inject a fake environment lookup.
func load(lookup func(string) (string, bool), args []string) (Config, error) {
	modeDefault := envOrDefault(lookup, envVarMode, string(DefaultMode))

	logFormatDefault := envOrDefault(lookup, envVarLogFormat, defaultLogFormatForMode(modeDefault))
	logLevelDefault := envOrDefault(lookup, envVarLogLevel, defaultLogLevelForMode(modeDefault))

	useTLSDefault := false
	if raw, ok := lookup(envVarUseTLS); ok && strings.TrimSpace(raw) != "" {
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarUseTLS, raw, err)
		}
		useTLSDefault = v
	}

	shutdownDefault, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	idleTimeoutDefault, err := envDurationOrDefault(lookup, envVarSignalingWSIdleTimeout, DefaultSignalingWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	pingIntervalDefault, err := envDurationOrDefault(lookup, envVarSignalingWSPingInterval, DefaultSignalingWSPingInterval)
	if err != nil {
		return Config{}, err
	}
	maxMessageBytesDefault, err := envIntOrDefault(lookup, envVarMaxSignalingMessageBytes, DefaultMaxSignalingMessageBytes)
	if err != nil {
		return Config{}, err
	}
	maxMessagesPerSecondDefault, err := envIntOrDefault(lookup, envVarMaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}
	turnTTLDefault, err := envDurationOrDefault(lookup, envVarTURNCredentialTTL, DefaultTURNCredentialTTL)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("vidwire", flag.ContinueOnError)
	signalListenAddr := fs.String("signal-listen-addr", envOrDefault(lookup, envVarSignalListenAddr, DefaultSignalListenAddr), "signaling WebSocket listen address")
	webListenAddr := fs.String("web-listen-addr", envOrDefault(lookup, envVarWebListenAddr, DefaultWebListenAddr), "web/static listen address")
	mode := fs.String("mode", modeDefault, "deployment mode: dev or production")
	logFormat := fs.String("log-format", logFormatDefault, "log format: text or json")
	logLevel := fs.String("log-level", logLevelDefault, "log level: debug, info, warn, error")
	useTLS := fs.Bool("tls", useTLSDefault, "serve TLS (wss/https)")
	tlsCertFile := fs.String("tls-cert", envOrDefault(lookup, envVarTLSCertFile, ""), "TLS certificate file")
	tlsKeyFile := fs.String("tls-key", envOrDefault(lookup, envVarTLSKeyFile, ""), "TLS private key file")
	staticDir := fs.String("static-dir", envOrDefault(lookup, envVarStaticDir, DefaultStaticDir), "directory served by the web surface")
	publicSignalingURL := fs.String("public-signaling-url", envOrDefault(lookup, envVarPublicSignalingURL, ""), "signaling URL advertised to browser clients")
	allowedOrigins := fs.String("allowed-origins", envOrDefault(lookup, envVarAllowedOrigins, ""), "comma-separated allowed Origin values")
	stunURLs := fs.String("stun-urls", envOrDefault(lookup, envVarSTUNURLs, ""), "comma-separated STUN server URLs")
	turnURLs := fs.String("turn-urls", envOrDefault(lookup, envVarTURNURLs, ""), "comma-separated TURN server URLs")
	turnSecret := fs.String("turn-secret", envOrDefault(lookup, envVarTURNSecret, ""), "TURN REST shared secret (coturn static-auth-secret)")
	turnCredentialTTL := fs.Duration("turn-credential-ttl", turnTTLDefault, "lifetime of minted TURN credentials")
	authMode := fs.String("auth-mode", envOrDefault(lookup, envVarAuthMode, string(AuthModeNone)), "signaling auth mode: none or api_key")
	apiKey := fs.String("api-key", envOrDefault(lookup, envVarAPIKey, ""), "shared API key for auth-mode=api_key")
	maxMessageBytes := fs.Int("max-signaling-message-bytes", maxMessageBytesDefault, "maximum inbound signaling message size")
	maxMessagesPerSecond := fs.Int("max-signaling-messages-per-second", maxMessagesPerSecondDefault, "per-connection signaling message rate limit")
	idleTimeout := fs.Duration("signaling-ws-idle-timeout", idleTimeoutDefault, "signaling connection idle timeout")
	pingInterval := fs.Duration("signaling-ws-ping-interval", pingIntervalDefault, "signaling keepalive ping interval")
	shutdownTimeout := fs.Duration("shutdown-timeout", shutdownDefault, "graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Mode:               Mode(strings.TrimSpace(*mode)),
		SignalListenAddr:   *signalListenAddr,
		WebListenAddr:      *webListenAddr,
		LogFormat:          LogFormat(strings.TrimSpace(*logFormat)),
		UseTLS:             *useTLS,
		TLSCertFile:        *tlsCertFile,
		TLSKeyFile:         *tlsKeyFile,
		StaticDir:          *staticDir,
		PublicSignalingURL: *publicSignalingURL,
		AllowedOrigins:     splitList(*allowedOrigins),
		STUNURLs:           splitList(*stunURLs),
		TURNURLs:           splitList(*turnURLs),
		TURNSecret:         *turnSecret,
		TURNCredentialTTL:  *turnCredentialTTL,
		AuthMode:           AuthMode(strings.TrimSpace(*authMode)),
		APIKey:             *apiKey,

		MaxSignalingMessageBytes:      int64(*maxMessageBytes),
		MaxSignalingMessagesPerSecond: *maxMessagesPerSecond,
		SignalingWSIdleTimeout:        *idleTimeout,
		SignalingWSPingInterval:       *pingInterval,

		ShutdownTimeout: *shutdownTimeout,
	}

	level, err := parseLogLevel(*logLevel)
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = level

	if len(cfg.STUNURLs) == 0 {
		cfg.STUNURLs = DefaultSTUNURLs
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Mode {
	case ModeDev, ModeProduction:
	default:
		return fmt.Errorf("invalid %s %q (want dev or production)", envVarMode, c.Mode)
	}
	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("invalid %s %q (want text or json)", envVarLogFormat, c.LogFormat)
	}
	switch c.AuthMode {
	case AuthModeNone:
	case AuthModeAPIKey:
		if c.APIKey == "" {
			return fmt.Errorf("%s=api_key requires %s", envVarAuthMode, envVarAPIKey)
		}
	default:
		return fmt.Errorf("invalid %s %q (want none or api_key)", envVarAuthMode, c.AuthMode)
	}
	if c.UseTLS {
		if c.TLSCertFile == "" || c.TLSKeyFile == "" {
			return fmt.Errorf("%s=true requires %s and %s", envVarUseTLS, envVarTLSCertFile, envVarTLSKeyFile)
		}
		for _, path := range []string{c.TLSCertFile, c.TLSKeyFile} {
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("TLS enabled but %q is not readable: %w", path, err)
			}
		}
	}
	if len(c.TURNURLs) > 0 && c.TURNSecret == "" {
		return fmt.Errorf("%s requires %s", envVarTURNURLs, envVarTURNSecret)
	}
	if c.TURNCredentialTTL < 0 {
		return fmt.Errorf("%s must not be negative", envVarTURNCredentialTTL)
	}
	if c.MaxSignalingMessageBytes <= 0 {
		return fmt.Errorf("%s must be positive", envVarMaxSignalingMessageBytes)
	}
	if c.MaxSignalingMessagesPerSecond <= 0 {
		return fmt.Errorf("%s must be positive", envVarMaxSignalingMessagesPerSecond)
	}
	return nil
}

// SignalingURL returns the WebSocket URL browser clients should dial.
func (c Config) SignalingURL() string {
	if c.PublicSignalingURL != "" {
		return c.PublicSignalingURL
	}
	scheme := "ws"
	if c.UseTLS {
		scheme = "wss"
	}
	return scheme + "://" + c.SignalListenAddr
}

// PeerConnectionICEServers maps the configured STUN URLs into pion's form.
func (c Config) PeerConnectionICEServers() []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(c.STUNURLs))
	for _, u := range c.STUNURLs {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	return servers
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func defaultLogFormatForMode(mode string) string {
	if Mode(mode) == ModeProduction {
		return string(LogFormatJSON)
	}
	return string(LogFormatText)
}

func defaultLogLevelForMode(mode string) string {
	if Mode(mode) == ModeProduction {
		return "info"
	}
	return "debug"
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", s)
	}
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
