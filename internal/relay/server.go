package relay

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vidwire/vidwire/internal/auth"
	"github.com/vidwire/vidwire/internal/config"
	"github.com/vidwire/vidwire/internal/metrics"
	"github.com/vidwire/vidwire/internal/registry"
)

// Config wires together the runtime dependencies for the relay.
type Config struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Verifier gates the WebSocket upgrade. Nil means no auth.
	Verifier auth.Verifier

	MaxMessageBytes      int64
	MaxMessagesPerSecond int

	// IdleTimeout closes connections with no inbound traffic (including
	// pongs). PingInterval must be shorter than IdleTimeout.
	IdleTimeout  time.Duration
	PingInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.New()
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = config.DefaultMaxSignalingMessageBytes
	}
	if c.MaxMessagesPerSecond <= 0 {
		c.MaxMessagesPerSecond = config.DefaultMaxSignalingMessagesPerSecond
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = config.DefaultSignalingWSIdleTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = config.DefaultSignalingWSPingInterval
	}
	return c
}

// Server owns the peer registry and serves the signaling WebSocket.
//
// Each connection gets one reader goroutine; forwards to a target are
// serialized under the target's write mutex. Together these preserve FIFO
// ordering from any one sender to any one target, which the client-side
// candidate queue depends on.
type Server struct {
	cfg      Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	registry *registry.Registry
	upgrader websocket.Upgrader
}

func NewServer(cfg Config) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		cfg:      cfg,
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
		registry: registry.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin checks are enforced by the web surface's middleware when the
			// relay is mounted behind it; standalone deployments accept all.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Metrics() *metrics.Metrics { return s.metrics }

// Registry exposes the routing table for tests and the peer-count log line.
func (s *Server) Registry() *registry.Registry { return s.registry }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Verifier != nil {
		if err := s.cfg.Verifier.Verify(auth.CredentialFromRequest(r)); err != nil {
			s.metrics.Inc(metrics.AuthFailure)
			s.log.Warn("signaling auth failed", "remote_addr", r.RemoteAddr, "err", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.log.Debug("client connected", "remote_addr", r.RemoteAddr)

	sess := newPeerSession(s, conn, r.RemoteAddr)
	sess.run()
}
