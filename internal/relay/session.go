package relay

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vidwire/vidwire/internal/metrics"
	"github.com/vidwire/vidwire/internal/ratelimit"
	"github.com/vidwire/vidwire/internal/registry"
	"github.com/vidwire/vidwire/internal/signaling"
)

func newMessageLimiter(perSecond int) *ratelimit.TokenBucket {
	return ratelimit.NewTokenBucket(ratelimit.RealClock{}, int64(perSecond), int64(perSecond))
}

const writeWait = 1 * time.Second

// peerSession is one client's connection to the relay. It satisfies
// registry.Endpoint so other sessions can forward messages to it.
type peerSession struct {
	srv        *Server
	conn       *websocket.Conn
	remoteAddr string

	// clientID is set once registration succeeds and never changes.
	clientID   string
	registered bool

	writeMu sync.Mutex

	pingStop chan struct{}
	stopOnce sync.Once
}

func newPeerSession(s *Server, conn *websocket.Conn, remoteAddr string) *peerSession {
	return &peerSession{
		srv:        s,
		conn:       conn,
		remoteAddr: remoteAddr,
		pingStop:   make(chan struct{}),
	}
}

func (p *peerSession) run() {
	defer p.close()

	cfg := p.srv.cfg
	p.conn.SetReadLimit(cfg.MaxMessageBytes)
	_ = p.conn.SetReadDeadline(time.Now().Add(cfg.IdleTimeout))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(cfg.IdleTimeout))
	})

	go p.pingLoop(cfg.PingInterval)

	limiter := newMessageLimiter(cfg.MaxMessagesPerSecond)

	for {
		msgType, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		// The limit is applied after reading so bytes already in the TCP
		// receive buffer are consumed before any close frame is written.
		if !limiter.Allow(1) {
			p.srv.metrics.Inc(metrics.DropRateLimited)
			p.closeWith(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		if msgType != websocket.TextMessage {
			p.closeWith(websocket.CloseUnsupportedData, "expected text message")
			return
		}

		msg, err := signaling.ParseMessage(data)
		if err != nil {
			// Malformed traffic is logged and skipped; the connection survives.
			p.srv.metrics.Inc(metrics.DropBadMessage)
			p.srv.log.Warn("dropping malformed signaling message",
				"remote_addr", p.remoteAddr, "client_id", p.clientID, "err", err)
			continue
		}

		switch msg.Type {
		case signaling.MessageTypeRegister:
			p.handleRegister(msg)
		case signaling.MessageTypeOffer,
			signaling.MessageTypeAnswer,
			signaling.MessageTypeICECandidate,
			signaling.MessageTypeCallDeclined:
			p.handleRelay(msg)
		default:
			p.srv.metrics.Inc(metrics.DropBadMessage)
			p.srv.log.Warn("unexpected message type from client",
				"type", msg.Type, "client_id", p.clientID)
		}
	}
}

func (p *peerSession) handleRegister(msg signaling.Message) {
	if p.registered {
		p.srv.log.Warn("re-registration attempt", "client_id", p.clientID)
		_ = p.Send(signaling.Message{
			Type:   signaling.MessageTypeRegisterFailed,
			Reason: "already registered",
		})
		return
	}

	id := msg.ClientID
	if id == "" {
		id = generatePeerID()
	}

	if err := p.srv.registry.Register(id, p); err != nil {
		p.srv.metrics.Inc(metrics.DuplicateID)
		p.srv.log.Warn("duplicate client id rejected", "client_id", id)
		_ = p.Send(signaling.Message{
			Type:   signaling.MessageTypeRegisterFailed,
			Reason: "id already in use",
		})
		return
	}

	p.clientID = id
	p.registered = true
	p.srv.metrics.Inc(metrics.Registered)
	p.srv.log.Info("client registered",
		"client_id", id, "total", p.srv.registry.Len())

	_ = p.Send(signaling.Message{
		Type:     signaling.MessageTypeRegisterSuccess,
		ClientID: id,
	})
}

func (p *peerSession) handleRelay(msg signaling.Message) {
	if !p.registered {
		p.srv.metrics.Inc(metrics.DropUnregistered)
		p.srv.log.Warn("dropping message from unregistered sender",
			"type", msg.Type, "remote_addr", p.remoteAddr)
		return
	}
	if msg.Target == "" {
		p.srv.metrics.Inc(metrics.DropBadMessage)
		p.srv.log.Warn("dropping message without target",
			"type", msg.Type, "client_id", p.clientID)
		return
	}

	target, ok := p.srv.registry.Lookup(msg.Target)
	if !ok {
		// Intentionally silent toward the sender: no delivery acknowledgment
		// protocol exists, so undeliverable messages are only logged.
		p.srv.metrics.Inc(metrics.DropTargetNotFound)
		p.srv.log.Warn("target not registered",
			"type", msg.Type, "from", p.clientID, "target", msg.Target)
		return
	}

	fwd := signaling.Message{
		Type: msg.Type,
		From: p.clientID,
		Data: msg.Data,
	}
	if err := target.Send(fwd); err != nil {
		p.srv.metrics.Inc(metrics.DropTargetClosed)
		p.srv.log.Warn("target endpoint closed",
			"type", msg.Type, "from", p.clientID, "target", msg.Target, "err", err)
		return
	}

	p.srv.metrics.Inc(relayedCounter(msg.Type))
	p.srv.log.Debug("relayed message",
		"type", msg.Type, "from", p.clientID, "target", msg.Target)
}

// Send delivers one message to this session's client. It is safe for
// concurrent use by other sessions' reader goroutines.
func (p *peerSession) Send(msg signaling.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *peerSession) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.writeMu.Lock()
			err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			p.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-p.pingStop:
			return
		}
	}
}

func (p *peerSession) closeWith(code int, reason string) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
}

func (p *peerSession) close() {
	p.stopOnce.Do(func() { close(p.pingStop) })
	if p.registered {
		p.srv.registry.Remove(p.clientID)
		p.srv.metrics.Inc(metrics.Disconnected)
		p.srv.log.Info("client disconnected",
			"client_id", p.clientID, "total", p.srv.registry.Len())
	}
	_ = p.conn.Close()
}

func relayedCounter(t signaling.MessageType) string {
	switch t {
	case signaling.MessageTypeOffer:
		return metrics.RelayedOffer
	case signaling.MessageTypeAnswer:
		return metrics.RelayedAnswer
	case signaling.MessageTypeICECandidate:
		return metrics.RelayedCandidate
	default:
		return metrics.RelayedDeclined
	}
}

func generatePeerID() string {
	return fmt.Sprintf("peer_%s", uuid.NewString())
}

// interface check
var _ registry.Endpoint = (*peerSession)(nil)
