// Package signalclient is the client side of the signaling relay: it dials
// the relay's websocket endpoint, claims a peer identity, and pumps inbound
// signaling messages to a handler.
package signalclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vidwire/vidwire/internal/signaling"
)

const defaultHandshakeTimeout = 10 * time.Second

// writeTimeout bounds a single websocket write.
const writeTimeout = 10 * time.Second

// ErrRegistrationFailed is returned by Dial when the relay rejects
// registration even after a retry with a fresh generated id.
var ErrRegistrationFailed = errors.New("signalclient: registration failed")

// Config carries the dial parameters.
type Config struct {
	// URL is the relay's websocket endpoint, ws:// or wss://.
	URL string

	// ClientID is the identity to claim. Empty means a generated uuid.
	ClientID string

	// APIKey, when set, is sent in the X-API-Key handshake header.
	APIKey string

	// HandshakeTimeout bounds the dial. Zero means 10s.
	HandshakeTimeout time.Duration

	Logger *slog.Logger
}

// Handler receives each inbound signaling message after registration. It is
// called from the client's single read goroutine, so invocations never
// overlap and arrive in wire order.
type Handler func(msg signaling.Message)

// Client is a registered connection to the relay. Send may be called from
// any goroutine.
type Client struct {
	log      *slog.Logger
	conn     *websocket.Conn
	clientID string
	handle   Handler

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the relay, registers, and starts the read pump. If the
// relay rejects the requested id, Dial retries once with a generated uuid.
// Cancelling ctx aborts the dial and, later, closes the client.
func Dial(ctx context.Context, cfg Config, handle Handler) (*Client, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "signalclient"))

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = defaultHandshakeTimeout
	}
	header := http.Header{}
	if cfg.APIKey != "" {
		header.Set("X-API-Key", cfg.APIKey)
	}

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", cfg.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}

	c := &Client{
		log:    log,
		conn:   conn,
		handle: handle,
		done:   make(chan struct{}),
	}

	requested := cfg.ClientID
	if requested == "" {
		requested = uuid.NewString()
	}
	id, err := c.register(requested)
	if errors.Is(err, errRejected) && cfg.ClientID != "" {
		// The requested identity is taken. Fall back to a generated one.
		retry := uuid.NewString()
		log.Warn("registration rejected, retrying with generated id",
			slog.String("requested", requested),
			slog.String("retry", retry))
		id, err = c.register(retry)
	}
	if err != nil {
		conn.Close()
		return nil, err
	}
	c.clientID = id
	c.log = log.With(slog.String("client_id", id))
	c.log.Info("registered with relay", slog.String("url", cfg.URL))

	go c.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()
	return c, nil
}

var errRejected = errors.New("signalclient: id rejected")

// register claims an identity and waits for the relay's verdict. Non-response
// messages read while waiting are dropped; peers cannot address this client
// before registration succeeds, so nothing meaningful can arrive early.
func (c *Client) register(id string) (string, error) {
	msg := signaling.Message{Type: signaling.MessageTypeRegister, ClientID: id}
	if err := c.Send(msg); err != nil {
		return "", fmt.Errorf("send register: %w", err)
	}
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("await registration: %w", err)
		}
		resp, err := signaling.ParseMessage(data)
		if err != nil {
			c.log.Warn("malformed message during registration", slog.Any("err", err))
			continue
		}
		switch resp.Type {
		case signaling.MessageTypeRegisterSuccess:
			return resp.ClientID, nil
		case signaling.MessageTypeRegisterFailed:
			return "", fmt.Errorf("%w: %s", errRejected, resp.Reason)
		default:
			c.log.Warn("unexpected message during registration",
				slog.String("type", string(resp.Type)))
		}
	}
}

// ClientID reports the identity the relay confirmed.
func (c *Client) ClientID() string {
	return c.clientID
}

// Send encodes and writes one signaling message.
func (c *Client) Send(msg signaling.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", msg.Type, err)
	}
	return nil
}

// Done is closed when the connection ends, whatever the reason.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close sends a close frame and tears the connection down. Safe to call more
// than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		c.writeMu.Unlock()
		err = c.conn.Close()
		close(c.done)
	})
	return err
}

func (c *Client) readLoop() {
	defer c.Close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("relay connection lost", slog.Any("err", err))
			}
			return
		}
		msg, err := signaling.ParseMessage(data)
		if err != nil {
			c.log.Warn("dropping malformed message", slog.Any("err", err))
			continue
		}
		if c.handle != nil {
			c.handle(msg)
		}
	}
}
