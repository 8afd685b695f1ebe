package coordinator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vidwire/vidwire/internal/signaling"
)

// State is the lifecycle phase of a negotiation session.
type State int

const (
	// StateIdle means no session and no pending incoming call.
	StateIdle State = iota
	// StateOffering means an offer was sent and the caller is waiting for an
	// answer or a decline.
	StateOffering
	// StateNegotiating means the remote description is installed and ICE is
	// in progress.
	StateNegotiating
	// StateConnected means the engine reported an established connection.
	StateConnected
	// StateClosed means the session ended normally.
	StateClosed
	// StateDeclined means the remote peer declined the call.
	StateDeclined
	// StateFailed means the session ended on an error.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOffering:
		return "offering"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateDeclined:
		return "declined"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Role distinguishes which side of a session initiated it.
type Role int

const (
	RoleCaller Role = iota
	RoleCallee
)

func (r Role) String() string {
	if r == RoleCaller {
		return "caller"
	}
	return "callee"
}

// SignalSender delivers outbound signaling messages to the relay.
type SignalSender interface {
	Send(msg signaling.Message) error
}

// Callbacks are the coordinator's notifications to its embedding application.
// All fields are optional. Callbacks run outside the coordinator's lock, so
// they may call back into the coordinator.
type Callbacks struct {
	// OnStatusChange receives human-readable progress text.
	OnStatusChange func(status string)

	// OnIncomingCall fires when a remote offer arrives and is waiting for
	// Accept or Decline.
	OnIncomingCall func(peerID string)

	// OnCallDeclined fires when the remote peer declines an outgoing call.
	OnCallDeclined func(peerID string)

	// OnRemoteTrack forwards inbound media from the active session's engine.
	OnRemoteTrack func(track RemoteTrack)

	// OnConnectionState forwards engine connection-state transitions for the
	// active session.
	OnConnectionState func(state ConnState)
}

// ErrNoPendingCall is returned by Accept and Decline when no incoming offer
// is waiting.
var ErrNoPendingCall = errors.New("coordinator: no pending incoming call")

// session is the per-call negotiation state. All fields are guarded by the
// owning Coordinator's mutex.
type session struct {
	peerID string
	role   Role
	engine MediaEngine
	state  State

	// hasRemoteDescription gates candidate application: before the remote
	// description is installed, inbound candidates go to candidateQueue.
	hasRemoteDescription bool
	candidateQueue       []json.RawMessage
}

// pendingCall is a received offer waiting for Accept or Decline.
type pendingCall struct {
	peerID string
	offer  json.RawMessage
}

// Coordinator drives exactly one negotiation session at a time: it originates
// and answers calls, routes descriptions and candidates between the signaling
// channel and the media engine, and preserves the arrival order of candidates
// that outrun their description.
type Coordinator struct {
	log       *slog.Logger
	sender    SignalSender
	newEngine EngineFactory
	cb        Callbacks

	mu      sync.Mutex
	sess    *session
	pending *pendingCall

	// preAccept buffers candidates that arrive for an offer the application
	// has not accepted yet, keyed by the offering peer's id.
	preAccept map[string][]json.RawMessage
}

// New returns a Coordinator in StateIdle.
func New(log *slog.Logger, sender SignalSender, newEngine EngineFactory, cb Callbacks) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		log:       log.With(slog.String("component", "coordinator")),
		sender:    sender,
		newEngine: newEngine,
		cb:        cb,
		preAccept: make(map[string][]json.RawMessage),
	}
}

// State reports the active session's state, or StateIdle without one.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return StateIdle
	}
	return c.sess.state
}

// ActivePeer reports the active session's peer id, or "" without one.
func (c *Coordinator) ActivePeer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.peerID
}

// PendingPeer reports the peer id of the offer waiting for Accept or Decline,
// or "" when there is none.
func (c *Coordinator) PendingPeer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return ""
	}
	return c.pending.peerID
}

// Call starts an outgoing call to peerID: it creates a fresh engine, sends
// the offer, and leaves the session in StateOffering. Any session already
// active is closed first.
func (c *Coordinator) Call(peerID string) error {
	c.mu.Lock()
	c.discardSessionLocked()

	sess := &session{peerID: peerID, role: RoleCaller, state: StateOffering}
	engine, err := c.newEngine(c.eventsFor(sess))
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("create media engine: %w", err)
	}
	sess.engine = engine
	c.sess = sess

	offer, err := engine.CreateOffer()
	if err == nil {
		err = c.sender.Send(signaling.Message{
			Type:   signaling.MessageTypeOffer,
			Target: peerID,
			Data:   offer,
		})
	}
	if err != nil {
		c.failSessionLocked(sess, "start call", err)
		after := c.statusFn("Call failed")
		c.mu.Unlock()
		after()
		return fmt.Errorf("start call to %s: %w", peerID, err)
	}

	c.log.Info("outgoing call", slog.String("peer", peerID))
	after := c.statusFn("Calling " + peerID + "...")
	c.mu.Unlock()
	after()
	return nil
}

// Accept answers the pending incoming call: it creates a fresh engine,
// installs the buffered offer, drains candidates that arrived early, and
// returns an answer to the caller.
func (c *Coordinator) Accept() error {
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return ErrNoPendingCall
	}
	pending := c.pending
	c.pending = nil
	c.discardSessionLocked()

	sess := &session{peerID: pending.peerID, role: RoleCallee, state: StateNegotiating}
	engine, err := c.newEngine(c.eventsFor(sess))
	if err != nil {
		delete(c.preAccept, pending.peerID)
		c.mu.Unlock()
		return fmt.Errorf("create media engine: %w", err)
	}
	sess.engine = engine
	c.sess = sess

	err = engine.SetRemoteDescription(pending.offer)
	if err == nil {
		sess.hasRemoteDescription = true
		c.drainCandidatesLocked(sess, c.preAccept[pending.peerID])
		delete(c.preAccept, pending.peerID)
		c.drainCandidatesLocked(sess, sess.candidateQueue)
		sess.candidateQueue = nil

		var answer json.RawMessage
		answer, err = engine.CreateAnswer()
		if err == nil {
			err = c.sender.Send(signaling.Message{
				Type:   signaling.MessageTypeAnswer,
				Target: pending.peerID,
				Data:   answer,
			})
		}
	}
	if err != nil {
		delete(c.preAccept, pending.peerID)
		c.failSessionLocked(sess, "accept call", err)
		after := c.statusFn("Call failed")
		c.mu.Unlock()
		after()
		return fmt.Errorf("accept call from %s: %w", pending.peerID, err)
	}

	c.log.Info("call accepted", slog.String("peer", pending.peerID))
	after := c.statusFn("Connecting to " + pending.peerID + "...")
	c.mu.Unlock()
	after()
	return nil
}

// Decline rejects the pending incoming call and notifies the caller. Buffered
// candidates for that caller are discarded.
func (c *Coordinator) Decline() error {
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return ErrNoPendingCall
	}
	peerID := c.pending.peerID
	c.pending = nil
	delete(c.preAccept, peerID)

	err := c.sender.Send(signaling.Message{
		Type:   signaling.MessageTypeCallDeclined,
		Target: peerID,
	})
	c.log.Info("call declined", slog.String("peer", peerID))
	after := c.statusFn("Call declined")
	c.mu.Unlock()
	after()
	if err != nil {
		return fmt.Errorf("decline call from %s: %w", peerID, err)
	}
	return nil
}

// Hangup ends the active session and closes its engine. A pending incoming
// call, if any, is left untouched.
func (c *Coordinator) Hangup() {
	c.mu.Lock()
	if c.sess == nil {
		c.mu.Unlock()
		return
	}
	peerID := c.sess.peerID
	c.discardSessionLocked()
	c.log.Info("hangup", slog.String("peer", peerID))
	after := c.statusFn("Call ended")
	c.mu.Unlock()
	after()
}

// HandleSignal routes one inbound signaling message. Unroutable messages are
// logged and dropped; HandleSignal never fails the session for them.
func (c *Coordinator) HandleSignal(msg signaling.Message) {
	switch msg.Type {
	case signaling.MessageTypeOffer:
		c.handleRemoteOffer(msg.From, msg.Data)
	case signaling.MessageTypeAnswer:
		c.handleRemoteAnswer(msg.From, msg.Data)
	case signaling.MessageTypeICECandidate:
		c.handleRemoteCandidate(msg.From, msg.Data)
	case signaling.MessageTypeCallDeclined:
		c.handleDeclined(msg.From)
	default:
		c.log.Debug("ignoring signaling message", slog.String("type", string(msg.Type)))
	}
}

func (c *Coordinator) handleRemoteOffer(from string, offer json.RawMessage) {
	c.mu.Lock()
	if c.pending != nil {
		// Last call wins: the superseded caller's continuation is dropped.
		c.log.Info("incoming call superseded",
			slog.String("old_peer", c.pending.peerID),
			slog.String("new_peer", from))
		delete(c.preAccept, c.pending.peerID)
	}
	c.pending = &pendingCall{peerID: from, offer: offer}
	c.log.Info("incoming call", slog.String("peer", from))
	after := c.statusFn("Incoming call from " + from)
	cb := c.cb.OnIncomingCall
	c.mu.Unlock()
	after()
	if cb != nil {
		cb(from)
	}
}

func (c *Coordinator) handleRemoteAnswer(from string, answer json.RawMessage) {
	c.mu.Lock()
	sess := c.sess
	if sess == nil || sess.peerID != from || sess.role != RoleCaller || sess.state != StateOffering {
		c.log.Warn("dropping unexpected answer", slog.String("from", from))
		c.mu.Unlock()
		return
	}
	if err := sess.engine.SetRemoteDescription(answer); err != nil {
		c.failSessionLocked(sess, "apply answer", err)
		after := c.statusFn("Call failed")
		c.mu.Unlock()
		after()
		return
	}
	sess.hasRemoteDescription = true
	c.drainCandidatesLocked(sess, sess.candidateQueue)
	sess.candidateQueue = nil
	sess.state = StateNegotiating
	c.log.Info("call answered", slog.String("peer", from))
	after := c.statusFn("Call accepted, connecting...")
	c.mu.Unlock()
	after()
}

func (c *Coordinator) handleRemoteCandidate(from string, candidate json.RawMessage) {
	if isEndOfCandidates(candidate) {
		c.log.Debug("remote gathering complete", slog.String("from", from))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if sess := c.sess; sess != nil && sess.peerID == from {
		if !sess.hasRemoteDescription {
			sess.candidateQueue = append(sess.candidateQueue, candidate)
			return
		}
		if err := sess.engine.AddICECandidate(candidate); err != nil {
			// A bad candidate is not fatal to the session.
			c.log.Warn("add ice candidate", slog.String("from", from), slog.Any("err", err))
		}
		return
	}
	if c.pending != nil && c.pending.peerID == from {
		c.preAccept[from] = append(c.preAccept[from], candidate)
		return
	}
	c.log.Debug("dropping candidate with no session", slog.String("from", from))
}

func (c *Coordinator) handleDeclined(from string) {
	c.mu.Lock()
	sess := c.sess
	if sess == nil || sess.peerID != from || sess.role != RoleCaller {
		c.log.Debug("dropping stray decline", slog.String("from", from))
		c.mu.Unlock()
		return
	}
	c.closeEngine(sess, "declined session")
	sess.state = StateDeclined
	c.sess = nil
	c.log.Info("call declined by peer", slog.String("peer", from))
	after := c.statusFn("Call declined by " + from)
	cb := c.cb.OnCallDeclined
	c.mu.Unlock()
	after()
	if cb != nil {
		cb(from)
	}
}

// eventsFor binds engine events to sess. Events that arrive after the session
// was replaced or torn down are ignored.
func (c *Coordinator) eventsFor(sess *session) EngineEvents {
	return EngineEvents{
		LocalCandidate: func(candidate json.RawMessage) {
			c.handleLocalCandidate(sess, candidate)
		},
		ConnectionState: func(state ConnState) {
			c.handleConnectionState(sess, state)
		},
		RemoteTrack: func(track RemoteTrack) {
			c.mu.Lock()
			current := c.sess == sess
			cb := c.cb.OnRemoteTrack
			c.mu.Unlock()
			if current && cb != nil {
				cb(track)
			}
		},
	}
}

func (c *Coordinator) handleLocalCandidate(sess *session, candidate json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != sess {
		return
	}
	if isEndOfCandidates(candidate) {
		c.log.Debug("local gathering complete", slog.String("peer", sess.peerID))
		return
	}
	err := c.sender.Send(signaling.Message{
		Type:   signaling.MessageTypeICECandidate,
		Target: sess.peerID,
		Data:   candidate,
	})
	if err != nil {
		c.log.Warn("send ice candidate", slog.String("peer", sess.peerID), slog.Any("err", err))
	}
}

func (c *Coordinator) handleConnectionState(sess *session, state ConnState) {
	c.mu.Lock()
	if c.sess != sess {
		c.mu.Unlock()
		return
	}
	c.log.Info("connection state",
		slog.String("peer", sess.peerID),
		slog.String("state", string(state)))

	after := func() {}
	switch state {
	case ConnStateConnected, ConnStateCompleted:
		sess.state = StateConnected
		after = c.statusFn("Connected to " + sess.peerID)
	case ConnStateDisconnected, ConnStateClosed:
		c.closeEngine(sess, "disconnected session")
		sess.state = StateClosed
		c.sess = nil
		after = c.statusFn("Call ended")
	case ConnStateFailed:
		c.closeEngine(sess, "failed session")
		sess.state = StateFailed
		c.sess = nil
		after = c.statusFn("Connection failed")
	}
	cb := c.cb.OnConnectionState
	c.mu.Unlock()
	after()
	if cb != nil {
		cb(state)
	}
}

// drainCandidatesLocked applies queued candidates in arrival order. Must be
// called with the remote description already installed.
func (c *Coordinator) drainCandidatesLocked(sess *session, queue []json.RawMessage) {
	for _, cand := range queue {
		if err := sess.engine.AddICECandidate(cand); err != nil {
			c.log.Warn("apply queued candidate",
				slog.String("peer", sess.peerID), slog.Any("err", err))
		}
	}
}

// discardSessionLocked closes and forgets the active session without firing
// callbacks.
func (c *Coordinator) discardSessionLocked() {
	if c.sess == nil {
		return
	}
	c.closeEngine(c.sess, "discarded session")
	c.sess.state = StateClosed
	c.sess = nil
}

func (c *Coordinator) failSessionLocked(sess *session, op string, err error) {
	c.log.Error(op, slog.String("peer", sess.peerID), slog.Any("err", err))
	c.closeEngine(sess, "failed session")
	sess.state = StateFailed
	if c.sess == sess {
		c.sess = nil
	}
}

func (c *Coordinator) closeEngine(sess *session, what string) {
	if sess.engine == nil {
		return
	}
	if err := sess.engine.Close(); err != nil {
		c.log.Warn("close "+what, slog.String("peer", sess.peerID), slog.Any("err", err))
	}
}

// statusFn captures a status-change notification to run after the lock is
// released.
func (c *Coordinator) statusFn(status string) func() {
	cb := c.cb.OnStatusChange
	if cb == nil {
		return func() {}
	}
	return func() { cb(status) }
}

func isEndOfCandidates(candidate json.RawMessage) bool {
	trimmed := bytes.TrimSpace(candidate)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
