package coordinator

import "encoding/json"

// ConnState mirrors the media engine's connection-state vocabulary (pion and
// the browser API use the same names).
type ConnState string

const (
	ConnStateNew          ConnState = "new"
	ConnStateConnecting   ConnState = "connecting"
	ConnStateConnected    ConnState = "connected"
	ConnStateCompleted    ConnState = "completed"
	ConnStateDisconnected ConnState = "disconnected"
	ConnStateFailed       ConnState = "failed"
	ConnStateClosed       ConnState = "closed"
)

// RemoteTrack is an opaque handle to inbound media, forwarded to the UI
// collaborator untouched. The pion engine passes *webrtc.TrackRemote.
type RemoteTrack any

// MediaEngine is the coordinator's view of one peer connection. Descriptions
// and candidates are opaque JSON payloads; the engine owns their meaning.
//
// Implementations deliver EngineEvents on their own goroutines, never
// synchronously from inside a MediaEngine method call.
type MediaEngine interface {
	// CreateOffer builds an offer, installs it as the local description, and
	// returns its wire payload.
	CreateOffer() (json.RawMessage, error)

	// CreateAnswer builds an answer to the current remote description,
	// installs it as the local description, and returns its wire payload.
	CreateAnswer() (json.RawMessage, error)

	SetRemoteDescription(desc json.RawMessage) error

	AddICECandidate(candidate json.RawMessage) error

	Close() error
}

// EngineEvents are the callbacks an engine implementation pushes into. All
// fields are set by the coordinator before the engine is used.
type EngineEvents struct {
	// LocalCandidate fires for each locally gathered ICE candidate. An empty
	// payload signals end of gathering.
	LocalCandidate func(candidate json.RawMessage)

	// ConnectionState fires on every peer-connection state transition.
	ConnectionState func(state ConnState)

	// RemoteTrack fires when inbound media becomes available.
	RemoteTrack func(track RemoteTrack)
}

// EngineFactory creates a fresh MediaEngine bound to the given event sinks.
// The coordinator calls it once per negotiation session.
type EngineFactory func(events EngineEvents) (MediaEngine, error)
