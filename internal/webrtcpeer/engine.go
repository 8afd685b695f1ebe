package webrtcpeer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/vidwire/vidwire/internal/coordinator"
	"github.com/vidwire/vidwire/internal/signaling"
)

// Engine owns one PeerConnection and translates between the coordinator's
// opaque JSON payloads and pion's types.
type Engine struct {
	log *slog.Logger
	pc  *webrtc.PeerConnection

	close sync.Once
}

// NewEngine builds a PeerConnection wired to events. Local tracks are added
// at construction; with none configured, recvonly audio and video
// transceivers keep media sections in the offer so the remote side can still
// send.
func NewEngine(api *webrtc.API, iceServers []webrtc.ICEServer, tracks []webrtc.TrackLocal, events coordinator.EngineEvents, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	if api == nil {
		api = webrtc.NewAPI()
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	e := &Engine{log: log.With(slog.String("component", "webrtcpeer")), pc: pc}

	for _, track := range tracks {
		if _, err := pc.AddTrack(track); err != nil {
			pc.Close()
			return nil, fmt.Errorf("add track %s: %w", track.ID(), err)
		}
	}
	if len(tracks) == 0 {
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			_, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			})
			if err != nil {
				pc.Close()
				return nil, fmt.Errorf("add %s transceiver: %w", kind, err)
			}
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if events.LocalCandidate == nil {
			return
		}
		if c == nil {
			events.LocalCandidate(nil)
			return
		}
		payload, err := signaling.MarshalPayload(signaling.CandidateFromPion(c.ToJSON()))
		if err != nil {
			e.log.Warn("encode local candidate", slog.Any("err", err))
			return
		}
		events.LocalCandidate(payload)
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		e.log.Info("remote track",
			slog.String("kind", track.Kind().String()),
			slog.String("id", track.ID()))
		if events.RemoteTrack != nil {
			events.RemoteTrack(track)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if events.ConnectionState != nil {
			events.ConnectionState(coordinator.ConnState(state.String()))
		}
	})

	return e, nil
}

func (e *Engine) CreateOffer() (json.RawMessage, error) {
	offer, err := e.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := e.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return signaling.MarshalPayload(signaling.SDPFromPion(offer))
}

func (e *Engine) CreateAnswer() (json.RawMessage, error) {
	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := e.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return signaling.MarshalPayload(signaling.SDPFromPion(answer))
}

func (e *Engine) SetRemoteDescription(desc json.RawMessage) error {
	var sdp signaling.SDP
	if err := json.Unmarshal(desc, &sdp); err != nil {
		return fmt.Errorf("decode description: %w", err)
	}
	pionDesc, err := sdp.ToPion()
	if err != nil {
		return err
	}
	if err := e.pc.SetRemoteDescription(pionDesc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (e *Engine) AddICECandidate(candidate json.RawMessage) error {
	var cand signaling.Candidate
	if err := json.Unmarshal(candidate, &cand); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	if err := e.pc.AddICECandidate(cand.ToPion()); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

func (e *Engine) Close() error {
	var err error
	e.close.Do(func() {
		err = e.pc.Close()
	})
	return err
}

// Factory adapts NewEngine to the coordinator's EngineFactory shape, fixing
// the API, ICE servers, and local tracks for every session.
func Factory(api *webrtc.API, iceServers []webrtc.ICEServer, tracks []webrtc.TrackLocal, log *slog.Logger) coordinator.EngineFactory {
	return func(events coordinator.EngineEvents) (coordinator.MediaEngine, error) {
		return NewEngine(api, iceServers, tracks, events, log)
	}
}
