package coordinator

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/vidwire/vidwire/internal/signaling"
)

// fakeSender records outbound signaling messages.
type fakeSender struct {
	mu      sync.Mutex
	sent    []signaling.Message
	sendErr error
}

func (s *fakeSender) Send(msg signaling.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) messages() []signaling.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]signaling.Message, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *fakeSender) lastOfType(t signaling.MessageType) (signaling.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].Type == t {
			return s.sent[i], true
		}
	}
	return signaling.Message{}, false
}

// fakeEngine records every MediaEngine call in order in ops, so tests can
// assert that candidates are applied after the remote description and before
// the answer.
type fakeEngine struct {
	mu     sync.Mutex
	ops    []string
	closed bool

	offerErr     error
	answerErr    error
	setRemoteErr error
	candidateErr error
}

func (e *fakeEngine) CreateOffer() (json.RawMessage, error) {
	e.record("offer")
	if e.offerErr != nil {
		return nil, e.offerErr
	}
	return json.RawMessage(`{"type":"offer","sdp":"v=0 fake-offer"}`), nil
}

func (e *fakeEngine) CreateAnswer() (json.RawMessage, error) {
	e.record("answer")
	if e.answerErr != nil {
		return nil, e.answerErr
	}
	return json.RawMessage(`{"type":"answer","sdp":"v=0 fake-answer"}`), nil
}

func (e *fakeEngine) SetRemoteDescription(desc json.RawMessage) error {
	e.record("setRemote:" + string(desc))
	return e.setRemoteErr
}

func (e *fakeEngine) AddICECandidate(candidate json.RawMessage) error {
	e.record("candidate:" + string(candidate))
	return e.candidateErr
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ops = append(e.ops, "close")
	e.closed = true
	return nil
}

func (e *fakeEngine) record(op string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ops = append(e.ops, op)
}

func (e *fakeEngine) opLog() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.ops))
	copy(out, e.ops)
	return out
}

func (e *fakeEngine) appliedCandidates() []string {
	var out []string
	for _, op := range e.opLog() {
		if len(op) > len("candidate:") && op[:len("candidate:")] == "candidate:" {
			out = append(out, op[len("candidate:"):])
		}
	}
	return out
}

func (e *fakeEngine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// fakeFactory hands out fakeEngines and remembers each engine together with
// the EngineEvents the coordinator bound to it.
type fakeFactory struct {
	mu      sync.Mutex
	engines []*fakeEngine
	events  []EngineEvents
	err     error
}

func (f *fakeFactory) new(events EngineEvents) (MediaEngine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	e := &fakeEngine{}
	f.engines = append(f.engines, e)
	f.events = append(f.events, events)
	return e, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines)
}

func (f *fakeFactory) engine(i int) *fakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engines[i]
}

func (f *fakeFactory) eventsOf(i int) EngineEvents {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[i]
}

func candidatePayload(i int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"candidate":"candidate:%d 1 udp 2130706431 10.0.0.%d 54321 typ host","sdpMid":"0","sdpMLineIndex":0}`, i, i))
}
