// Package signaling defines the wire protocol spoken between call clients
// and the relay: a small JSON tagged union carried over a WebSocket.
//
// The relay never interprets offer/answer/candidate payloads; Data is opaque
// bytes produced and consumed by a Media Engine on either end.
package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

type MessageType string

const (
	MessageTypeRegister        MessageType = "register"
	MessageTypeRegisterSuccess MessageType = "register-success"
	MessageTypeRegisterFailed  MessageType = "register-failed"
	MessageTypeOffer           MessageType = "offer"
	MessageTypeAnswer          MessageType = "answer"
	MessageTypeICECandidate    MessageType = "ice-candidate"
	MessageTypeCallDeclined    MessageType = "call-declined"
)

// Message is the signaling envelope.
//
//   - Target names the peer a client wants the relay to deliver to.
//   - From is stamped by the relay with the sender's registered identity;
//     any client-supplied value is discarded before forwarding.
//   - Data carries the opaque session description or ICE candidate payload.
type Message struct {
	Type     MessageType     `json:"type"`
	Target   string          `json:"target,omitempty"`
	From     string          `json:"from,omitempty"`
	ClientID string          `json:"clientId,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// ParseMessage decodes a wire message strictly: unknown fields and trailing
// data are rejected, and per-type field requirements are enforced.
func ParseMessage(data []byte) (Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var msg Message
	if err := dec.Decode(&msg); err != nil {
		return Message{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Message{}, fmt.Errorf("unexpected trailing data")
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (m Message) Validate() error {
	switch m.Type {
	case MessageTypeRegister:
		// ClientID is optional; the relay generates an identity when absent.
		if m.Target != "" || m.Data != nil || m.Reason != "" {
			return fmt.Errorf("register message has unexpected fields")
		}
	case MessageTypeRegisterSuccess:
		if m.ClientID == "" {
			return fmt.Errorf("register-success message missing clientId")
		}
		if m.Target != "" || m.Data != nil || m.Reason != "" {
			return fmt.Errorf("register-success message has unexpected fields")
		}
	case MessageTypeRegisterFailed:
		if m.Reason == "" {
			return fmt.Errorf("register-failed message missing reason")
		}
		if m.Target != "" || m.ClientID != "" || m.Data != nil {
			return fmt.Errorf("register-failed message has unexpected fields")
		}
	case MessageTypeOffer, MessageTypeAnswer:
		if m.Target == "" && m.From == "" {
			return fmt.Errorf("%s message missing target", m.Type)
		}
		if len(m.Data) == 0 {
			return fmt.Errorf("%s message missing data", m.Type)
		}
		if m.ClientID != "" || m.Reason != "" {
			return fmt.Errorf("%s message has unexpected fields", m.Type)
		}
	case MessageTypeICECandidate:
		if m.Target == "" && m.From == "" {
			return fmt.Errorf("ice-candidate message missing target")
		}
		if m.ClientID != "" || m.Reason != "" {
			return fmt.Errorf("ice-candidate message has unexpected fields")
		}
	case MessageTypeCallDeclined:
		if m.Target == "" && m.From == "" {
			return fmt.Errorf("call-declined message missing target")
		}
		if m.ClientID != "" || m.Reason != "" || m.Data != nil {
			return fmt.Errorf("call-declined message has unexpected fields")
		}
	default:
		return fmt.Errorf("unsupported message type %q", m.Type)
	}
	return nil
}

// Encode marshals a message for the wire.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}
