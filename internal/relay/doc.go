// Package relay implements the signaling relay: it accepts WebSocket
// connections from call clients, registers each under a unique peer
// identity, and forwards offer/answer/candidate/decline messages to their
// stated target with the sender's true identity stamped on.
//
// The relay treats session descriptions and ICE candidates as opaque bytes.
// Undeliverable messages are dropped (logged and counted, never surfaced to
// the sender); call content never touches this process.
package relay
