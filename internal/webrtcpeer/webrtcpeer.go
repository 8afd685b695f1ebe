// Package webrtcpeer runs the pion peer connection behind the negotiation
// coordinator's MediaEngine interface.
package webrtcpeer

import (
	"log/slog"

	"github.com/pion/webrtc/v4"
)

// NewAPI builds the shared pion API: one per process, reused by every
// Engine.
func NewAPI(log *slog.Logger) *webrtc.API {
	se := webrtc.SettingEngine{}
	se.LoggerFactory = newPionLoggerFactory(log)
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
}
