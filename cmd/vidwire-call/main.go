// vidwire-call is a headless signaling client: it registers with the relay,
// places or answers calls, and drives a pion peer connection through the full
// negotiation. Useful for smoke-testing a deployment without a browser.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pion/webrtc/v4"

	"github.com/vidwire/vidwire/internal/coordinator"
	"github.com/vidwire/vidwire/internal/signalclient"
	"github.com/vidwire/vidwire/internal/signaling"
	"github.com/vidwire/vidwire/internal/webrtcpeer"
)

func main() {
	var (
		signalURL  = flag.String("signal-url", "ws://127.0.0.1:3001", "signaling relay websocket URL")
		clientID   = flag.String("id", "", "peer id to register (empty: generated)")
		callPeer   = flag.String("call", "", "peer id to call after registering")
		autoAccept = flag.Bool("auto-accept", false, "accept incoming calls automatically")
		apiKey     = flag.String("api-key", "", "API key when the relay requires auth")
		stunURLs   = flag.String("stun-urls", "stun:stun.l.google.com:19302", "comma-separated STUN server URLs")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(logger, *signalURL, *clientID, *callPeer, *autoAccept, *apiKey, *stunURLs); err != nil {
		logger.Error("vidwire-call failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, signalURL, clientID, callPeer string, autoAccept bool, apiKey, stunURLs string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var iceServers []webrtc.ICEServer
	for _, u := range strings.Split(stunURLs, ",") {
		if u = strings.TrimSpace(u); u != "" {
			iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{u}})
		}
	}

	api := webrtcpeer.NewAPI(logger)
	factory := webrtcpeer.Factory(api, iceServers, nil, logger)

	// The read pump starts before the coordinator exists, so inbound messages
	// go through a channel and are dispatched once it does.
	msgs := make(chan signaling.Message, 64)
	client, err := signalclient.Dial(ctx, signalclient.Config{
		URL:      signalURL,
		ClientID: clientID,
		APIKey:   apiKey,
		Logger:   logger,
	}, func(msg signaling.Message) {
		msgs <- msg
	})
	if err != nil {
		return err
	}
	defer client.Close()

	var coord *coordinator.Coordinator
	coord = coordinator.New(logger, client, factory, coordinator.Callbacks{
		OnStatusChange: func(status string) {
			fmt.Println(status)
		},
		OnIncomingCall: func(peerID string) {
			if !autoAccept {
				logger.Info("ignoring incoming call (run with -auto-accept)", "peer", peerID)
				return
			}
			if err := coord.Accept(); err != nil {
				logger.Error("accept failed", "peer", peerID, "err", err)
			}
		},
		OnCallDeclined: func(peerID string) {
			logger.Info("call declined", "peer", peerID)
		},
		OnConnectionState: func(state coordinator.ConnState) {
			logger.Info("connection state", "state", state)
		},
		OnRemoteTrack: func(track coordinator.RemoteTrack) {
			if t, ok := track.(*webrtc.TrackRemote); ok {
				logger.Info("remote track", "kind", t.Kind().String(), "id", t.ID())
			}
		},
	})

	go func() {
		for {
			select {
			case msg := <-msgs:
				coord.HandleSignal(msg)
			case <-client.Done():
				return
			}
		}
	}()

	logger.Info("registered", "client_id", client.ClientID())

	if callPeer != "" {
		if err := coord.Call(callPeer); err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case <-client.Done():
		logger.Info("relay connection closed")
	}
	coord.Hangup()
	return nil
}
