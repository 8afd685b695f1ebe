package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/vidwire/vidwire/internal/auth"
	"github.com/vidwire/vidwire/internal/config"
	"github.com/vidwire/vidwire/internal/httpserver"
	"github.com/vidwire/vidwire/internal/metrics"
	"github.com/vidwire/vidwire/internal/relay"
	"github.com/vidwire/vidwire/internal/turnrest"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildVersion = ""
	buildCommit  = ""
	buildTime    = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting vidwire-signal",
		"signal_listen_addr", cfg.SignalListenAddr,
		"web_listen_addr", cfg.WebListenAddr,
		"mode", cfg.Mode,
		"use_tls", cfg.UseTLS,
		"auth_mode", cfg.AuthMode,
		"signaling_url", cfg.SignalingURL(),
		"static_dir", cfg.StaticDir,
	)
	logStartupSecurityWarnings(logger, cfg)

	verifier, err := auth.NewVerifier(cfg)
	if err != nil {
		logger.Error("failed to configure auth", "err", err)
		os.Exit(2)
	}

	m := metrics.New()
	relaySrv := relay.NewServer(relay.Config{
		Logger:               logger,
		Metrics:              m,
		Verifier:             verifier,
		MaxMessageBytes:      cfg.MaxSignalingMessageBytes,
		MaxMessagesPerSecond: cfg.MaxSignalingMessagesPerSecond,
		IdleTimeout:          cfg.SignalingWSIdleTimeout,
		PingInterval:         cfg.SignalingWSPingInterval,
	})

	signalLn, err := net.Listen("tcp", cfg.SignalListenAddr)
	if err != nil {
		logger.Error("failed to listen for signaling", "err", err)
		os.Exit(1)
	}
	webLn, err := net.Listen("tcp", cfg.WebListenAddr)
	if err != nil {
		logger.Error("failed to listen for web", "err", err)
		os.Exit(1)
	}

	var turnGen *turnrest.Generator
	if cfg.TURNSecret != "" {
		turnGen, err = turnrest.NewGenerator(turnrest.Config{
			SharedSecret: cfg.TURNSecret,
			TTL:          cfg.TURNCredentialTTL,
		})
		if err != nil {
			logger.Error("failed to configure turn credentials", "err", err)
			os.Exit(2)
		}
	}

	webSrv := httpserver.New(cfg, logger, resolveBuildInfo(), m, turnGen)

	signalHTTP := &http.Server{Handler: relaySrv}
	errCh := make(chan error, 2)
	go func() {
		logger.Info("signaling server serving", "addr", signalLn.Addr().String(), "tls", cfg.UseTLS)
		if cfg.UseTLS {
			errCh <- signalHTTP.ServeTLS(signalLn, cfg.TLSCertFile, cfg.TLSKeyFile)
			return
		}
		errCh <- signalHTTP.Serve(signalLn)
	}()
	go func() {
		errCh <- webSrv.Serve(webLn)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := webSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("web server shutdown failed", "err", err)
	}
	if err := signalHTTP.Shutdown(shutdownCtx); err != nil {
		logger.Error("signaling server shutdown failed", "err", err)
	}

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server exited after shutdown", "err", err)
			os.Exit(1)
		}
	}
}

func resolveBuildInfo() httpserver.BuildInfo {
	build := httpserver.BuildInfo{
		Version:   buildVersion,
		Commit:    buildCommit,
		BuildTime: buildTime,
	}
	// Prefer ldflags-injected values (production builds) but fall back to the
	// Go build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		if build.Version == "" {
			build.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if build.Commit == "" {
					build.Commit = s.Value
				}
			case "vcs.time":
				if build.BuildTime == "" {
					build.BuildTime = s.Value
				}
			}
		}
	}
	return build
}
