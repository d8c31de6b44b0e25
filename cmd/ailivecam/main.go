// Package main starts the live camera object detection server
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/JayjayR89/ai-live-cam/internal/api"
	"github.com/JayjayR89/ai-live-cam/internal/camera"
	"github.com/JayjayR89/ai-live-cam/internal/config"
	"github.com/JayjayR89/ai-live-cam/internal/core"
	"github.com/JayjayR89/ai-live-cam/internal/detection"
	"github.com/JayjayR89/ai-live-cam/internal/livecam"
	"github.com/JayjayR89/ai-live-cam/internal/logging"
	"github.com/JayjayR89/ai-live-cam/internal/metrics"
	"github.com/JayjayR89/ai-live-cam/internal/notify"
)

const version = "0.1.0"

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		slog.Warn("Failed to load .env", "error", err)
	}

	configPath := config.FindConfigFile()
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", configPath, "error", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()
	snap := cfg.Snapshot()

	// Initialize structured logging
	logger, logBuffer, logLevel := logging.Setup(logging.Options{
		Level:      snap.Logging.Level,
		Format:     snap.Logging.Format,
		Output:     os.Stdout,
		BufferSize: 1000,
	})
	slog.SetDefault(logger)

	slog.Info("Starting AI Live Cam", "version", version, "config_path", configPath)

	// Create application context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cfg.Watch(); err != nil {
		slog.Warn("Config hot reload disabled", "error", err)
	}
	defer cfg.StopWatching()

	// Initialize embedded NATS event bus
	bus, err := core.NewEventBus(core.EventBusConfig{
		Host: snap.Events.Host,
		Port: snap.Events.Port,
	}, logger)
	if err != nil {
		slog.Error("Failed to create event bus", "error", err)
		os.Exit(1)
	}
	defer bus.Stop()

	// Start the embedded model server when no external one is configured
	modelAddr := snap.Model.Address
	if snap.Model.Embedded.Enabled {
		embedded := detection.NewEmbeddedServer(detection.EmbeddedServerConfig{
			Port:        snap.Model.Embedded.Port,
			Logger:      logger,
			Predictions: snap.Model.EmbeddedPredictions(),
		})
		if err := embedded.Start(ctx); err != nil {
			slog.Error("Failed to start embedded model server", "error", err)
			os.Exit(1)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			_ = embedded.Stop(stopCtx)
		}()
		modelAddr = embedded.Address()
		slog.Info("Embedded model server started", "address", modelAddr)
	}

	modelClient, err := detection.NewClient(detection.ClientConfig{
		Address: modelAddr,
		Timeout: time.Duration(snap.Model.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		slog.Error("Failed to create model client", "error", err)
		os.Exit(1)
	}
	frames := detection.NewGo2RTCFrameGrabber(snap.Go2RTC.Address)

	m := metrics.New()

	// Websocket hub
	hub := api.NewHub()
	hub.SetMetrics(m)
	go hub.Run(ctx)
	broadcaster := api.NewHubBroadcaster(hub)

	// Notifications
	platform := notify.NewClientPlatform(broadcaster,
		time.Duration(snap.Notifications.PermissionTimeoutSeconds)*time.Second)
	notifier := notify.New(notify.Config{
		Platform:     platform,
		Registration: notify.NewBusRegistration(bus),
		Origin:       snap.Notifications.Origin,
		Logger:       logger,
	})

	var installOnce sync.Once
	hub.OnPermission(func(perm notify.Permission) {
		platform.SetPermission(perm)
		slog.Info("Notification permission reported", "permission", perm)
		if perm == notify.PermissionGranted && cfg.Snapshot().Notifications.InstallPrompt {
			installOnce.Do(func() {
				go notifier.NotifyInstallPrompt(ctx)
			})
		}
	})

	// Detection service
	live := livecam.New(livecam.Config{
		Config:   cfg,
		Loader:   modelClient,
		Frames:   frames,
		Notifier: notifier,
		Hub:      broadcaster,
		Bus:      bus,
		Metrics:  m,
		Logger:   logger,
	})
	defer live.Close()

	// Camera preview shell
	shell := camera.NewShell(camera.ShellConfig{
		Config:    cfg,
		Streams:   camera.NewGo2RTCStreams(snap.Go2RTC.Address),
		Detection: live,
		Logger:    logger,
	})
	shell.OnChange(func(state camera.ShellState) {
		hub.Broadcast(api.CameraStateMessage(state))
	})
	if err := shell.Start(ctx); err != nil {
		slog.Error("Failed to start camera shell", "error", err)
		os.Exit(1)
	}
	defer shell.Stop()
	live.Start()

	cfg.OnChange(func(c *config.Config) {
		logLevel.Set(logging.ParseLevel(c.Snapshot().Logging.Level))
		live.OnConfigChange(c)
		shell.SyncFromConfig()
		if err := bus.PublishConfigChanged(c.GetPath()); err != nil {
			slog.Warn("Failed to publish config change", "error", err)
		}
	})

	forwarder := api.NewForwarder(bus, hub, logger)
	if err := forwarder.Start(); err != nil {
		slog.Error("Failed to start event forwarder", "error", err)
		os.Exit(1)
	}
	defer forwarder.Stop()

	webPath := os.Getenv("WEB_PATH")
	if webPath == "" {
		webPath = "./web/dist"
	}

	router := api.NewRouter(api.RouterConfig{
		Config:   cfg,
		Shell:    shell,
		Live:     live,
		Hub:      hub,
		Notifier: notifier,
		Platform: platform,
		Logs:     logBuffer,
		Metrics:  m,
		Bus:      bus,
		WebPath:  webPath,
	})

	addr := fmt.Sprintf("%s:%d", snap.Server.Host, snap.Server.Port)

	// MJPEG and SSE responses stay open, so there is no write timeout. They
	// end when the application context is cancelled.
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("Server starting", "address", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			cancel()
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	slog.Info("Shutting down server...")
	_ = bus.Publish(core.SubjectSystemShutdown, map[string]string{"reason": "signal"})
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown error", "error", err)
	}

	slog.Info("Server stopped")
}
