package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/birbparty/firenest/internal/emulator"
	"github.com/birbparty/firenest/internal/telemetry"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func main() {
	// Load emulator configuration
	cfg, err := emulator.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	telemetryConfig := telemetry.NewConfigFromEnv("firenest-emulator")
	if err := telemetry.Init(telemetryConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize telemetry: %v\n", err)
		os.Exit(1)
	}
	log := telemetry.L()

	log.Infof("🐦 Firenest emulator starting (project: %s)...", cfg.ProjectID)
	if !cfg.RequireAuth {
		log.Warn("Document endpoints accept unauthenticated requests")
	}

	store := emulator.NewStore()
	authority := emulator.NewAuthority(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reaper := emulator.NewReaper(authority, emulator.LoadReaperConfig())
	if reaper.Enabled() {
		go reaper.Start(ctx)
	}

	app := emulator.NewApp(cfg, store, authority,
		telemetry.FiberMetricsMiddleware(),
		telemetry.FiberLoggingMiddleware(),
		cors.New(cors.Config{
			AllowOrigins: "*",
			AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
			AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		}),
	)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("🛑 Shutting down gracefully...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
		defer shutdownCancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.WithError(err).Error("Server forced to shutdown")
		}
	}()

	log.Infof("🚀 Firenest emulator listening on %s", cfg.Addr())
	if err := app.Listen(cfg.Addr()); err != nil {
		log.WithError(err).Error("Failed to start server")
	}

	telemetryCtx, telemetryCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer telemetryCancel()
	_ = telemetry.Shutdown(telemetryCtx)
}
