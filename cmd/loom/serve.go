package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quillworks/loom/internal/config"
	"github.com/quillworks/loom/internal/engine"
	"github.com/quillworks/loom/internal/events"
	"github.com/quillworks/loom/internal/provider"
	"github.com/quillworks/loom/internal/server"
	"github.com/quillworks/loom/internal/store"
	"github.com/quillworks/loom/internal/store/postgres"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the loom server",
	// Override PersistentPreRunE so we don't create a client connection.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		dev, _ := cmd.Flags().GetBool("dev")

		// Dev mode runs without Postgres; the in-memory store stands in.
		if dev && os.Getenv("LOOM_DATABASE_URL") == "" {
			os.Setenv("LOOM_DATABASE_URL", "memory")
		}

		// Load configuration.
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		var st store.Store
		if dev {
			st = store.NewMemory()
			logger.Info("dev mode: using in-memory store")
		} else {
			st, err = postgres.New(cfg.DatabaseURL)
			if err != nil {
				return err
			}
		}

		// Create event publisher.
		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (LOOM_NATS_URL not set)")
		}
		broadcaster := server.NewBroadcaster(publisher)

		// Register providers.
		providers := provider.NewRegistry()
		if len(cfg.DevProviderModels) > 0 {
			providers.Register(provider.NewScripted("dev", cfg.DevProviderModels...))
			logger.Info("dev provider enabled", "models", cfg.DevProviderModels)
		}

		// Build the engine.
		engineOpts := []engine.Option{
			engine.WithGenerateTimeout(cfg.GenerateTimeout),
			engine.WithLogger(logger),
		}
		if cfg.ExportS3Bucket != "" {
			uploader, err := newS3Uploader(cfg)
			if err != nil {
				logger.Error("failed to create S3 uploader", "err", err)
			} else {
				engineOpts = append(engineOpts, engine.WithUploader(uploader))
				logger.Info("deliverable export enabled", "bucket", cfg.ExportS3Bucket, "prefix", cfg.ExportS3Prefix)
			}
		}
		eng := engine.New(st, providers, broadcaster, engineOpts...)

		// Create server and HTTP listener.
		srv := server.New(st, eng, broadcaster, providers, server.WithLogger(logger))
		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: srv.NewHTTPHandler(cfg.AuthToken),
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Start the control-signal subscriber if NATS is available.
		var controlCancel func()
		if cfg.NATSURL != "" {
			sub, err := events.NewNATSSubscriber(cfg.NATSURL)
			if err != nil {
				logger.Error("failed to create control subscriber", "err", err)
			} else {
				cancel, err := srv.StartControlListener(sub)
				if err != nil {
					logger.Error("failed to start control listener", "err", err)
					sub.Close()
				} else {
					controlCancel = func() {
						cancel()
						sub.Close()
					}
					logger.Info("control listener started")
				}
			}
		}

		logger.Info("loom server started", "http_addr", cfg.HTTPAddr)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown.
		if controlCancel != nil {
			controlCancel()
			logger.Info("control listener stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := broadcaster.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().Bool("dev", false, "run with the in-memory store instead of Postgres")
}
