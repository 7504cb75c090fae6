package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/schedule"
	"github.com/kozaktomas/face-attendance/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance API server",
	Long: `Start the Face Attendance HTTP API.

On startup the gallery is built from every enrolled face photo. With
--warm-start the cached embeddings stored next to each photo are loaded instead,
falling back to a full rebuild when any photo has not been embedded yet.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().Bool("warm-start", false, "Load the gallery from cached embeddings (overrides GALLERY_WARM_START)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Server.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Server.Host = host
	}
	if mustGetBool(cmd, "warm-start") {
		cfg.Gallery.WarmStart = true
	}

	tokens, err := newTokenIssuer(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	svc, err := buildServices(cfg, b, registry)
	if err != nil {
		return err
	}

	if err := svc.embedder.Health(ctx); err != nil {
		slog.Warn("embedding server is not reachable, gallery build may fail", "url", cfg.Embedding.URL, "error", err)
	}

	start := time.Now()
	if cfg.Gallery.WarmStart {
		_, err = svc.pipeline.WarmStart(ctx)
	} else {
		_, err = svc.pipeline.Rebuild(ctx)
	}
	if err != nil {
		// Serving with an empty gallery still lets students enroll.
		slog.Error("initial gallery build failed", "error", err)
	} else {
		stats := svc.gallery.Stats()
		slog.Info("gallery ready",
			"entries", stats.Entries,
			"identities", stats.Identities,
			"warm_start", cfg.Gallery.WarmStart,
			"duration", time.Since(start).Round(time.Millisecond))
	}

	if cfg.Gallery.RefreshInterval > 0 {
		refresher, err := schedule.NewRefresher(svc.pipeline, cfg.Gallery.RefreshInterval, slog.Default())
		if err != nil {
			return err
		}
		refresher.Start()
		defer refresher.Stop()
		slog.Info("periodic gallery refresh enabled", "interval", cfg.Gallery.RefreshInterval)
	}

	server := web.NewServer(cfg, web.Deps{
		Enroller:   svc.pipeline,
		Recognizer: svc.recognizer,
		History:    svc.ledger,
		Rebuilder:  svc.pipeline,
		Gallery:    svc.gallery,
		Students:   b.students,
		Teachers:   b.teachers,
		Tokens:     tokens,
		Registry:   registry,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Attendance API on http://%s\n", cfg.Server.Addr())
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
