package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Re-embed every enrolled photo",
	Long: `Re-embed every enrolled face photo and refresh the cached embeddings.

Run this after photos were added or replaced directly in FACES_DIR, or after
switching the embedding model, so that "serve --warm-start" loads a gallery
that matches the files on disk.`,
	Args: cobra.NoArgs,
	RunE: runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	svc, err := buildServices(cfg, b, nil)
	if err != nil {
		return err
	}

	fmt.Printf("Rebuilding gallery from %s using %s...\n", cfg.Gallery.FacesDir, cfg.Embedding.URL)
	start := time.Now()
	snap, err := svc.pipeline.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("rebuild gallery: %w", err)
	}

	stats := snap.Stats()
	fmt.Printf("Gallery rebuilt in %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("  Faces:    %d\n", stats.Entries)
	fmt.Printf("  Students: %d\n", stats.Identities)
	return nil
}
