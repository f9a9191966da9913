// Command restructure-migrate-offsets is a one-shot helper that reads a
// legacy flat offsets.csv (grounded on the original implementation's
// OffsetRangeFile line format: offsetFrom,offsetTo,topic,partition for
// every topic in one file) and writes the per-topic files the Offset
// Store now expects.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/radarbase/restructure/internal/logging"
	"github.com/radarbase/restructure/internal/objectstore"
	"github.com/radarbase/restructure/internal/offsetrange"
	"github.com/radarbase/restructure/internal/offsetstore"
)

func main() {
	var legacyFile, outputDir string

	cmd := &cobra.Command{
		Use:   "restructure-migrate-offsets",
		Short: "Split a legacy flat offsets.csv into per-topic offset files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), legacyFile, outputDir)
		},
	}
	cmd.Flags().StringVar(&legacyFile, "legacy-file", "", "path to the legacy flat offsets.csv (required)")
	cmd.Flags().StringVar(&outputDir, "output-directory", "", "directory to write per-topic offset files to (required)")
	cmd.MarkFlagRequired("legacy-file")
	cmd.MarkFlagRequired("output-directory")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, legacyFile, outputDir string) error {
	f, err := os.Open(legacyFile)
	if err != nil {
		return fmt.Errorf("migrate-offsets: open %s: %w", legacyFile, err)
	}
	defer f.Close()

	all, err := offsetrange.ReadCSV(f)
	if err != nil {
		return fmt.Errorf("migrate-offsets: parse %s: %w", legacyFile, err)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("migrate-offsets: create %s: %w", outputDir, err)
	}

	store, err := objectstore.Open(ctx, objectstore.Config{Type: "local", Dir: outputDir})
	if err != nil {
		return fmt.Errorf("migrate-offsets: open output store: %w", err)
	}
	defer store.Close()

	log := logging.Setup(logging.Config{Format: "text", Level: "info"})
	backend := offsetstore.NewFileBackend(store, ".")

	byTopic := make(map[string]*offsetrange.Set)
	for _, tp := range all.Partitions() {
		set, ok := byTopic[tp.Topic]
		if !ok {
			set = offsetrange.NewSet()
			byTopic[tp.Topic] = set
		}
		set.AddAll(tp, all.Ranges(tp))
	}

	for topic, set := range byTopic {
		if err := backend.Save(topic, set); err != nil {
			return fmt.Errorf("migrate-offsets: write %s: %w", topic, err)
		}
		log.Info("migrated topic offsets", "topic", topic, "partitions", len(set.Partitions()))
	}

	log.Info("migration complete", "topics", len(byTopic))
	return nil
}
