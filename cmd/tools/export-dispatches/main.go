// Command export-dispatches writes a tenant's dispatch history older than
// a cutoff date to a zstd-compressed JSONL archive. Run it before pruning
// the dispatches table.
//
// Usage:
//
//	export-dispatches -org org_123 -before 2026-01-01 -dir ./archives
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"revenda/internal/archive"
	"revenda/internal/config"
	"revenda/internal/db"
)

func main() {
	orgID := flag.String("org", "", "organization id to export (required)")
	before := flag.String("before", "", "cutoff date YYYY-MM-DD; dispatches created before it are exported (required)")
	dir := flag.String("dir", ".", "output directory")
	flag.Parse()

	if err := run(*orgID, *before, *dir); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(orgID, before, dir string) error {
	if orgID == "" || before == "" {
		flag.Usage()
		return fmt.Errorf("-org and -before are required")
	}

	cutoff, err := time.ParseInLocation("2006-01-02", before, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid -before date (want YYYY-MM-DD): %w", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	exporter := archive.NewExporter(db.NewDispatchRepo(pool, logger), logger)

	path, count, err := exporter.ExportToFile(ctx, orgID, cutoff, dir)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if count == 0 {
		fmt.Println("no dispatches older than the cutoff; nothing written")
		return nil
	}

	fmt.Printf("exported %d dispatches to %s\n", count, path)
	return nil
}
