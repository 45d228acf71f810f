// Package archive exports historical dispatch records as zstd-compressed
// JSONL, one dispatch per line. Exports keep the dispatches table small
// without losing the send history an operator may need for disputes.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"revenda/internal/types"
)

// defaultBatchSize is the keyset page size used when walking history.
const defaultBatchSize = 1000

// DispatchLister is the dispatch repository subset the exporter reads.
type DispatchLister interface {
	ListOlderThan(ctx context.Context, orgID string, cutoff time.Time, afterID string, limit int) ([]types.DispatchRecord, error)
}

// Exporter streams old dispatch records into a compressed JSONL archive.
type Exporter struct {
	dispatches DispatchLister
	batchSize  int
	logger     *slog.Logger
}

// NewExporter creates an Exporter.
func NewExporter(dispatches DispatchLister, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		dispatches: dispatches,
		batchSize:  defaultBatchSize,
		logger:     logger,
	}
}

// Export writes every dispatch of the tenant created before the cutoff to
// w as zstd-compressed JSONL and returns the number of records written.
// The write is streaming; memory stays bounded by the batch size.
func (e *Exporter) Export(ctx context.Context, orgID string, cutoff time.Time, w io.Writer) (int, error) {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("archive: failed to create zstd writer: %w", err)
	}

	total := 0
	afterID := ""
	jsonEnc := json.NewEncoder(enc)

	for {
		select {
		case <-ctx.Done():
			enc.Close()
			return total, ctx.Err()
		default:
		}

		records, err := e.dispatches.ListOlderThan(ctx, orgID, cutoff, afterID, e.batchSize)
		if err != nil {
			enc.Close()
			return total, err
		}
		if len(records) == 0 {
			break
		}

		for i := range records {
			if err := jsonEnc.Encode(&records[i]); err != nil {
				enc.Close()
				return total, fmt.Errorf("archive: failed to encode dispatch %s: %w", records[i].ID, err)
			}
			total++
		}

		if len(records) < e.batchSize {
			break
		}
		afterID = records[len(records)-1].ID
	}

	if err := enc.Close(); err != nil {
		return total, fmt.Errorf("archive: failed to finalize zstd stream: %w", err)
	}

	e.logger.InfoContext(ctx, "dispatch history exported",
		slog.String("organization_id", orgID),
		slog.Time("cutoff", cutoff),
		slog.Int("records", total),
	)

	return total, nil
}

// ExportToFile runs Export into a file named
// dispatches-<org>-<cutoff>.jsonl.zst under dir. A failed or empty export
// leaves no file behind.
func (e *Exporter) ExportToFile(ctx context.Context, orgID string, cutoff time.Time, dir string) (string, int, error) {
	name := fmt.Sprintf("dispatches-%s-%s.jsonl.zst", orgID, cutoff.UTC().Format("2006-01-02"))
	path := filepath.Join(dir, name)

	f, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return "", 0, fmt.Errorf("archive: failed to create export file: %w", err)
	}

	count, err := e.Export(ctx, orgID, cutoff, f)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil || count == 0 {
		os.Remove(f.Name())
		return "", count, err
	}

	if err := os.Rename(f.Name(), path); err != nil {
		os.Remove(f.Name())
		return "", count, fmt.Errorf("archive: failed to finalize export file: %w", err)
	}

	return path, count, nil
}
