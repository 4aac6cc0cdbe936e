package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func compactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compact OUTPUT_DIR",
		Short: "Pack saved transaction details into a compressed archive",
		Long: `Pack the per-transaction JSON files written by export --save-details
into a single zstd-compressed JSONL archive.

Each details/<id>.json becomes one line of
OUTPUT_DIR/details-<date>.jsonl.zst. Original JSON files are deleted
after the archive is fully written.

Examples:
  # Compact the details directory of an export run
  tr-hibiscus compact ./export`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return compactDetails(args[0])
		},
	}

	return cmd
}

func compactDetails(outputDir string) error {
	detailsDir := filepath.Join(outputDir, "details")

	entries, err := os.ReadDir(detailsDir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("no details directory, nothing to compact", zap.String("dir", detailsDir))
			return nil
		}
		return fmt.Errorf("reading details directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(detailsDir, entry.Name()))
	}
	sort.Strings(files)

	if len(files) == 0 {
		logger.Info("no detail files, nothing to compact", zap.String("dir", detailsDir))
		return nil
	}

	archivePath := filepath.Join(outputDir, fmt.Sprintf("details-%s.jsonl.zst", time.Now().Format("2006-01-02")))
	if _, err := os.Stat(archivePath); err == nil {
		return fmt.Errorf("archive already exists: %s", archivePath)
	}

	written, failed, err := writeArchive(archivePath, files)
	if err != nil {
		_ = os.Remove(archivePath)
		return err
	}

	// Delete originals only after the archive is fully flushed
	for _, path := range written {
		if err := os.Remove(path); err != nil {
			logger.Warn("failed to delete original", zap.String("file", path), zap.Error(err))
		}
	}

	logger.Info("compaction complete",
		zap.String("archive", archivePath),
		zap.Int("compacted", len(written)),
		zap.Int("failed", failed),
	)

	if failed > 0 {
		return fmt.Errorf("%d files failed to compact", failed)
	}

	return nil
}

// writeArchive streams every detail file as one compacted JSONL line into a
// zstd archive. Unreadable or invalid files are skipped and counted; only
// paths that made it into the archive are returned for deletion.
func writeArchive(archivePath string, files []string) (written []string, failed int, err error) {
	outFile, err := os.Create(archivePath)
	if err != nil {
		return nil, 0, fmt.Errorf("creating archive: %w", err)
	}
	defer func() { _ = outFile.Close() }()

	enc, err := zstd.NewWriter(outFile, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, 0, fmt.Errorf("create zstd encoder: %w", err)
	}

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Error("reading detail file", zap.String("file", path), zap.Error(err))
			failed++
			continue
		}

		// Compact to a single JSONL line
		var line bytes.Buffer
		if err := json.Compact(&line, data); err != nil {
			logger.Error("invalid JSON, skipping", zap.String("file", path), zap.Error(err))
			failed++
			continue
		}
		line.WriteByte('\n')

		logger.Debug("compacting", zap.String("file", path))

		if _, err := enc.Write(line.Bytes()); err != nil {
			_ = enc.Close()
			return nil, failed, fmt.Errorf("writing archive: %w", err)
		}

		written = append(written, path)
	}

	if err := enc.Close(); err != nil {
		return nil, failed, fmt.Errorf("flushing archive: %w", err)
	}

	return written, failed, nil
}
