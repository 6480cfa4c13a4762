// Package json implements a Transport that appends transactions to a JSON Lines
// file, and the JSON export of stored transactions.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ArionMiles/txnotify/pkg/api"
)

// Writer appends one JSON row per transaction to a file.
type Writer struct {
	filePath string
	file     *os.File
	mu       sync.Mutex
	logger   *slog.Logger
}

// Config holds configuration for the JSON writer.
type Config struct {
	// FilePath is the path to the JSON Lines output file.
	FilePath string
}

// New creates a new JSON writer.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("json writer: file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o700); err != nil {
		return nil, fmt.Errorf("creating json directory: %w", err)
	}

	file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening json file: %w", err)
	}

	logger.Info("json writer initialized", "file", cfg.FilePath)
	return &Writer{
		filePath: cfg.FilePath,
		file:     file,
		logger:   logger,
	}, nil
}

// Send appends the batch, one line per transaction. It is all or nothing.
func (w *Writer) Send(_ context.Context, batch []*api.StoredTransaction) (int, error) {
	var buf []byte
	for _, t := range batch {
		line, err := json.Marshal(api.NewRow(t))
		if err != nil {
			return 0, fmt.Errorf("marshaling transaction %s: %w", t.ID, err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Write(buf); err != nil {
		return 0, fmt.Errorf("writing json lines: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return 0, fmt.Errorf("syncing json file: %w", err)
	}

	w.logger.Debug("wrote transactions to json", "count", len(batch))
	return len(batch), nil
}

// Close closes the JSON file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing json file: %w", err)
	}
	w.logger.Info("json writer closed", "file", w.filePath)
	return nil
}

// Export writes the transactions to out as an indented JSON array of stored records.
func Export(out io.Writer, txns []*api.StoredTransaction) error {
	if txns == nil {
		txns = []*api.StoredTransaction{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(txns); err != nil {
		return fmt.Errorf("encoding transactions: %w", err)
	}
	return nil
}
