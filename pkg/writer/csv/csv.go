// Package csv implements a Transport that appends transactions to a CSV file,
// and the CSV export of stored transactions.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ArionMiles/txnotify/pkg/api"
)

// Writer appends transactions to a CSV file.
type Writer struct {
	filePath string
	file     *os.File
	writer   *csv.Writer
	mu       sync.Mutex
	logger   *slog.Logger
}

// Config holds configuration for the CSV writer.
type Config struct {
	// FilePath is the path to the CSV output file.
	FilePath string
}

// New creates a new CSV writer.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("csv writer: file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o700); err != nil {
		return nil, fmt.Errorf("creating csv directory: %w", err)
	}

	// Create or open file
	file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening csv file: %w", err)
	}

	w := &Writer{
		filePath: cfg.FilePath,
		file:     file,
		writer:   csv.NewWriter(file),
		logger:   logger,
	}

	// Write headers if file is new/empty
	stat, err := file.Stat()
	if err != nil {
		if closeErr := file.Close(); closeErr != nil {
			return nil, fmt.Errorf("stat csv file: %w (close error: %w)", err, closeErr)
		}
		return nil, fmt.Errorf("stat csv file: %w", err)
	}

	if stat.Size() == 0 {
		if err := writeHeaders(w.writer); err != nil {
			if closeErr := file.Close(); closeErr != nil {
				return nil, fmt.Errorf("writing headers: %w (close error: %w)", err, closeErr)
			}
			return nil, fmt.Errorf("writing headers: %w", err)
		}
	}

	logger.Info("csv writer initialized", "file", cfg.FilePath)
	return w, nil
}

func writeHeaders(w *csv.Writer) error {
	if err := w.Write(api.RowHeaders); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// record returns the CSV cells of txn in api.RowHeaders order.
func record(txn *api.StoredTransaction) []string {
	row := api.NewRow(txn)
	amount := ""
	if txn.Amount != nil {
		amount = txn.Amount.StringFixed(2)
	}
	return []string{row.Date, amount, api.Cell(row.Sender), api.Cell(row.Receiver), row.Category, row.RawText, row.ID}
}

// Send appends the batch and flushes it to disk. It is all or nothing.
func (w *Writer) Send(_ context.Context, batch []*api.StoredTransaction) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, t := range batch {
		if err := w.writer.Write(record(t)); err != nil {
			return 0, fmt.Errorf("writing csv record: %w", err)
		}
	}

	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return 0, fmt.Errorf("flushing csv: %w", err)
	}

	w.logger.Debug("wrote transactions to csv", "count", len(batch))
	return len(batch), nil
}

// Close closes the CSV file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.writer.Flush()
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing csv file: %w", err)
	}

	w.logger.Info("csv writer closed", "file", w.filePath)
	return nil
}

// Export writes a header row and one row per transaction to out.
func Export(out io.Writer, txns []*api.StoredTransaction) error {
	w := csv.NewWriter(out)
	if err := w.Write(api.RowHeaders); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, t := range txns {
		if err := w.Write(record(t)); err != nil {
			return fmt.Errorf("writing csv record: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
