// Package buffered provides a buffered writer base for batch writes.
package buffered

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ArionMiles/txnotify/pkg/api"
)

// DefaultBatchSize is the default number of transactions to buffer before flushing.
const DefaultBatchSize = 10

// DefaultFlushInterval is the default interval between automatic flushes.
const DefaultFlushInterval = 30 * time.Second

// DefaultMaxBuffer bounds the transactions retained across failed flushes.
const DefaultMaxBuffer = 1000

// DefaultShutdownTimeout bounds the final flush after the context is cancelled.
const DefaultShutdownTimeout = 10 * time.Second

// Flusher is called when the buffer needs to be flushed. It returns how many
// leading transactions were written; the rest stay buffered for the next flush.
type Flusher func(ctx context.Context, transactions []*api.StoredTransaction) (int, error)

// Config holds configuration for buffered writing.
type Config struct {
	// BatchSize is the number of transactions to buffer before flushing.
	// Defaults to DefaultBatchSize.
	BatchSize int
	// FlushInterval is the interval between automatic flushes.
	// Defaults to DefaultFlushInterval.
	FlushInterval time.Duration
	// MaxBuffer caps the buffer; the oldest transactions are dropped beyond it.
	// Defaults to DefaultMaxBuffer.
	MaxBuffer int
	// ShutdownTimeout bounds the flush on context cancellation.
	// Defaults to DefaultShutdownTimeout.
	ShutdownTimeout time.Duration
}

// Writer buffers transactions and flushes them in batches.
type Writer struct {
	buffer  []*api.StoredTransaction
	mu      sync.Mutex
	flusher Flusher
	config  Config
	logger  *slog.Logger
}

// New creates a new buffered writer with the given flusher function.
func New(flusher Flusher, cfg Config, logger *slog.Logger) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.MaxBuffer < cfg.BatchSize {
		cfg.MaxBuffer = max(DefaultMaxBuffer, cfg.BatchSize)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Writer{
		buffer:  make([]*api.StoredTransaction, 0, cfg.BatchSize),
		flusher: flusher,
		config:  cfg,
		logger:  logger,
	}
}

// Seed adds transactions to the buffer without flushing, e.g. records left
// unsynced by a previous run.
func (w *Writer) Seed(transactions ...*api.StoredTransaction) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buffer = append(w.buffer, transactions...)
	w.trimLocked()
}

// Write consumes transactions from the input channel and buffers them for batch writes.
// It returns when in is closed (after a final flush) or when ctx is cancelled
// (after a final flush bounded by ShutdownTimeout).
func (w *Writer) Write(ctx context.Context, in <-chan *api.StoredTransaction) error {
	ticker := time.NewTicker(w.config.FlushInterval)
	defer ticker.Stop()

	w.logger.Info("buffered writer started",
		"batch_size", w.config.BatchSize,
		"flush_interval", w.config.FlushInterval,
		"seeded", w.BufferLen(),
	)

	if w.BufferLen() >= w.config.BatchSize {
		w.handleTimerFlush(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return w.handleShutdown(ctx)
		case <-ticker.C:
			w.handleTimerFlush(ctx)
		case transaction, ok := <-in:
			if done, err := w.handleTransaction(ctx, transaction, ok); done {
				return err
			}
		}
	}
}

func (w *Writer) handleShutdown(ctx context.Context) error {
	w.logger.Info("buffered writer stopping, flushing remaining buffer")

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.config.ShutdownTimeout)
	defer cancel()

	if err := w.flush(flushCtx); err != nil {
		w.logger.Error("failed to flush on shutdown", "error", err, "unflushed", w.BufferLen())
	}
	return ctx.Err()
}

func (w *Writer) handleTimerFlush(ctx context.Context) {
	if err := w.flush(ctx); err != nil {
		w.logger.Error("failed to flush on interval", "error", err)
	}
}

func (w *Writer) handleTransaction(ctx context.Context, transaction *api.StoredTransaction, ok bool) (bool, error) {
	if !ok {
		w.logger.Info("input channel closed, flushing remaining buffer")
		if err := w.flush(ctx); err != nil {
			w.logger.Error("failed to flush on close", "error", err)
			return true, err
		}
		return true, nil
	}

	w.mu.Lock()
	w.buffer = append(w.buffer, transaction)
	w.trimLocked()
	shouldFlush := len(w.buffer) >= w.config.BatchSize
	w.mu.Unlock()

	if shouldFlush {
		if err := w.flush(ctx); err != nil {
			w.logger.Error("failed to flush on batch size", "error", err)
		}
	}
	return false, nil
}

// flush writes all buffered transactions using the flusher function. Transactions
// the flusher did not write are put back in front of anything buffered meanwhile.
func (w *Writer) flush(ctx context.Context) error {
	w.mu.Lock()
	if len(w.buffer) == 0 {
		w.mu.Unlock()
		return nil
	}

	// Copy buffer and reset
	toFlush := make([]*api.StoredTransaction, len(w.buffer))
	copy(toFlush, w.buffer)
	w.buffer = w.buffer[:0]
	w.mu.Unlock()

	w.logger.Debug("flushing buffer", "count", len(toFlush))

	n, err := w.flusher(ctx, toFlush)
	n = min(max(n, 0), len(toFlush))

	if n < len(toFlush) {
		w.mu.Lock()
		w.buffer = append(toFlush[n:len(toFlush):len(toFlush)], w.buffer...)
		w.trimLocked()
		w.mu.Unlock()
	}

	if n > 0 {
		w.logger.Info("flushed transactions", "count", n)
	}
	return err
}

// trimLocked drops the oldest buffered transactions beyond MaxBuffer.
// Callers must hold w.mu.
func (w *Writer) trimLocked() {
	if over := len(w.buffer) - w.config.MaxBuffer; over > 0 {
		w.logger.Warn("buffer full, dropping oldest transactions",
			"dropped", over,
			"max_buffer", w.config.MaxBuffer,
		)
		w.buffer = append(w.buffer[:0:0], w.buffer[over:]...)
	}
}

// BufferLen returns the current number of buffered transactions.
func (w *Writer) BufferLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}
