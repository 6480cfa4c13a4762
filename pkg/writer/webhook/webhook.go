// Package webhook implements a Transport that posts each transaction as JSON to a
// spreadsheet web-app endpoint (for example a Google Apps Script deployment).
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go"

	"github.com/ArionMiles/txnotify/pkg/api"
)

// ErrNotConfigured is returned by Send when no endpoint is set. Records stay local.
var ErrNotConfigured = errors.New("ledger endpoint not configured")

// Default configuration values.
const (
	DefaultTimeout  = 15 * time.Second
	DefaultAttempts = 3
	DefaultDelay    = 2 * time.Second
)

// Config holds configuration for the webhook transport.
type Config struct {
	// Endpoint is the URL rows are POSTed to. Empty disables syncing.
	Endpoint string
	// Timeout bounds a single request. Defaults to DefaultTimeout.
	Timeout time.Duration
	// Attempts is the number of tries for rate-limited or failing requests.
	// Defaults to DefaultAttempts.
	Attempts uint
	// Delay is the base delay between retries. Defaults to DefaultDelay.
	Delay time.Duration
}

// Writer posts stored transactions to the configured endpoint.
type Writer struct {
	endpoint string
	client   *http.Client
	attempts uint
	delay    time.Duration
	logger   *slog.Logger
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ledger responded %s", e.Status)
}

// Retryable reports whether the request may succeed on a later attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// New creates a webhook transport. A nil httpClient uses a client with cfg.Timeout.
func New(cfg Config, httpClient *http.Client, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Writer{
		endpoint: cfg.Endpoint,
		client:   httpClient,
		attempts: cfg.Attempts,
		delay:    cfg.Delay,
		logger:   logger,
	}
}

// Configured reports whether an endpoint is set.
func (w *Writer) Configured() bool {
	return w.endpoint != ""
}

// Send posts the batch one row at a time, in order, and stops at the first failure.
func (w *Writer) Send(ctx context.Context, batch []*api.StoredTransaction) (int, error) {
	if !w.Configured() {
		return 0, ErrNotConfigured
	}

	for i, txn := range batch {
		if err := w.post(ctx, txn); err != nil {
			return i, fmt.Errorf("posting transaction %s: %w", txn.ID, err)
		}
	}

	w.logger.Debug("posted transactions to ledger", "count", len(batch))
	return len(batch), nil
}

func (w *Writer) post(ctx context.Context, txn *api.StoredTransaction) error {
	body, err := json.Marshal(api.NewRow(txn))
	if err != nil {
		return fmt.Errorf("marshaling row: %w", err)
	}

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("creating request: %w", err))
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := w.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				return &StatusError{Code: resp.StatusCode, Status: resp.Status}
			}
			return nil
		},
		retry.RetryIf(func(err error) bool {
			if !retry.IsRecoverable(err) {
				return false
			}
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				if statusErr.Retryable() {
					w.logger.Warn("ledger request failed, will retry", "id", txn.ID, "error", err)
					return true
				}
				return false
			}
			// Transport errors (timeouts, resets) are retried unless the context is done.
			return ctx.Err() == nil
		}),
		retry.Attempts(w.attempts),
		retry.Delay(w.delay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
}
