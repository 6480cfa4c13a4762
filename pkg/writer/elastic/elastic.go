// Package elastic implements a Transport that indexes transactions into Elasticsearch.
// Documents are keyed by the transaction ID, so resending a batch is idempotent.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	"github.com/ArionMiles/txnotify/pkg/api"
)

// Default configuration values.
const (
	DefaultIndex      = "txnotify"
	DefaultMaxRetries = 5
)

// Config holds configuration for the Elasticsearch writer.
type Config struct {
	// Addresses are the cluster URLs. Defaults to http://localhost:9200.
	Addresses []string
	// Index receives the documents. Defaults to DefaultIndex.
	Index string
	// MaxRetries bounds client retries on 429 and 502-504. Defaults to DefaultMaxRetries.
	MaxRetries int
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Writer indexes stored transactions.
type Writer struct {
	client *elasticsearch.Client
	index  string
	logger *slog.Logger
}

// New creates the client and makes sure the index exists.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Addresses) == 0 {
		cfg.Addresses = []string{"http://localhost:9200"}
	}
	if cfg.Index == "" {
		cfg.Index = DefaultIndex
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	retryBackoff := backoff.NewExponentialBackOff()
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Transport: cfg.Transport,

		// Retry on 429 TooManyRequests statuses
		RetryOnStatus: []int{502, 503, 504, 429},

		RetryBackoff: func(i int) time.Duration {
			if i == 1 {
				retryBackoff.Reset()
			}
			return retryBackoff.NextBackOff()
		},

		MaxRetries: cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}

	w := &Writer{client: es, index: cfg.Index, logger: logger}
	if err := w.ensureIndex(ctx); err != nil {
		return nil, err
	}

	logger.Info("elasticsearch writer initialized", "addresses", cfg.Addresses, "index", cfg.Index)
	return w, nil
}

func (w *Writer) ensureIndex(ctx context.Context) error {
	res, err := w.client.Indices.Exists([]string{w.index}, w.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("checking index %s: %w", w.index, err)
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("checking index %s: %s", w.index, res.Status())
	}

	res, err = w.client.Indices.Create(w.index, w.client.Indices.Create.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("creating index %s: %w", w.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("creating index %s: %s", w.index, res.String())
	}

	w.logger.Info("created index", "index", w.index)
	return nil
}

// Send bulk-indexes the batch and returns how many leading documents were indexed.
func (w *Writer) Send(ctx context.Context, batch []*api.StoredTransaction) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Index:      w.index,
		Client:     w.client,
		NumWorkers: 1,
		FlushBytes: 1 << 20,
	})
	if err != nil {
		return 0, fmt.Errorf("creating bulk indexer: %w", err)
	}

	var (
		mu     sync.Mutex
		failed = make(map[string]error)
	)
	onFailure := func(_ context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
		if err == nil {
			err = fmt.Errorf("%s: %s", res.Error.Type, res.Error.Reason)
		}
		mu.Lock()
		failed[item.DocumentID] = err
		mu.Unlock()
		w.logger.Warn("failed to index transaction", "id", item.DocumentID, "error", err)
	}

	added := 0
	for _, txn := range batch {
		data, err := json.Marshal(api.NewRow(txn))
		if err != nil {
			break
		}

		err = bi.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: txn.ID,
			Body:       bytes.NewReader(data),
			OnFailure:  onFailure,
		})
		if err != nil {
			break
		}
		added++
	}

	if err := bi.Close(ctx); err != nil {
		return 0, fmt.Errorf("flushing bulk indexer: %w", err)
	}

	for i, txn := range batch[:added] {
		if err, ok := failed[txn.ID]; ok {
			return i, fmt.Errorf("indexing transaction %s: %w", txn.ID, err)
		}
	}
	if added < len(batch) {
		return added, fmt.Errorf("indexed %d of %d transactions", added, len(batch))
	}

	stats := bi.Stats()
	w.logger.Info("indexed transactions", "count", stats.NumFlushed, "index", w.index)
	return len(batch), nil
}
