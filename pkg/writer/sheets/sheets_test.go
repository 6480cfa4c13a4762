package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/ArionMiles/txnotify/pkg/api"
)

// fakeSheets emulates the subset of the Sheets v4 REST API used by the writer.
type fakeSheets struct {
	mu           sync.Mutex
	rateLimited  int
	headerWrites int
	appended     [][]any
	created      bool
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	path := r.URL.Path

	switch {
	case r.Method == http.MethodGet && path == "/v4/spreadsheets/existing":
		_, _ = w.Write([]byte(`{"spreadsheetId":"existing","properties":{"title":"Ledger"}}`))
	case r.Method == http.MethodGet:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"not found"}}`))
	case r.Method == http.MethodPost && path == "/v4/spreadsheets":
		f.created = true
		_, _ = w.Write([]byte(`{"spreadsheetId":"created","properties":{"title":"txnotify"}}`))
	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		f.headerWrites++
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
		if f.rateLimited > 0 {
			f.rateLimited--
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota"}}`))
			return
		}
		var body struct {
			Values [][]any `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.appended = append(f.appended, body.Values...)
		_, _ = w.Write([]byte(`{}`))
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func newTestWriter(t *testing.T, fake *fakeSheets, cfg Config) *Writer {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg.RetryDelay = time.Millisecond
	w, err := New(context.Background(), srv.Client(), cfg, nil, option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	return w
}

func testTxn(id string) *api.StoredTransaction {
	amount := decimal.RequireFromString("50.00")
	receiver := "Starbucks"
	return &api.StoredTransaction{
		ID: id,
		TransactionRecord: api.TransactionRecord{
			Amount:       &amount,
			Receiver:     &receiver,
			Category:     "Food & Dining",
			OriginalText: "Rs. 50.00 spent at Starbucks",
			Timestamp:    time.Date(2026, 2, 25, 9, 0, 0, 0, time.UTC),
		},
	}
}

func TestNew_UsesExistingSpreadsheet(t *testing.T) {
	fake := &fakeSheets{}
	w := newTestWriter(t, fake, Config{SheetID: "existing"})

	assert.Equal(t, "existing", w.SpreadsheetID())
	assert.False(t, fake.created)
	assert.Zero(t, fake.headerWrites)
}

func TestNew_CreatesSpreadsheetWithHeaders(t *testing.T) {
	fake := &fakeSheets{}
	w := newTestWriter(t, fake, Config{SheetID: "missing", SheetTitle: "txnotify"})

	assert.Equal(t, "created", w.SpreadsheetID())
	assert.True(t, fake.created)
	assert.Equal(t, 1, fake.headerWrites)
}

func TestSend_AppendsRows(t *testing.T) {
	fake := &fakeSheets{}
	w := newTestWriter(t, fake, Config{SheetID: "existing"})

	n, err := w.Send(context.Background(), []*api.StoredTransaction{testTxn("a"), testTxn("b")})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, fake.appended, 2)
	assert.Equal(t, "2026-02-25T09:00:00.000Z", fake.appended[0][0])
	assert.Equal(t, "Starbucks", fake.appended[0][3])
	assert.Equal(t, "b", fake.appended[1][6])
}

func TestSend_RetriesRateLimit(t *testing.T) {
	fake := &fakeSheets{rateLimited: 2}
	w := newTestWriter(t, fake, Config{SheetID: "existing"})

	n, err := w.Send(context.Background(), []*api.StoredTransaction{testTxn("a")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, fake.appended, 1)
}

func TestSend_GivesUpAfterAttempts(t *testing.T) {
	fake := &fakeSheets{rateLimited: 10}
	w := newTestWriter(t, fake, Config{SheetID: "existing"})

	n, err := w.Send(context.Background(), []*api.StoredTransaction{testTxn("a")})
	assert.Error(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 7, fake.rateLimited)
}

func TestSend_Empty(t *testing.T) {
	fake := &fakeSheets{}
	w := newTestWriter(t, fake, Config{SheetID: "existing"})

	n, err := w.Send(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
