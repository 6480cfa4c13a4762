// Package api defines the core interfaces and data structures for txnotify.
package api

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts are written as JSON numbers: {"amount": 1250}.
	decimal.MarshalJSONWithoutQuotes = true
}

// Store errors.
var (
	// ErrDuplicate is returned by Store.Add when the same notification text was
	// already stored within the store's dedupe window.
	ErrDuplicate = errors.New("duplicate transaction")
	// ErrNotFound is returned when a transaction ID does not exist.
	ErrNotFound = errors.New("transaction not found")
)

// TransactionRecord is the structured result of parsing one notification text.
// It is produced once by the extraction engine and never modified afterwards.
type TransactionRecord struct {
	// Amount is nil when no amount could be found. Such a record is not a transaction.
	Amount *decimal.Decimal `json:"amount"`
	// Sender is the originating party, or the self sentinel when the text names none.
	Sender *string `json:"sender"`
	// Receiver is the counterparty or merchant, nil when no cue matched.
	Receiver     *string   `json:"receiver"`
	Category     string    `json:"category"`
	OriginalText string    `json:"original_text"`
	Timestamp    time.Time `json:"timestamp"`
}

// IsTransaction reports whether the record carries an amount and should be acted on.
func (r TransactionRecord) IsTransaction() bool {
	return r.Amount != nil
}

// Notification is a raw notification text as delivered by a Source.
type Notification struct {
	// ID identifies the notification within its source (message ID, line number...).
	// It is sent back on the acknowledgment channel once the notification is handled.
	ID     string
	Text   string
	Source string
}

// StoredTransaction is a TransactionRecord persisted by a Store.
type StoredTransaction struct {
	TransactionRecord

	ID string `json:"id"`
	// Fingerprint is the hex SHA-256 of the original text, used for deduplication.
	Fingerprint string     `json:"fingerprint"`
	Source      string     `json:"source,omitempty"`
	Synced      bool       `json:"synced"`
	SyncedAt    *time.Time `json:"synced_at,omitempty"`
}

// Source reads notifications and sends them to the provided channel.
// Implementations close out when done or on error.
// The acks channel carries the IDs of notifications that were fully handled.
type Source interface {
	Read(ctx context.Context, out chan<- *Notification, acks <-chan string) error
}

// Store persists transactions locally and tracks whether they reached the remote ledger.
type Store interface {
	// Add assigns an identity to rec and persists it. It returns ErrDuplicate when
	// the same text was stored within the dedupe window.
	Add(ctx context.Context, rec TransactionRecord, source string) (*StoredTransaction, error)
	// Get returns a stored transaction or ErrNotFound.
	Get(ctx context.Context, id string) (*StoredTransaction, error)
	// List returns transactions newest first. A limit <= 0 means no limit.
	List(ctx context.Context, limit int) ([]*StoredTransaction, error)
	// Pending returns unsynced transactions oldest first. A limit <= 0 means no limit.
	Pending(ctx context.Context, limit int) ([]*StoredTransaction, error)
	// MarkSynced flags the given transactions as synced. Unknown IDs are ignored.
	MarkSynced(ctx context.Context, ids ...string) error
	Close() error
}

// Transport delivers stored transactions to a remote ledger.
type Transport interface {
	// Send delivers batch in order and returns how many leading records were delivered.
	// A non-nil error means batch[n:] was not delivered.
	Send(ctx context.Context, batch []*StoredTransaction) (int, error)
}
