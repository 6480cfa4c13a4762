package csv

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/txnotify/pkg/api"
)

func stored(id, amount, receiver string) *api.StoredTransaction {
	d := decimal.RequireFromString(amount)
	sender := "HDFC Bank"
	return &api.StoredTransaction{
		TransactionRecord: api.TransactionRecord{
			Amount:       &d,
			Sender:       &sender,
			Receiver:     &receiver,
			Category:     "Food",
			OriginalText: "Paid Rs. " + amount + " to " + receiver,
			Timestamp:    time.Date(2026, 2, 25, 9, 30, 0, 0, time.UTC),
		},
		ID: id,
	}
}

func TestWriter_AppendsWithSingleHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "ledger.csv")

	w, err := New(Config{FilePath: path}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n, err := w.Send(context.Background(), []*api.StoredTransaction{stored("a", "850", "Zomato")})
	if err != nil || n != 1 {
		t.Fatalf("Send: got %d, %v", n, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening an existing file must not repeat the header.
	w, err = New(Config{FilePath: path}, nil)
	if err != nil {
		t.Fatalf("New (reopen): %v", err)
	}
	if _, err := w.Send(context.Background(), []*api.StoredTransaction{stored("b", "120.5", "Uber")}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines: got %d, want 3\n%s", len(lines), data)
	}
	if !strings.HasPrefix(lines[0], "Date/Time,Amount") {
		t.Errorf("header: got %q", lines[0])
	}
	if want := "2026-02-25T09:30:00.000Z,850.00,HDFC Bank,Zomato,Food,Paid Rs. 850 to Zomato,a"; lines[1] != want {
		t.Errorf("row: got %q, want %q", lines[1], want)
	}
	if !strings.HasSuffix(lines[2], ",b") {
		t.Errorf("second row: got %q", lines[2])
	}
}

func TestNew_RequiresPath(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestExport(t *testing.T) {
	txn := stored("a", "1250", "Amazon")
	txn.Sender = nil
	txn.Amount = nil

	var buf bytes.Buffer
	if err := Export(&buf, []*api.StoredTransaction{txn}); err != nil {
		t.Fatalf("Export: %v", err)
	}

	want := "Date/Time,Amount,Sender,Receiver,Category,Raw Text,ID\n" +
		"2026-02-25T09:30:00.000Z,,,Amazon,Food,Paid Rs. 1250 to Amazon,a\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}
