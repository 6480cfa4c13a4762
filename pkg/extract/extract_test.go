package extract

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/txnotify/pkg/category"
)

var fixedTime = time.Date(2024, 1, 15, 14, 30, 45, 0, time.UTC)

func strPtr(s string) *string { return &s }

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(DefaultPatterns(), WithClock(func() time.Time { return fixedTime }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func equalAmount(got *decimal.Decimal, want string) bool {
	if want == "" {
		return got == nil
	}
	return got != nil && got.Equal(decimal.RequireFromString(want))
}

func equalStr(got, want *string) bool {
	if got == nil || want == nil {
		return got == want
	}
	return *got == *want
}

func fmtStr(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

// TestCase represents a single extraction case. An empty WantAmount means no
// amount is expected.
type TestCase struct {
	Name         string
	Text         string
	WantAmount   string
	WantReceiver *string
	WantSender   string
	WantCategory string
}

func runCases(t *testing.T, e *Engine, tests []TestCase) {
	t.Helper()
	for _, tc := range tests {
		t.Run(tc.Name, func(t *testing.T) {
			got := e.Extract(tc.Text)

			if !equalAmount(got.Amount, tc.WantAmount) {
				t.Errorf("amount: got %v, want %q", got.Amount, tc.WantAmount)
			}
			if !equalStr(got.Receiver, tc.WantReceiver) {
				t.Errorf("receiver: got %q, want %q", fmtStr(got.Receiver), fmtStr(tc.WantReceiver))
			}
			if got.Sender == nil || *got.Sender != tc.WantSender {
				t.Errorf("sender: got %q, want %q", fmtStr(got.Sender), tc.WantSender)
			}
			if got.Category != tc.WantCategory {
				t.Errorf("category: got %q, want %q", got.Category, tc.WantCategory)
			}
			if got.OriginalText != tc.Text {
				t.Errorf("original text: got %q, want %q", got.OriginalText, tc.Text)
			}
			if !got.Timestamp.Equal(fixedTime) {
				t.Errorf("timestamp: got %v, want %v", got.Timestamp, fixedTime)
			}
		})
	}
}

func TestExtract_Scenarios(t *testing.T) {
	runCases(t, newTestEngine(t), []TestCase{
		{
			Name:         "UPI payment",
			Text:         "Paid ₹ 1,250 to Zomato via HDFC Bank on 25 Feb.",
			WantAmount:   "1250",
			WantReceiver: strPtr("Zomato"),
			WantSender:   SelfSender,
			WantCategory: "Food & Dining",
		},
		{
			Name:         "card spend",
			Text:         "Rs. 50.00 spent at Starbucks on your credit card ends in 1234",
			WantAmount:   "50.00",
			WantReceiver: strPtr("Starbucks"),
			WantSender:   SelfSender,
			WantCategory: "Food & Dining",
		},
		{
			Name:         "transfer with sender account",
			Text:         "Sent ₹ 5,000 to John Doe from A/c XX4567.",
			WantAmount:   "5000",
			WantReceiver: strPtr("John Doe"),
			WantSender:   "A/c XX4567",
			WantCategory: category.Miscellaneous,
		},
		{
			Name:         "debit categorized from text",
			Text:         "Debited Rs 400 from A/C *1234. Info: Uber Rides.",
			WantAmount:   "400",
			WantReceiver: nil,
			WantSender:   "A/C *1234",
			WantCategory: "Transport",
		},
		{
			Name:         "not a transaction",
			Text:         "Hello, how are you?",
			WantReceiver: nil,
			WantSender:   SelfSender,
			WantCategory: category.Miscellaneous,
		},
		{
			Name:         "credited to wallet",
			Text:         "Your a/c no. XX999 is debited for Rs.1200.00 on 24-02-26 and credited to Amazon Pay.",
			WantAmount:   "1200",
			WantReceiver: strPtr("Amazon Pay"),
			WantSender:   SelfSender,
			WantCategory: "Shopping",
		},
	})
}

func TestExtract_EdgeCases(t *testing.T) {
	runCases(t, newTestEngine(t), []TestCase{
		{
			Name:         "amount with lakh grouping",
			Text:         "Transaction of INR 12,34,567.89 at FLIPKART",
			WantAmount:   "1234567.89",
			WantReceiver: strPtr("FLIPKART"),
			WantSender:   SelfSender,
			WantCategory: "Shopping",
		},
		{
			Name:         "receiver runs to end of text",
			Text:         "Transaction of Rs.500 at ZOMATO completed",
			WantAmount:   "500",
			WantReceiver: strPtr("ZOMATO completed"),
			WantSender:   SelfSender,
			WantCategory: "Food & Dining",
		},
		{
			Name:         "first amount only",
			Text:         "Rs 100 debited, Rs 200 credited",
			WantAmount:   "100",
			WantSender:   SelfSender,
			WantCategory: category.Miscellaneous,
		},
		{
			Name:         "marker without digits",
			Text:         "Rs , only",
			WantSender:   SelfSender,
			WantCategory: category.Miscellaneous,
		},
		{
			Name:         "trailing decimal point",
			Text:         "INR 500. paid to Asha",
			WantAmount:   "500",
			WantReceiver: strPtr("Asha"),
			WantSender:   SelfSender,
			WantCategory: category.Miscellaneous,
		},
		{
			Name:         "receiver account suffix dropped",
			Text:         "Rs 300 paid to Asha Kumar account 1234 on 1 Mar",
			WantAmount:   "300",
			WantReceiver: strPtr("Asha Kumar"),
			WantSender:   SelfSender,
			WantCategory: category.Miscellaneous,
		},
		{
			Name:         "sender after by",
			Text:         "Rs 500 credited by Priya Singh on 5 Mar.",
			WantAmount:   "500",
			WantSender:   "Priya Singh",
			WantCategory: category.Miscellaneous,
		},
		{
			Name:         "lowercase marker",
			Text:         "rs 75 paid to chai point",
			WantAmount:   "75",
			WantReceiver: strPtr("chai point"),
			WantSender:   SelfSender,
			WantCategory: category.Miscellaneous,
		},
		{
			Name:         "no-break spaces",
			Text:         "Paid\u00a0Rs\u00a0500\u00a0to\u00a0Ola",
			WantAmount:   "500",
			WantReceiver: strPtr("Ola"),
			WantSender:   SelfSender,
			WantCategory: "Transport",
		},
		{
			Name:         "no-break space inside a cue",
			Text:         "Rs 250 sent\u00a0to Asha on 2 Mar",
			WantAmount:   "250",
			WantReceiver: strPtr("Asha"),
			WantSender:   SelfSender,
			WantCategory: category.Miscellaneous,
		},
		{
			Name:         "empty text",
			Text:         "",
			WantSender:   SelfSender,
			WantCategory: category.Miscellaneous,
		},
	})
}

func TestExtract_Fixtures(t *testing.T) {
	tests := []struct {
		Name         string
		File         string
		WantAmount   string
		WantReceiver *string
		WantSender   string
		WantCategory string
	}{
		{"HDFC UPI payment", "hdfc_upi_01.txt", "1250", strPtr("Zomato"), SelfSender, "Food & Dining"},
		{"ICICI credit card", "icici_credit_card_01.txt", "2499.00", strPtr("AMAZON"), SelfSender, "Shopping"},
		{"SBI debit", "sbi_debit_01.txt", "1200.00", strPtr("Amazon Pay"), SelfSender, "Shopping"},
		{"Kotak UPI credit", "kotak_upi_credit_01.txt", "2000", nil, "RAHUL SHARMA", category.Miscellaneous},
	}

	e := newTestEngine(t)
	for _, tc := range tests {
		t.Run(tc.Name, func(t *testing.T) {
			text, err := loadAlertFixture(tc.File)
			if err != nil {
				t.Fatalf("failed to load alert fixture: %v", err)
			}
			runCases(t, e, []TestCase{{
				Name:         tc.File,
				Text:         text,
				WantAmount:   tc.WantAmount,
				WantReceiver: tc.WantReceiver,
				WantSender:   tc.WantSender,
				WantCategory: tc.WantCategory,
			}})
		})
	}
}

func TestExtract_Totality(t *testing.T) {
	e := newTestEngine(t)
	inputs := []string{
		"",
		" ",
		"!!!",
		"₹",
		"Rs.",
		"to",
		"at at at",
		"from",
		"paid to ,",
		strings.Repeat("to at from by ", 200),
		"\x00\xff invalid utf8",
	}

	for _, in := range inputs {
		got := e.Extract(in)
		if got.Category == "" {
			t.Errorf("%q: empty category", in)
		}
		if got.Sender == nil {
			t.Errorf("%q: nil sender", in)
		}
		if got.OriginalText != in {
			t.Errorf("%q: original text not preserved: %q", in, got.OriginalText)
		}
	}
}

func TestAmount_RoundTrip(t *testing.T) {
	e := newTestEngine(t)
	tests := []struct {
		literal string
		want    string
	}{
		{"1", "1"},
		{"850", "850"},
		{"1,250", "1250"},
		{"1,00,000.50", "100000.5"},
		{"12,34,567.89", "1234567.89"},
		{"0.99", "0.99"},
	}

	for _, marker := range []string{"Rs.", "Rs ", "INR ", "₹ ", "₹"} {
		for _, tc := range tests {
			text := "Paid " + marker + tc.literal + " to Someone via UPI"
			got := e.Amount(text)
			if !equalAmount(got, tc.want) {
				t.Errorf("%q: got %v, want %s", text, got, tc.want)
			}
		}
	}
}

func TestSender_DefaultsToSelf(t *testing.T) {
	for _, text := range []string{"Paid ₹ 99 to Chai Point", "Rs 10 spent", ""} {
		if got := Default().Sender(text); got == nil || *got != SelfSender {
			t.Errorf("%q: got %q, want %q", text, fmtStr(got), SelfSender)
		}
	}
}

func TestExtract_CustomCategorizer(t *testing.T) {
	table := category.Table{{Label: "Friends", Keywords: []string{"john"}}}
	e, err := New(DefaultPatterns(), WithCategorizer(category.New(table)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := e.Extract("Sent ₹ 5,000 to John Doe from A/c XX4567.")
	if got.Category != "Friends" {
		t.Errorf("category: got %q, want %q", got.Category, "Friends")
	}
}

func TestNew_InvalidPatterns(t *testing.T) {
	broken := DefaultPatterns()
	broken.AmountLiteral = `([\d`

	tests := []struct {
		name     string
		patterns Patterns
	}{
		{"zero value", Patterns{}},
		{"no receiver cues", func() Patterns { p := DefaultPatterns(); p.ReceiverCues = nil; return p }()},
		{"no sender run", func() Patterns { p := DefaultPatterns(); p.SenderRun = ""; return p }()},
		{"bad amount literal", broken},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.patterns); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestExtract_Concurrent(t *testing.T) {
	e := Default()
	text := "Paid ₹ 1,250 to Zomato via HDFC Bank on 25 Feb."

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				got := e.Extract(text)
				if got.Receiver == nil || *got.Receiver != "Zomato" {
					t.Errorf("receiver: got %q, want %q", fmtStr(got.Receiver), "Zomato")
					return
				}
			}
		}()
	}
	wg.Wait()
}

// loadAlertFixture loads an alert text from the tests/data/alerts directory,
// without the trailing newline.
func loadAlertFixture(filename string) (string, error) {
	paths := []string{
		filepath.Join("..", "..", "tests", "data", "alerts", filename),
		filepath.Join("tests", "data", "alerts", filename),
	}

	var err error
	for _, path := range paths {
		var data []byte
		data, err = os.ReadFile(path)
		if err == nil {
			return strings.TrimRight(string(data), "\r\n"), nil
		}
	}
	return "", err
}
