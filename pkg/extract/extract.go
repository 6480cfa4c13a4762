// Package extract turns free-text bank and payment notifications into
// structured transaction records.
//
// Extraction runs a fixed sequence of independent rules over the same input:
// amount, receiver, sender, then categorization of the receiver and text.
// A rule that does not match leaves its field nil (or the self sentinel for
// the sender) and never prevents the other rules from running.
package extract

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/txnotify/pkg/api"
	"github.com/ArionMiles/txnotify/pkg/category"
)

// SelfSender is the sender recorded when the text names no originator.
const SelfSender = "Self (Default Account)"

// Engine extracts transaction records from notification text.
// An Engine is immutable and safe for concurrent use.
type Engine struct {
	rules       *compiled
	categorizer *category.Categorizer
	now         func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithCategorizer sets the categorizer used for the final step.
func WithCategorizer(c *category.Categorizer) Option {
	return func(e *Engine) {
		if c != nil {
			e.categorizer = c
		}
	}
}

// WithClock sets the clock that stamps records.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

var defaultEngine = MustNew(DefaultPatterns())

// New compiles patterns into an Engine.
func New(patterns Patterns, opts ...Option) (*Engine, error) {
	rules, err := patterns.compile()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		rules:       rules,
		categorizer: category.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// MustNew is like New but panics if the patterns do not compile.
func MustNew(patterns Patterns, opts ...Option) *Engine {
	e, err := New(patterns, opts...)
	if err != nil {
		panic("extract: " + err.Error())
	}
	return e
}

// Default returns the engine built from DefaultPatterns and the default category table.
func Default() *Engine {
	return defaultEngine
}

// Extract parses text with the default engine.
func Extract(text string) api.TransactionRecord {
	return defaultEngine.Extract(text)
}

// Extract parses text into a record. It never fails: fields that cannot be
// located are left nil, and the original text is kept verbatim.
func (e *Engine) Extract(text string) api.TransactionRecord {
	receiver := e.Receiver(text)
	return api.TransactionRecord{
		Amount:       e.Amount(text),
		Sender:       e.Sender(text),
		Receiver:     receiver,
		Category:     e.categorizer.Categorize(receiver, text),
		OriginalText: text,
		Timestamp:    e.now(),
	}
}

// Amount returns the first amount that follows a currency marker, with grouping
// commas removed, or nil.
func (e *Engine) Amount(text string) *decimal.Decimal {
	m := e.rules.amount.FindStringSubmatch(text)
	if len(m) < 2 {
		return nil
	}

	literal := strings.TrimSuffix(strings.ReplaceAll(m[1], ",", ""), ".")
	amount, err := decimal.NewFromString(literal)
	if err != nil {
		// A marker followed only by commas, e.g. "Rs ,".
		return nil
	}
	return &amount
}

// Receiver returns the counterparty named after a receiver cue, or nil.
func (e *Engine) Receiver(text string) *string {
	m := e.rules.receiver.FindStringSubmatch(text)
	if len(m) < 2 {
		return nil
	}

	receiver := strings.TrimSpace(m[1])
	if e.rules.accountSuffix != nil {
		receiver = e.rules.accountSuffix.ReplaceAllString(receiver, "")
	}
	return &receiver
}

// Sender returns the party named after a sender cue, or SelfSender.
func (e *Engine) Sender(text string) *string {
	sender := SelfSender
	if m := e.rules.sender.FindStringSubmatch(text); len(m) > 1 {
		sender = strings.TrimSpace(m[1])
	}
	return &sender
}
