// Package gmail implements a Source that reads bank alert mails from Gmail.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/ArionMiles/txnotify/pkg/api"
	"github.com/ArionMiles/txnotify/pkg/reader/mailtext"
)

// Default configuration values.
const (
	DefaultQuery        = "is:unread label:bank-alerts"
	DefaultInterval     = time.Minute
	DefaultClaimTimeout = 10 * time.Minute
	SourceName          = "gmail"
)

// Scopes are the OAuth scopes the reader needs: listing messages and marking them read.
var Scopes = []string{gmail.GmailModifyScope}

// Reader polls Gmail for alert messages.
type Reader struct {
	client       *gmail.Service
	query        string
	interval     time.Duration
	claimTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger

	mu sync.Mutex
	// inflight holds when each emitted message was claimed. Later polls skip a
	// message until it is acknowledged or its claim is older than claimTimeout.
	inflight map[string]time.Time
}

// Config holds configuration for the Gmail reader.
type Config struct {
	// Query is the Gmail search query. Defaults to DefaultQuery.
	Query string
	// Interval between polls. Defaults to DefaultInterval.
	Interval time.Duration
	// ClaimTimeout is how long an emitted message may stay unacknowledged
	// before it is emitted again. Defaults to DefaultClaimTimeout.
	ClaimTimeout time.Duration
}

// New creates a new Gmail reader.
func New(ctx context.Context, httpClient *http.Client, cfg Config, logger *slog.Logger, opts ...option.ClientOption) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	client, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	if cfg.Query == "" {
		cfg.Query = DefaultQuery
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = DefaultClaimTimeout
	}

	return &Reader{
		client:       client,
		query:        cfg.Query,
		interval:     cfg.Interval,
		claimTimeout: cfg.ClaimTimeout,
		now:          time.Now,
		logger:       logger,
		inflight:     make(map[string]time.Time),
	}, nil
}

// Read polls Gmail and sends alert texts to the output channel.
// It runs until the context is canceled.
// Messages are only marked as read after receiving acknowledgment via acks.
func (r *Reader) Read(ctx context.Context, out chan<- *api.Notification, acks <-chan string) error {
	defer close(out)

	// Start goroutine to mark messages as read when acknowledged
	go r.handleAcknowledgments(ctx, acks)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Run immediately on start
	r.poll(ctx, out)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("gmail reader stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			r.poll(ctx, out)
		}
	}
}

// handleAcknowledgments marks messages as read once they are handled.
func (r *Reader) handleAcknowledgments(ctx context.Context, acks <-chan string) {
	if acks == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case msgID, ok := <-acks:
			if !ok {
				r.logger.Info("acknowledgment channel closed")
				return
			}
			r.markAsRead(ctx, msgID)
		}
	}
}

// markAsRead marks a message as read in Gmail.
func (r *Reader) markAsRead(ctx context.Context, msgID string) {
	_, err := r.client.Users.Messages.Modify("me", msgID, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()

	r.mu.Lock()
	delete(r.inflight, msgID)
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("failed to mark message as read", "message_id", msgID, "error", err)
	} else {
		r.logger.Debug("marked message as read", "message_id", msgID)
	}
}

func (r *Reader) poll(ctx context.Context, out chan<- *api.Notification) {
	logger := r.logger.With("query", r.query)

	var ids []string
	err := r.client.Users.Messages.List("me").Q(r.query).Pages(ctx, func(resp *gmail.ListMessagesResponse) error {
		for _, msg := range resp.Messages {
			ids = append(ids, msg.Id)
		}
		return nil
	})
	if err != nil {
		logger.Error("failed to list messages", "error", err)
		return
	}

	logger.Info("found messages", "count", len(ids))

	for _, id := range ids {
		if !r.claim(id) {
			logger.Debug("message awaiting acknowledgment", "message_id", id)
			continue
		}
		if err := r.processMessage(ctx, id, out); err != nil {
			r.release(id)
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to process message", "message_id", id, "error", err)
		}
	}
}

// claim marks id as emitted. It fails while an earlier claim on id is
// younger than the claim timeout.
func (r *Reader) claim(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if claimedAt, ok := r.inflight[id]; ok {
		if now.Sub(claimedAt) < r.claimTimeout {
			return false
		}
		r.logger.Warn("message not acknowledged in time, emitting again",
			"message_id", id, "claimed_at", claimedAt)
	}
	r.inflight[id] = now
	return true
}

func (r *Reader) release(id string) {
	r.mu.Lock()
	delete(r.inflight, id)
	r.mu.Unlock()
}

func (r *Reader) processMessage(ctx context.Context, msgID string, out chan<- *api.Notification) error {
	msg, err := r.client.Users.Messages.Get("me", msgID).Format("full").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("getting message: %w", err)
	}

	// Extract subject for logging
	var subject string
	if msg.Payload != nil {
		for _, header := range msg.Payload.Headers {
			if header.Name == "Subject" {
				subject = header.Value
				break
			}
		}
	}

	body := ExtractText(msg)
	if body == "" {
		return fmt.Errorf("empty message body (subject %q)", subject)
	}

	r.logger.Debug("read alert", "subject", subject, "message_id", msgID)

	// Message will be marked as read only after it is handled and acknowledged
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- &api.Notification{ID: msgID, Text: body, Source: SourceName}:
	}
	return nil
}

// ExtractText returns the alert text of a message as a single line. A text/plain
// part is preferred; an HTML part is stripped of markup otherwise.
func ExtractText(msg *gmail.Message) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}
	if text := findPart(msg.Payload, "text/plain"); text != "" {
		return mailtext.Flatten(mailtext.Clean(text))
	}
	if text := findPart(msg.Payload, "text/html"); text != "" {
		return mailtext.Flatten(mailtext.FromHTML(text))
	}
	return ""
}

// findPart walks the MIME tree depth first for the first decodable part of mimeType.
func findPart(part *gmail.MessagePart, mimeType string) string {
	if strings.EqualFold(part.MimeType, mimeType) && part.Body != nil && part.Body.Data != "" {
		if data, ok := decode(part.Body.Data); ok {
			return data
		}
	}
	for _, child := range part.Parts {
		if text := findPart(child, mimeType); text != "" {
			return text
		}
	}
	return ""
}

func decode(data string) (string, bool) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b), true
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(b), true
	}
	return "", false
}
