// Package mbox implements a Source that reads alert mails from an mbox export.
package mbox

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"strconv"
	"strings"

	"github.com/emersion/go-mbox"

	"github.com/ArionMiles/txnotify/pkg/api"
	"github.com/ArionMiles/txnotify/pkg/reader/mailtext"
)

// SourceName is reported on every notification.
const SourceName = "mbox"

// Config holds configuration for the mbox reader.
type Config struct {
	// Path is the mbox file to read.
	Path string
}

// Reader emits one notification per message in an mbox file.
type Reader struct {
	path   string
	logger *slog.Logger
}

// New creates an mbox reader.
func New(cfg Config, logger *slog.Logger) (*Reader, error) {
	if cfg.Path == "" {
		return nil, errors.New("mbox path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{path: cfg.Path, logger: logger}, nil
}

// Read sends the text of every message to out and returns nil at end of file.
// Messages without a readable text body are skipped.
func (r *Reader) Read(ctx context.Context, out chan<- *api.Notification, acks <-chan string) error {
	defer close(out)

	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("opening mbox %s: %w", r.path, err)
	}
	defer f.Close()

	if acks != nil {
		go drain(ctx, acks)
	}

	mr := mbox.NewReader(f)
	count, sent := 0, 0
	for {
		raw, err := mr.NextMessage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading mbox %s: %w", r.path, err)
		}
		count++

		id, text, err := parseMessage(raw)
		if err != nil {
			r.logger.Warn("skipping unreadable message", "index", count, "error", err)
			continue
		}
		if text == "" {
			r.logger.Debug("skipping message without text body", "index", count)
			continue
		}
		if id == "" {
			id = r.path + ":" + strconv.Itoa(count)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- &api.Notification{ID: id, Text: text, Source: SourceName}:
			sent++
		}
	}

	r.logger.Info("finished reading mbox", "path", r.path, "messages", count, "sent", sent)
	return nil
}

func drain(ctx context.Context, acks <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-acks:
			if !ok {
				return
			}
		}
	}
}

// parseMessage returns the Message-Id and the flattened alert text of a message.
func parseMessage(raw io.Reader) (string, string, error) {
	msg, err := mail.ReadMessage(raw)
	if err != nil {
		return "", "", fmt.Errorf("parsing message: %w", err)
	}
	id := strings.Trim(msg.Header.Get("Message-Id"), "<> ")

	plain, html, err := collect(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return id, "", err
	}
	switch {
	case plain != "":
		return id, mailtext.Flatten(mailtext.Clean(plain)), nil
	case html != "":
		return id, mailtext.Flatten(mailtext.FromHTML(html)), nil
	}
	return id, "", nil
}

// collect walks a MIME entity and returns its first text/plain and text/html bodies.
func collect(contentType, encoding string, body io.Reader) (plain, html string, err error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return plain, html, fmt.Errorf("reading multipart body: %w", err)
			}
			p, h, err := collect(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part)
			if err != nil {
				return plain, html, err
			}
			if plain == "" {
				plain = p
			}
			if html == "" {
				html = h
			}
		}
		return plain, html, nil
	}

	if mediaType != "text/plain" && mediaType != "text/html" {
		return "", "", nil
	}

	data, err := io.ReadAll(decodeTransfer(encoding, body))
	if err != nil {
		return "", "", fmt.Errorf("decoding %s body: %w", mediaType, err)
	}
	if mediaType == "text/html" {
		return "", string(data), nil
	}
	return string(data), "", nil
}

func decodeTransfer(encoding string, body io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, body)
	case "quoted-printable":
		return quotedprintable.NewReader(body)
	}
	return body
}
