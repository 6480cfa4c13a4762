// Package lines implements a Source that reads one notification per line.
package lines

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/ArionMiles/txnotify/pkg/api"
)

// maxLineSize bounds a single notification line.
const maxLineSize = 1 << 20

// Config holds configuration for the lines reader.
type Config struct {
	// Path is the file to read. Empty reads Input, or stdin when Input is nil.
	Path string
	// Input overrides stdin when Path is empty.
	Input io.Reader
	// Name prefixes notification IDs and is reported as the source.
	// Defaults to the file path, or "stdin".
	Name string
}

// Reader emits each non-blank line as a notification.
type Reader struct {
	config Config
	logger *slog.Logger
}

// New creates a lines reader.
func New(cfg Config, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Path
	}
	if cfg.Name == "" {
		cfg.Name = "stdin"
	}
	return &Reader{config: cfg, logger: logger}
}

// Read sends every non-blank line to out and returns nil at end of input.
// Notification IDs are "<name>:<line number>".
func (r *Reader) Read(ctx context.Context, out chan<- *api.Notification, acks <-chan string) error {
	defer close(out)

	input := r.config.Input
	if r.config.Path != "" {
		f, err := os.Open(r.config.Path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", r.config.Path, err)
		}
		defer f.Close()
		input = f
	}
	if input == nil {
		input = os.Stdin
	}

	if acks != nil {
		go r.drainAcks(ctx, acks)
	}

	// A read blocked on an open terminal or pipe must not delay cancellation.
	lines := make(chan line)
	scanErr := make(chan error, 1)
	go scan(ctx, input, lines, scanErr)

	sent := 0
	for {
		var l line
		select {
		case <-ctx.Done():
			return ctx.Err()
		case next, ok := <-lines:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := <-scanErr; err != nil {
					return fmt.Errorf("reading %s: %w", r.config.Name, err)
				}
				r.logger.Info("finished reading notifications", "source", r.config.Name, "count", sent)
				return nil
			}
			l = next
		}

		n := &api.Notification{
			ID:     r.config.Name + ":" + strconv.Itoa(l.number),
			Text:   l.text,
			Source: r.config.Name,
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- n:
			sent++
		}
	}
}

// line is a non-blank input line and its 1-based number.
type line struct {
	number int
	text   string
}

// scan sends the non-blank lines of input to lines and closes it at end of
// input or when ctx is done. The scanner error, if any, goes to errc.
func scan(ctx context.Context, input io.Reader, lines chan<- line, errc chan<- error) {
	defer close(lines)

	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	number := 0
	for scanner.Scan() {
		number++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		select {
		case <-ctx.Done():
			errc <- nil
			return
		case lines <- line{number: number, text: text}:
		}
	}
	errc <- scanner.Err()
}

func (r *Reader) drainAcks(ctx context.Context, acks <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-acks:
			if !ok {
				return
			}
			r.logger.Debug("notification handled", "id", id)
		}
	}
}
