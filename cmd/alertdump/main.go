// Command alertdump fetches bank alert emails from Gmail and dumps their text to
// files. It is used to collect notification samples for the extraction tests.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/ArionMiles/txnotify/pkg/client"
	"github.com/ArionMiles/txnotify/pkg/config"
	"github.com/ArionMiles/txnotify/pkg/logging"
	gmailreader "github.com/ArionMiles/txnotify/pkg/reader/gmail"
)

const dumpDir = "tests/data/alerts"

func main() {
	logCfg, err := logging.FromEnv()
	logger := logging.Setup(logCfg)
	if err != nil {
		logger.Warn("using default logging", "error", err)
	}

	var (
		configPath string
		query      string
		maxResults int64
		dir        string
	)

	cmd := &cobra.Command{
		Use:   "alertdump",
		Short: "Dump Gmail alert texts to fixture files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if query == "" {
				query = cfg.GmailQuery
			}

			httpClient, err := client.New(cmd.Context(), client.Config{
				SecretFile: cfg.ClientSecretFile,
				TokenFile:  cfg.TokenFile,
				Scopes:     gmailreader.Scopes,
				Logger:     logging.Component(logger, "oauth", "google"),
			})
			if err != nil {
				return fmt.Errorf("creating http client: %w", err)
			}

			svc, err := gmail.NewService(cmd.Context(), option.WithHTTPClient(httpClient))
			if err != nil {
				return fmt.Errorf("creating gmail service: %w", err)
			}

			d := &dumper{svc: svc, dir: dir, logger: logger}
			count, err := d.dump(cmd.Context(), query, maxResults)
			if err != nil {
				return err
			}
			logger.Info("alert dump complete", "total_dumped", count, "directory", dir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (JSON or YAML)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Gmail search query (default TXNOTIFY_GMAIL_QUERY)")
	cmd.Flags().Int64VarP(&maxResults, "max", "n", 10, "maximum number of messages to dump")
	cmd.Flags().StringVarP(&dir, "dir", "d", dumpDir, "output directory")

	if err := cmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

// dumper writes the text of matching messages to dir, one file per message.
type dumper struct {
	svc    *gmail.Service
	dir    string
	logger *slog.Logger
}

func (d *dumper) dump(ctx context.Context, query string, maxResults int64) (int, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating dump directory: %w", err)
	}

	resp, err := d.svc.Users.Messages.List("me").Q(query).MaxResults(maxResults).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("listing messages: %w", err)
	}

	count := 0
	for _, msg := range resp.Messages {
		written, err := d.dumpMessage(ctx, msg.Id)
		if err != nil {
			d.logger.Warn("failed to dump message", "message_id", msg.Id, "error", err)
			continue
		}
		if written {
			count++
		}
	}
	return count, nil
}

func (d *dumper) dumpMessage(ctx context.Context, msgID string) (bool, error) {
	msg, err := d.svc.Users.Messages.Get("me", msgID).Format("full").Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("getting message: %w", err)
	}

	var subject string
	if msg.Payload != nil {
		for _, header := range msg.Payload.Headers {
			if header.Name == "Subject" {
				subject = header.Value
			}
		}
	}

	text := gmailreader.ExtractText(msg)
	if text == "" {
		return false, fmt.Errorf("empty message body")
	}

	received := time.UnixMilli(msg.InternalDate).UTC().Format("2006-01-02_150405")
	filename := sanitizeFilename(fmt.Sprintf("%s_%s", received, subject)) + ".txt"
	filePath := filepath.Join(d.dir, filename)

	if _, err := os.Stat(filePath); err == nil {
		d.logger.Debug("file already exists, skipping", "file", filename)
		return false, nil
	}

	if err := os.WriteFile(filePath, []byte(text+"\n"), 0o644); err != nil {
		return false, fmt.Errorf("writing file: %w", err)
	}

	d.logger.Info("dumped alert", "file", filename, "subject", subject)
	return true, nil
}

var (
	unsafeChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f\s]`)
	underscores = regexp.MustCompile(`_+`)
)

func sanitizeFilename(name string) string {
	name = unsafeChars.ReplaceAllString(name, "_")
	name = underscores.ReplaceAllString(name, "_")

	name = strings.Trim(name, "_")
	if len(name) > 200 {
		name = name[:200]
	}
	return name
}
