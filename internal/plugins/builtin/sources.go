package builtin

import (
	"context"

	"github.com/ArionMiles/txnotify/internal/plugins"
	"github.com/ArionMiles/txnotify/pkg/api"
	"github.com/ArionMiles/txnotify/pkg/reader/gmail"
	"github.com/ArionMiles/txnotify/pkg/reader/lines"
	"github.com/ArionMiles/txnotify/pkg/reader/mbox"
	"github.com/ArionMiles/txnotify/pkg/reader/webhook"
)

// StdinSource reads one notification per line of standard input.
type StdinSource struct{}

func (p *StdinSource) Name() string             { return "stdin" }
func (p *StdinSource) Description() string      { return "Read one notification per line from standard input" }
func (p *StdinSource) RequiredScopes() []string { return nil }

func (p *StdinSource) NewSource(_ context.Context, deps plugins.Deps) (api.Source, error) {
	return lines.New(lines.Config{}, logger(deps, "source", p.Name())), nil
}

// FileSource reads one notification per line of a file.
type FileSource struct{}

func (p *FileSource) Name() string             { return "file" }
func (p *FileSource) Description() string      { return "Read one notification per line from a file" }
func (p *FileSource) RequiredScopes() []string { return nil }

func (p *FileSource) NewSource(_ context.Context, deps plugins.Deps) (api.Source, error) {
	return lines.New(lines.Config{Path: deps.Config.SourcePath}, logger(deps, "source", p.Name())), nil
}

// WebhookSource accepts notifications over HTTP.
type WebhookSource struct{}

func (p *WebhookSource) Name() string             { return "webhook" }
func (p *WebhookSource) Description() string      { return "Accept notifications from forwarders over HTTP" }
func (p *WebhookSource) RequiredScopes() []string { return nil }

func (p *WebhookSource) NewSource(_ context.Context, deps plugins.Deps) (api.Source, error) {
	cfg := webhook.Config{
		Addr:  deps.Config.WebhookAddr,
		Token: deps.Config.WebhookToken,
	}
	return webhook.New(cfg, logger(deps, "source", p.Name())), nil
}

// GmailSource polls Gmail for bank alert mails.
type GmailSource struct{}

func (p *GmailSource) Name() string             { return "gmail" }
func (p *GmailSource) Description() string      { return "Poll Gmail for bank alert mails" }
func (p *GmailSource) RequiredScopes() []string { return gmail.Scopes }

func (p *GmailSource) NewSource(ctx context.Context, deps plugins.Deps) (api.Source, error) {
	if deps.HTTPClient == nil {
		return nil, errNoHTTPClient
	}
	cfg := gmail.Config{
		Query:        deps.Config.GmailQuery,
		Interval:     deps.Config.GmailInterval,
		ClaimTimeout: deps.Config.GmailClaimTimeout,
	}
	return gmail.New(ctx, deps.HTTPClient, cfg, logger(deps, "source", p.Name()))
}

// MboxSource reads alert mails from an mbox export.
type MboxSource struct{}

func (p *MboxSource) Name() string             { return "mbox" }
func (p *MboxSource) Description() string      { return "Read alert mails from an mbox file" }
func (p *MboxSource) RequiredScopes() []string { return nil }

func (p *MboxSource) NewSource(_ context.Context, deps plugins.Deps) (api.Source, error) {
	return mbox.New(mbox.Config{Path: deps.Config.SourcePath}, logger(deps, "source", p.Name()))
}
