// Package client authorizes txnotify against Google APIs with OAuth2.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/sheets/v4"
)

const (
	callbackPort = 8085
	callbackPath = "/callback"
	// flowTimeout bounds the wait for the user to finish in the browser.
	flowTimeout = 5 * time.Minute
)

var (
	// ErrNoToken is returned when no token is stored and the browser flow is disabled.
	ErrNoToken = errors.New("no oauth token stored; run txnotify setup")
	// ErrMissingScopes is returned when the stored token was granted for fewer
	// scopes than the configured plugins need.
	ErrMissingScopes = errors.New("stored oauth token lacks scopes; run txnotify setup --force")
)

var scopeDescriptions = map[string]string{
	gmail.GmailModifyScope:   "Gmail: read bank alert mails and mark them read",
	gmail.GmailReadonlyScope: "Gmail: read bank alert mails",
	sheets.SpreadsheetsScope: "Google Sheets: create the ledger spreadsheet and append rows",
}

// Describe returns what txnotify does with scope, or the scope itself when unknown.
func Describe(scope string) string {
	if d, ok := scopeDescriptions[scope]; ok {
		return d
	}
	return scope
}

// Config locates the OAuth files and the scopes to authorize.
type Config struct {
	// SecretFile is the Google OAuth client secret JSON.
	SecretFile string
	// TokenFile caches the user token between runs.
	TokenFile string
	// Scopes are the scopes the selected plugins need.
	Scopes []string
	// Interactive allows the browser flow when no usable token is stored.
	Interactive bool
	// Prompt receives the browser instructions. Defaults to os.Stdout.
	Prompt io.Writer
	Logger *slog.Logger
}

// New returns an authorized HTTP client using the secret in cfg.SecretFile.
func New(ctx context.Context, cfg Config) (*http.Client, error) {
	b, err := os.ReadFile(cfg.SecretFile)
	if err != nil {
		return nil, fmt.Errorf("reading client secret file: %w", err)
	}
	return NewFromJSON(ctx, b, cfg)
}

// NewFromJSON returns an authorized HTTP client for the given client secret.
func NewFromJSON(ctx context.Context, secretJSON []byte, cfg Config) (*http.Client, error) {
	oauthCfg, err := google.ConfigFromJSON(secretJSON, cfg.Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parsing client secret: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Prompt == nil {
		cfg.Prompt = os.Stdout
	}

	tok, err := token(ctx, oauthCfg, cfg)
	if err != nil {
		return nil, err
	}
	// Refreshes must keep working while a shutdown drains the ledger.
	return oauthCfg.Client(context.WithoutCancel(ctx), tok.Token), nil
}

// token returns the stored token when it covers cfg.Scopes and runs the
// browser flow otherwise, if allowed.
func token(ctx context.Context, oauthCfg *oauth2.Config, cfg Config) (*Token, error) {
	tok, err := LoadToken(cfg.TokenFile)
	if err == nil {
		missing := tok.Missing(cfg.Scopes)
		if len(missing) == 0 {
			return tok, nil
		}
		err = fmt.Errorf("%w: %s", ErrMissingScopes, strings.Join(missing, ", "))
	} else if !errors.Is(err, ErrNoToken) {
		return nil, err
	}
	if !cfg.Interactive {
		return nil, err
	}

	cfg.Logger.Info("starting oauth browser flow", "reason", err, "scopes", len(cfg.Scopes))
	flow := &authFlow{
		config: oauthCfg,
		addr:   fmt.Sprintf("localhost:%d", callbackPort),
		prompt: cfg.Prompt,
		open:   openBrowser,
		logger: cfg.Logger,
	}
	oauthTok, err := flow.run(ctx)
	if err != nil {
		return nil, err
	}

	tok = &Token{Token: oauthTok, Scopes: slices.Clone(cfg.Scopes)}
	if err := SaveToken(cfg.TokenFile, tok); err != nil {
		cfg.Logger.Error("failed to save token", "path", cfg.TokenFile, "error", err)
	}
	return tok, nil
}

// authFlow runs the installed-app authorization code flow against a local
// callback server.
type authFlow struct {
	config *oauth2.Config
	addr   string
	prompt io.Writer
	open   func(ctx context.Context, url string) error
	logger *slog.Logger
}

func (f *authFlow) run(ctx context.Context) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, flowTimeout)
	defer cancel()

	state, err := newState()
	if err != nil {
		return nil, fmt.Errorf("generating state token: %w", err)
	}

	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", f.addr)
	if err != nil {
		return nil, fmt.Errorf("callback address %s unavailable: %w", f.addr, err)
	}
	f.config.RedirectURL = "http://" + listener.Addr().String() + callbackPath

	codes := make(chan string, 1)
	errs := make(chan error, 1)
	mux := http.NewServeMux()
	mux.Handle(callbackPath, f.callback(state, codes, errs))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			report(errs, err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			f.logger.Warn("error shutting down callback server", "error", err)
		}
	}()

	authURL := f.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(f.prompt, "\nOpening the browser to authorize txnotify...\n")
	fmt.Fprintf(f.prompt, "If it does not open, visit:\n%s\n\n", authURL)
	if err := f.open(ctx, authURL); err != nil {
		f.logger.Warn("failed to open browser", "error", err)
	}

	select {
	case code := <-codes:
		tok, err := f.config.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("exchanging authorization code: %w", err)
		}
		fmt.Fprintln(f.prompt, "Authorization complete.")
		return tok, nil
	case err := <-errs:
		return nil, fmt.Errorf("oauth callback: %w", err)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("oauth flow timed out after %v", flowTimeout)
		}
		return nil, ctx.Err()
	}
}

// callback handles the redirect from Google. The first code or error is
// delivered; later requests are answered but dropped.
func (f *authFlow) callback(state string, codes chan<- string, errs chan<- error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			report(errs, errors.New("invalid state parameter"))
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}
		if e := q.Get("error"); e != "" {
			report(errs, fmt.Errorf("%s: %s", e, q.Get("error_description")))
			http.Error(w, "Authorization failed: "+e, http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			report(errs, errors.New("no authorization code received"))
			http.Error(w, "No authorization code received", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, successPage)

		select {
		case codes <- code:
		default:
		}
	})
}

const successPage = `<!DOCTYPE html>
<html>
<head><title>txnotify authorized</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 20vh;">
<h1>txnotify is authorized</h1>
<p>Close this window and return to the terminal.</p>
</body>
</html>`

func report(errs chan<- error, err error) {
	select {
	case errs <- err:
	default:
	}
}
