package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/invoicer/internal/activity"
	"github.com/cleared-dev/invoicer/internal/buildinfo"
	"github.com/cleared-dev/invoicer/internal/config"
	"github.com/cleared-dev/invoicer/internal/editor"
	"github.com/cleared-dev/invoicer/internal/flash"
	"github.com/cleared-dev/invoicer/internal/logging"
	"github.com/cleared-dev/invoicer/internal/remote"
	"github.com/cleared-dev/invoicer/internal/session"
)

// app wires the collaborators shared by every command.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	sessions *session.Store
	client   *remote.Client
}

func openApp(cmd *cobra.Command, configPath string) (*app, error) {
	cfg, err := config.Resolve(configPath)
	if err != nil {
		return nil, err
	}

	log, err := logging.New(logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Version: buildinfo.Version,
		Output:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Session.Path), 0o700); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}
	sessions, err := session.Open(cfg.Session.Path)
	if err != nil {
		return nil, err
	}

	client := remote.New(cfg.API.BaseURL, sessions,
		remote.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		remote.WithLogger(log),
	)

	return &app{cfg: cfg, log: log, sessions: sessions, client: client}, nil
}

func (a *app) Close() {
	if err := a.sessions.Close(); err != nil {
		a.log.Warn().Err(err).Msg("closing session store")
	}
}

func (a *app) editorDeps() editor.Deps {
	return editor.Deps{
		Store:    a.client,
		Sessions: a.sessions,
		Banner:   flash.New(a.cfg.Invoice.FlashTTL),
		Log:      a.log,
	}
}

// newEditor starts a draft for a new invoice.
func (a *app) newEditor() (*editor.Editor, error) {
	return editor.New(a.editorDeps(), a.cfg.Invoice.TaxRate)
}

// openEditor loads a saved invoice for editing.
func (a *app) openEditor(ctx context.Context, invoiceID int64) (*editor.Editor, error) {
	e, err := editor.Open(ctx, a.editorDeps(), invoiceID, a.cfg.Invoice.TaxRate)
	if err != nil {
		return nil, fmt.Errorf("loading invoice: %s", remote.Message(err))
	}
	return e, nil
}

// finish prints the editor's flash banner and appends its activity to the
// log. A failure to write the log is a warning, not an error.
func (a *app) finish(cmd *cobra.Command, e *editor.Editor) {
	if msg, ok := e.Banner().Current(); ok {
		fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", msg.Kind, msg.Text)
	}
	entries := e.Activity()
	if len(entries) == 0 {
		return
	}
	if err := activity.Append(a.cfg.Activity.Path, entries); err != nil {
		a.log.Warn().Err(err).Str("path", a.cfg.Activity.Path).Msg("failed to write activity log")
	}
}
