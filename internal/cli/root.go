package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"taskboard/internal/backend"
	"taskboard/internal/format"
	"taskboard/internal/model"
	"taskboard/internal/session"
	"taskboard/internal/tui"
)

// Version is stamped at build time with -ldflags "-X taskboard/internal/cli.Version=...".
var Version = "dev"

type App struct {
	// Raw flag values; empty means "not given".
	ConfigDir  string
	Backend    string
	APIURL     string
	DBPath     string
	DebugLog   string
	PrettyJSON bool

	settings settings
	logger   *log.Logger
	logFile  *os.File
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "taskboard",
		Short:        "Personal task board (TUI, CLI and web)",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Start the interactive TUI
  taskboard

  # Sign in and script the board
  taskboard login --email ada@example.com --password '...'
  taskboard tasks add --title "File brief" --due 2024-05-01 --priority High
  taskboard tasks list

  # Run the collection service and the browser UI
  taskboard serve --addr :3000
  taskboard web --addr 127.0.0.1:3335
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive TUI.
			if cmd.HasSubCommands() && len(args) == 0 {
				return runTUI(cmd, app)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := app.configure(cmd); err != nil {
			return writeErr(cmd, err)
		}
		return nil
	}
	cmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if app.logFile != nil {
			_ = app.logFile.Close()
			app.logFile = nil
		}
		return nil
	}

	cmd.PersistentFlags().StringVar(&app.ConfigDir, "config-dir", "", "Config dir holding config.json, state.json and the local database (env TASKBOARD_CONFIG_DIR, default ~/.taskboard)")
	cmd.PersistentFlags().StringVar(&app.Backend, "backend", "", "Task backend: remote|local (env TASKBOARD_BACKEND)")
	cmd.PersistentFlags().StringVar(&app.APIURL, "api-url", "", "Collection service base URL for the remote backend (env TASKBOARD_API_URL)")
	cmd.PersistentFlags().StringVar(&app.DBPath, "db", "", "SQLite path for the local backend and `serve` (env TASKBOARD_DB)")
	cmd.PersistentFlags().StringVar(&app.DebugLog, "debug-log", "", "Append debug logs to this file")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")

	cmd.AddCommand(newLoginCmd(app))
	cmd.AddCommand(newLogoutCmd(app))
	cmd.AddCommand(newWhoamiCmd(app))
	cmd.AddCommand(newTasksCmd(app))
	cmd.AddCommand(newThemeCmd(app))
	cmd.AddCommand(newUsersCmd(app))
	cmd.AddCommand(newConfigCmd(app))
	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newWebCmd(app))
	cmd.AddCommand(newVersionCmd(app))

	return cmd
}

// configure resolves settings and sets up the logger before any command runs.
func (app *App) configure(cmd *cobra.Command) error {
	s, err := resolveSettings(app)
	if err != nil {
		return err
	}
	app.settings = s

	logger := log.New()
	logger.SetOutput(io.Discard)
	if path := strings.TrimSpace(app.DebugLog); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("debug log: %w", err)
		}
		app.logFile = f
		logger.SetOutput(f)
		logger.SetFormatter(&log.JSONFormatter{})
		logger.SetLevel(log.DebugLevel)
	}
	app.logger = logger
	logger.WithFields(log.Fields{
		"command": cmd.CommandPath(),
		"backend": s.Backend,
		"dir":     s.Store.Dir,
	}).Debug("start")
	return nil
}

// serviceLogger is the logger for long-running commands: stderr unless --debug-log is set.
func (app *App) serviceLogger(cmd *cobra.Command) *log.Logger {
	if app.logFile != nil {
		return app.logger
	}
	logger := log.New()
	logger.SetOutput(cmd.ErrOrStderr())
	return logger
}

func (app *App) openBackend(ctx context.Context) (backend.Backend, error) {
	s := app.settings
	return backend.Open(ctx, backend.Options{
		Kind:        s.Backend,
		APIURL:      s.APIURL,
		HTTPTimeout: s.HTTPTimeout,
		DBPath:      s.DBPath,
		Store:       s.Store,
	})
}

func runTUI(cmd *cobra.Command, app *App) error {
	be, err := app.openBackend(cmd.Context())
	if err != nil {
		return writeErr(cmd, err)
	}
	defer be.Close()
	gate := session.NewGate(be, app.settings.Store)
	return tui.Run(cmd.Context(), gate, be.Tasks, app.logger)
}

// signedIn opens the backend and returns it with the cached session.
func signedIn(cmd *cobra.Command, app *App) (backend.Backend, *session.Gate, model.Session, error) {
	be, err := app.openBackend(cmd.Context())
	if err != nil {
		return nil, nil, model.Session{}, err
	}
	gate := session.NewGate(be, app.settings.Store)
	sess, err := gate.Current()
	if err != nil {
		_ = be.Close()
		if errors.Is(err, session.ErrNoSession) {
			return nil, nil, model.Session{}, errors.New("not signed in; run `taskboard login`")
		}
		return nil, nil, model.Session{}, err
	}
	return be, gate, sess, nil
}

func envOr(k, d string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.WriteJSON(cmd.OutOrStdout(), v, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
