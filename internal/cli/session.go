package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"taskboard/internal/session"
	"taskboard/internal/store"
)

func newLoginCmd(app *App) *cobra.Command {
	var email string
	var password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and cache the session",
		Example: strings.TrimSpace(`
taskboard login --email ada@example.com --password '...'
TASKBOARD_PASSWORD='...' taskboard login --email ada@example.com
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := app.openBackend(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer be.Close()

			pw := password
			if pw == "" {
				pw = envOr("TASKBOARD_PASSWORD", "")
			}
			sess, err := session.NewGate(be, app.settings.Store).Login(cmd.Context(), email, pw)
			if err != nil {
				app.logger.WithError(err).Debug("login failed")
				return writeErr(cmd, err)
			}
			app.logger.WithField("user", sess.User.ID).Debug("login")
			return writeOut(cmd, app, map[string]any{
				"data": map[string]any{
					"user":      sess.User,
					"expiresAt": sess.ExpiresAt,
					"backend":   app.settings.Backend,
				},
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (or env TASKBOARD_PASSWORD)")
	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the cached session and revoke its token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := app.openBackend(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer be.Close()

			hints := []string{}
			if err := session.NewGate(be, app.settings.Store).Logout(cmd.Context()); err != nil {
				// The local session is gone either way.
				hints = append(hints, err.Error())
			}
			return writeOut(cmd, app, map[string]any{
				"data":   map[string]any{"signedOut": true},
				"_hints": hints,
			})
		},
	}
}

func newWhoamiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			be, _, sess, err := signedIn(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer be.Close()
			return writeOut(cmd, app, map[string]any{
				"data": map[string]any{
					"user":      sess.User,
					"expiresAt": sess.ExpiresAt,
					"backend":   app.settings.Backend,
				},
			})
		},
	}
}

func newThemeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:       "theme [light|dark|toggle]",
		Short:     "Show or set the UI theme",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"light", "dark", "toggle"},
		RunE: func(cmd *cobra.Command, args []string) error {
			gate := session.NewGate(nil, app.settings.Store)
			theme := gate.Theme()
			if len(args) == 1 {
				want := strings.ToLower(strings.TrimSpace(args[0]))
				switch want {
				case "toggle":
					want = store.ToggleTheme(theme)
				case "light", "dark":
				default:
					return writeErr(cmd, errInvalidTheme(args[0]))
				}
				var err error
				if theme, err = gate.SetTheme(want); err != nil {
					return writeErr(cmd, err)
				}
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"theme": theme}})
		},
	}
}
