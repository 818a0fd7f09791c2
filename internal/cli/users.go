package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"taskboard/internal/local"
	"taskboard/internal/model"
	"taskboard/internal/store"
)

func newUsersCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage accounts in the SQLite store used by `serve` and --backend local",
	}
	cmd.AddCommand(newUsersAddCmd(app))
	return cmd
}

func newUsersAddCmd(app *App) *cobra.Command {
	var email, password, first, last string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account",
		Example: strings.TrimSpace(`
taskboard users add --email ada@example.com --password 'correct horse' --first Ada --last Lovelace
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw := password
			if pw == "" {
				pw = envOr("TASKBOARD_PASSWORD", "")
			}
			db, err := store.OpenCollection(cmd.Context(), app.settings.DBPath)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer db.Close()

			u, err := local.AddUser(cmd.Context(), db, model.User{
				Email:     email,
				FirstName: first,
				LastName:  last,
			}, pw)
			if err != nil {
				return writeErr(cmd, err)
			}
			app.logger.WithField("user", u.ID).Debug("user added")
			return writeOut(cmd, app, map[string]any{"data": u})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email (required)")
	cmd.Flags().StringVar(&password, "password", "", "Account password, at least 8 characters (or env TASKBOARD_PASSWORD)")
	cmd.Flags().StringVar(&first, "first", "", "First name")
	cmd.Flags().StringVar(&last, "last", "", "Last name")
	return cmd
}
