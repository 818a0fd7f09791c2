package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"taskboard/internal/board"
	"taskboard/internal/model"
	"taskboard/internal/session"
)

func newTasksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task"},
		Short:   "List and change the signed-in user's tasks",
	}

	cmd.AddCommand(newTasksListCmd(app))
	cmd.AddCommand(newTasksAddCmd(app))
	cmd.AddCommand(newTasksEditCmd(app))
	cmd.AddCommand(newTasksToggleCmd(app))
	cmd.AddCommand(newTasksDeleteCmd(app))
	return cmd
}

// boardSession is a loaded board plus what is needed to run ops on it.
type boardSession struct {
	gate  *session.Gate
	svc   board.Service
	board *board.Board
	close func() error
}

func openBoard(cmd *cobra.Command, app *App) (*boardSession, error) {
	be, gate, sess, err := signedIn(cmd, app)
	if err != nil {
		return nil, err
	}
	bs := &boardSession{gate: gate, svc: be.Tasks(sess), board: board.New(sess.User.ID), close: be.Close}
	if err := bs.board.Load(cmd.Context(), bs.svc); err != nil {
		_ = bs.close()
		return nil, bs.fail(err)
	}
	return bs, nil
}

// fail turns a backend 401 into a signed-out state.
func (bs *boardSession) fail(err error) error {
	if errors.Is(err, session.ErrUnauthorized) {
		_ = bs.gate.Expire()
		return fmt.Errorf("%w; run `taskboard login`", session.ErrSessionExpired)
	}
	return err
}

func (bs *boardSession) run(cmd *cobra.Command, app *App, op board.Op) (board.Result, error) {
	res := board.Run(cmd.Context(), bs.svc, op)
	err := bs.board.Apply(res)
	app.logger.WithField("op", op.Kind.String()).WithField("task", op.Task.ID).WithError(err).Debug("board op")
	if res.Err != nil {
		return res, bs.fail(res.Err)
	}
	// The write landed even if the refetch failed; report success.
	return res, nil
}

func formError(b *board.Board) error {
	title, due := b.FieldErrors()
	msgs := []string{}
	for _, m := range []string{title, due} {
		if m != "" {
			msgs = append(msgs, m)
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func newTasksListCmd(app *App) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks in creation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			want := strings.ToLower(strings.TrimSpace(status))
			switch want {
			case "", "all", "open", "done":
			default:
				return writeErr(cmd, fmt.Errorf("invalid --status %q (want all|open|done)", status))
			}
			bs, err := openBoard(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer bs.close()

			out := []model.Task{}
			for _, t := range bs.board.Tasks() {
				if (want == "open" && t.Completed) || (want == "done" && !t.Completed) {
					continue
				}
				out = append(out, t)
			}
			return writeOut(cmd, app, map[string]any{"data": out})
		},
	}
	cmd.Flags().StringVar(&status, "status", "all", "Filter: all|open|done")
	return cmd
}

func newTasksAddCmd(app *App) *cobra.Command {
	var title, due, priority string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a task",
		Example: strings.TrimSpace(`
taskboard tasks add --title "File brief" --due 2024-05-01 --priority High
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prio, err := model.ParsePriority(priority)
			if err != nil {
				return writeErr(cmd, err)
			}
			bs, err := openBoard(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer bs.close()

			b := bs.board
			b.SetTitle(title)
			b.SetDueDate(due)
			b.SetPriority(prio)
			op, err := b.Submit()
			if err != nil {
				if errors.Is(err, board.ErrInvalidForm) {
					return writeErr(cmd, formError(b))
				}
				return writeErr(cmd, err)
			}
			res, err := bs.run(cmd, app, op)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": res.Created})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Task title (required)")
	cmd.Flags().StringVar(&due, "due", "", "Due date YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&priority, "priority", "Medium", "Low|Medium|High")
	return cmd
}

func newTasksEditCmd(app *App) *cobra.Command {
	var title, due, priority string

	cmd := &cobra.Command{
		Use:   "edit <task-id>",
		Short: "Change a task's title, due date or priority (completion is kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			bs, err := openBoard(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer bs.close()

			b := bs.board
			if err := b.Edit(id); err != nil {
				return writeErr(cmd, errNotFound("task", id))
			}
			if cmd.Flags().Changed("title") {
				b.SetTitle(title)
			}
			if cmd.Flags().Changed("due") {
				b.SetDueDate(due)
			}
			if cmd.Flags().Changed("priority") {
				prio, err := model.ParsePriority(priority)
				if err != nil {
					return writeErr(cmd, err)
				}
				b.SetPriority(prio)
			}
			op, err := b.Submit()
			if err != nil {
				if errors.Is(err, board.ErrInvalidForm) {
					return writeErr(cmd, formError(b))
				}
				return writeErr(cmd, err)
			}
			if _, err := bs.run(cmd, app, op); err != nil {
				return writeErr(cmd, err)
			}
			t, ok := b.Task(id)
			if !ok {
				t = op.Task
			}
			return writeOut(cmd, app, map[string]any{"data": t})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&due, "due", "", "New due date YYYY-MM-DD")
	cmd.Flags().StringVar(&priority, "priority", "", "New priority Low|Medium|High")
	return cmd
}

func newTasksToggleCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <task-id>",
		Short: "Flip a task's completed flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			bs, err := openBoard(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer bs.close()

			op, err := bs.board.Toggle(id)
			if err != nil {
				return writeErr(cmd, errNotFound("task", id))
			}
			if _, err := bs.run(cmd, app, op); err != nil {
				return writeErr(cmd, err)
			}
			t, ok := bs.board.Task(id)
			if !ok {
				t = op.Task
			}
			return writeOut(cmd, app, map[string]any{"data": t})
		},
	}
}

func newTasksDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <task-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			bs, err := openBoard(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer bs.close()

			op, err := bs.board.Delete(id)
			if err != nil {
				return writeErr(cmd, errNotFound("task", id))
			}
			if _, err := bs.run(cmd, app, op); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"id": id, "deleted": true}})
		},
	}
}
