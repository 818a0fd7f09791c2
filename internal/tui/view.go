package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"taskboard/internal/model"
)

func (m appModel) View() string {
	w := m.width
	if w <= 0 {
		w = 80
	}
	var out string
	switch m.view {
	case viewLogin:
		out = m.viewLogin(w)
	default:
		out = m.viewBoard(w)
	}

	switch m.modal {
	case modalConfirmDelete:
		title := m.pendingDeleteID
		if t, ok := m.board.Task(m.pendingDeleteID); ok {
			title = t.Title
		}
		box := renderConfirmModal(w, "Delete task", fmt.Sprintf("Delete %q?", title), "Delete", "Cancel", m.confirmFocus)
		return placeCentered(m.width, m.height, box)
	case modalHelp:
		box := renderModalBox(w, "Help", renderMarkdown(helpMarkdown, modalBodyWidth(w)))
		return placeCentered(m.width, m.height, box)
	}
	return out
}

func (m appModel) viewLogin(w int) string {
	bodyW := modalBodyWidth(w)
	lines := []string{
		styleMuted().Render("Sign in to see your tasks."),
		"",
		renderInputLine(bodyW, m.email.View()),
		renderInputLine(bodyW, m.password.View()),
		"",
	}
	switch {
	case m.loggingIn:
		lines = append(lines, styleMuted().Render("Signing in…"))
	case m.loginErr != "":
		lines = append(lines, styleError().Render(m.loginErr))
	default:
		submit := "enter: sign in"
		if !m.canLogin() {
			submit = styleMuted().Render(submit)
		}
		lines = append(lines, submit)
	}
	lines = append(lines, "", styleMuted().Render("tab: switch field   esc: quit"))
	return placeCentered(m.width, m.height, renderModalBox(w, "Task board", strings.Join(lines, "\n")))
}

func (m appModel) viewBoard(w int) string {
	var b strings.Builder

	who := m.sess.User.DisplayName()
	header := styleTitle().Render("Tasks") + styleMuted().Render("  "+glyphBullet()+" "+who)
	if m.board.Busy() {
		header += styleMuted().Render("  saving…")
	}
	b.WriteString(header + "\n")
	b.WriteString(styleMuted().Render(strings.Repeat(glyphHRule(), max(w-2, 1))) + "\n")

	if len(m.tasks.Items()) == 0 {
		b.WriteString(styleMuted().Render("No tasks yet. Press a to add one.") + "\n")
	} else {
		b.WriteString(m.tasks.View() + "\n")
	}

	if m.formOpen {
		b.WriteString("\n" + m.viewForm(w))
	}

	if e := m.board.Err(); e != "" {
		b.WriteString("\n" + styleError().Render(e))
	}
	if m.flash != "" {
		b.WriteString("\n" + styleError().Render(m.flash))
	}
	b.WriteString("\n" + styleMuted().Render("a add  e edit  space toggle  d delete  r reload  t theme  L sign out  ? help  q quit"))
	return b.String()
}

func (m appModel) viewForm(w int) string {
	bodyW := modalBodyWidth(w)
	heading := "New task"
	if m.board.Editing() {
		heading = "Edit task"
	}

	titleErr, dueErr := m.board.FieldErrors()
	lines := []string{styleTitle().Render(heading), renderInputLine(bodyW, m.title.View())}
	if titleErr != "" {
		lines = append(lines, styleError().Render("  "+titleErr))
	}
	lines = append(lines, renderInputLine(bodyW, m.dueDate.View()))
	if dueErr != "" {
		lines = append(lines, styleError().Render("  "+dueErr))
	}
	lines = append(lines, m.viewPriority())

	submit := "enter: save   esc: cancel"
	if !m.board.CanSubmit() {
		submit = styleMuted().Render(submit)
	}
	lines = append(lines, submit)
	return strings.Join(lines, "\n") + "\n"
}

func (m appModel) viewPriority() string {
	cur := m.board.Form().Priority
	parts := make([]string, 0, len(model.Priorities))
	for _, p := range model.Priorities {
		label := string(p)
		if p == cur {
			label = priorityStyle(p).Render("[" + label + "]")
		} else {
			label = styleMuted().Render(" " + label + " ")
		}
		parts = append(parts, label)
	}
	prompt := " Priority "
	if m.formFocus == fieldPriority {
		prompt = lipgloss.NewStyle().Foreground(colorAccent).Render(">Priority ")
	}
	return prompt + strings.Join(parts, " ")
}
