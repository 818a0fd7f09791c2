package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"

	"taskboard/internal/model"
)

type taskItem struct {
	task model.Task
}

func (i taskItem) FilterValue() string { return i.task.Title }
func (i taskItem) Title() string       { return i.task.Title }

func priorityStyle(p model.Priority) lipgloss.Style {
	st := lipgloss.NewStyle()
	switch p {
	case model.PriorityHigh:
		return st.Foreground(colorPriorityHigh).Bold(true)
	case model.PriorityMedium:
		return st.Foreground(colorPriorityMedium)
	default:
		return st.Foreground(colorPriorityLow)
	}
}

// taskDelegate renders one task per line: checkbox, title, due date, priority.
type taskDelegate struct{}

func (d taskDelegate) Height() int                             { return 1 }
func (d taskDelegate) Spacing() int                            { return 0 }
func (d taskDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d taskDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	contentW := m.Width()
	it, ok := item.(taskItem)
	if !ok || contentW < 4 {
		fmt.Fprint(w, "")
		return
	}
	t := it.task

	box := glyphCheckbox(t.Completed)
	if t.Completed {
		box = lipgloss.NewStyle().Foreground(colorDone).Render(box)
	}
	meta := fmt.Sprintf("%s  %s", t.DueDate, priorityStyle(t.Priority).Render(fmt.Sprintf("%-6s", t.Priority)))
	metaW := xansi.StringWidth(meta)

	title := t.Title
	if t.ID == "" {
		title += " (saving…)"
	}
	titleSt := lipgloss.NewStyle()
	if t.Completed {
		titleSt = faintIfDark(titleSt.Strikethrough(true))
	}

	// "> ☐ title ....... 2024-05-01  High"
	lead := "  "
	if index == m.Index() {
		lead = "> "
	}
	titleW := contentW - xansi.StringWidth(lead) - xansi.StringWidth(glyphCheckbox(false)) - 1 - metaW - 2
	if titleW < 1 {
		titleW = 1
	}
	if xansi.StringWidth(title) > titleW {
		title = xansi.Truncate(title, titleW, "…")
	}
	title = titleSt.Render(title) + strings.Repeat(" ", titleW-xansi.StringWidth(title))

	line := lead + box + " " + title + "  " + meta
	if index == m.Index() {
		line = lipgloss.NewStyle().Background(colorSelectedBg).Foreground(colorSelectedFg).Render(normalizePane(line, contentW, 1))
	}
	fmt.Fprint(w, line)
}

func newTaskList() list.Model {
	l := list.New(nil, taskDelegate{}, 0, 0)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetShowPagination(true)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()
	l.SetStatusBarItemName("task", "tasks")
	return l
}

func taskItems(tasks []model.Task) []list.Item {
	out := make([]list.Item, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskItem{task: t})
	}
	return out
}
