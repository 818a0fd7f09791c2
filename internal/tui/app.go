package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"taskboard/internal/board"
	"taskboard/internal/model"
	"taskboard/internal/session"
	"taskboard/internal/store"
)

type view int

const (
	viewLogin view = iota
	viewBoard
)

type modalKind int

const (
	modalNone modalKind = iota
	modalConfirmDelete
	modalHelp
)

type formField int

const (
	fieldTitle formField = iota
	fieldDueDate
	fieldPriority
)

// ServiceFunc returns the task service for a signed-in session.
type ServiceFunc func(model.Session) board.Service

type loginDoneMsg struct {
	sess model.Session
	err  error
}

type boardResultMsg struct {
	res board.Result
}

type logoutDoneMsg struct {
	err error
}

type appModel struct {
	ctx      context.Context
	gate     *session.Gate
	services ServiceFunc
	log      *log.Logger

	width  int
	height int

	view  view
	theme string

	// Login view.
	email      textinput.Model
	password   textinput.Model
	loginFocus int
	loginErr   string
	loggingIn  bool

	// Board view.
	sess      model.Session
	board     *board.Board
	svc       board.Service
	tasks     list.Model
	formOpen  bool
	formFocus formField
	title     textinput.Model
	dueDate   textinput.Model

	modal           modalKind
	confirmFocus    confirmModalFocus
	pendingDeleteID string

	flash string
}

func newAppModel(ctx context.Context, gate *session.Gate, services ServiceFunc, logger *log.Logger) appModel {
	if logger == nil {
		logger = log.New()
	}
	m := appModel{
		ctx:      ctx,
		gate:     gate,
		services: services,
		log:      logger,
		theme:    gate.Theme(),
		tasks:    newTaskList(),
	}
	applyTheme(m.theme)

	m.email = textinput.New()
	m.email.Placeholder = "you@example.com"
	m.email.Prompt = "Email    "
	m.email.CharLimit = 254
	m.password = textinput.New()
	m.password.Prompt = "Password "
	m.password.EchoMode = textinput.EchoPassword
	m.password.EchoCharacter = '•'

	m.title = textinput.New()
	m.title.Prompt = "Title    "
	m.title.Placeholder = "What needs doing?"
	m.dueDate = textinput.New()
	m.dueDate.Prompt = "Due date "
	m.dueDate.Placeholder = model.DateLayout
	m.dueDate.CharLimit = len(model.DateLayout)

	sess, err := gate.Current()
	switch {
	case err == nil:
		m.enterBoard(sess)
	case errors.Is(err, session.ErrSessionExpired):
		m.enterLogin(err.Error())
	default:
		m.enterLogin("")
	}
	return m
}

func (m *appModel) enterLogin(msg string) {
	m.view = viewLogin
	m.sess = model.Session{}
	m.board = nil
	m.svc = nil
	m.formOpen = false
	m.modal = modalNone
	m.tasks.SetItems(nil)
	m.loginErr = msg
	m.password.SetValue("")
	m.loginFocus = 0
	if strings.TrimSpace(m.email.Value()) != "" {
		m.loginFocus = 1
	}
	m.focusLogin()
}

func (m *appModel) enterBoard(sess model.Session) {
	m.view = viewBoard
	m.sess = sess
	m.board = board.New(sess.User.ID)
	m.svc = m.services(sess)
	m.loginErr = ""
	m.email.Blur()
	m.password.Blur()
}

func (m *appModel) focusLogin() {
	if m.loginFocus == 0 {
		m.email.Focus()
		m.password.Blur()
		return
	}
	m.email.Blur()
	m.password.Focus()
}

func (m appModel) Init() tea.Cmd {
	if m.view == viewBoard {
		return m.refreshCmd()
	}
	return textinput.Blink
}

func (m *appModel) refreshCmd() tea.Cmd {
	op, err := m.board.Refresh()
	if err != nil {
		return nil
	}
	return m.runCmd(op)
}

func (m *appModel) runCmd(op board.Op) tea.Cmd {
	ctx, svc := m.ctx, m.svc
	m.log.WithFields(log.Fields{"op": op.Kind.String(), "task": op.Task.ID}).Debug("board op")
	return func() tea.Msg {
		return boardResultMsg{res: board.Run(ctx, svc, op)}
	}
}

func (m *appModel) loginCmd() tea.Cmd {
	ctx, gate := m.ctx, m.gate
	email, password := m.email.Value(), m.password.Value()
	return func() tea.Msg {
		sess, err := gate.Login(ctx, email, password)
		return loginDoneMsg{sess: sess, err: err}
	}
}

func (m *appModel) logoutCmd() tea.Cmd {
	ctx, gate := m.ctx, m.gate
	return func() tea.Msg {
		return logoutDoneMsg{err: gate.Logout(ctx)}
	}
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeList()
		return m, nil

	case loginDoneMsg:
		m.loggingIn = false
		if msg.err != nil {
			m.loginErr = msg.err.Error()
			m.log.WithError(msg.err).Info("login failed")
			return m, nil
		}
		m.log.WithField("user", msg.sess.User.ID).Info("signed in")
		m.enterBoard(msg.sess)
		m.resizeList()
		return m, m.refreshCmd()

	case boardResultMsg:
		return m.applyResult(msg.res)

	case logoutDoneMsg:
		if msg.err != nil {
			m.log.WithError(msg.err).Warn("logout revocation failed")
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.view == viewLogin {
			return m.updateLogin(msg)
		}
		return m.updateBoard(msg)
	}
	return m, nil
}

func (m appModel) applyResult(res board.Result) (tea.Model, tea.Cmd) {
	if m.board == nil || !m.board.Owns(res) {
		// Signed out (or signed in again) while the op was in flight.
		return m, nil
	}
	wasEditing := m.board.Editing()
	err := m.board.Apply(res)
	m.syncList()
	if res.Err == nil && (res.Op.Kind == board.OpCreate || res.Op.Kind == board.OpReplace) {
		m.closeForm()
	}
	if wasEditing && !m.board.Editing() && m.formOpen {
		// A refetch dropped the task being edited.
		m.closeForm()
		m.flash = board.ErrUnknownTask.Error()
	}
	if err == nil {
		return m, nil
	}
	m.log.WithError(err).WithField("op", res.Op.Kind.String()).Warn("board op failed")
	if errors.Is(err, session.ErrUnauthorized) {
		if xerr := m.gate.Expire(); xerr != nil {
			m.log.WithError(xerr).Warn("clear session")
		}
		m.enterLogin(session.ErrSessionExpired.Error())
		return m, textinput.Blink
	}
	return m, nil
}

func (m *appModel) syncList() {
	idx := m.tasks.Index()
	m.tasks.SetItems(taskItems(m.board.Tasks()))
	if n := len(m.tasks.Items()); n > 0 {
		if idx >= n {
			idx = n - 1
		}
		m.tasks.Select(idx)
	}
}

func (m *appModel) resizeList() {
	h := m.height - 8
	if m.formOpen {
		h -= 5
	}
	if h < 3 {
		h = 3
	}
	w := m.width - 2
	if w < 20 {
		w = 20
	}
	m.tasks.SetSize(w, h)
}

func (m appModel) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m, tea.Quit
	case "tab", "down", "shift+tab", "up":
		m.loginFocus = 1 - m.loginFocus
		m.focusLogin()
		return m, nil
	case "enter":
		if m.loginFocus == 0 {
			m.loginFocus = 1
			m.focusLogin()
			return m, nil
		}
		if !m.canLogin() {
			return m, nil
		}
		m.loginErr = ""
		m.loggingIn = true
		return m, m.loginCmd()
	}

	var cmd tea.Cmd
	if m.loginFocus == 0 {
		m.email, cmd = m.email.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

// canLogin mirrors a disabled submit button.
func (m appModel) canLogin() bool {
	return !m.loggingIn && !m.gate.LoggingIn() &&
		strings.TrimSpace(m.email.Value()) != "" &&
		strings.TrimSpace(m.password.Value()) != ""
}

func (m appModel) selectedTask() (model.Task, bool) {
	it, ok := m.tasks.SelectedItem().(taskItem)
	if !ok {
		return model.Task{}, false
	}
	return it.task, true
}

func (m appModel) updateBoard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.modal {
	case modalConfirmDelete:
		return m.updateConfirmDelete(msg)
	case modalHelp:
		switch msg.String() {
		case "esc", "?", "q", "enter":
			m.modal = modalNone
		}
		return m, nil
	}
	if m.formOpen {
		return m.updateForm(msg)
	}

	m.flash = ""
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "?":
		m.modal = modalHelp
		return m, nil
	case "a":
		m.board.CancelEdit()
		m.openForm()
		return m, textinput.Blink
	case "e":
		t, ok := m.selectedTask()
		if !ok || t.ID == "" {
			return m, nil
		}
		if err := m.board.Edit(t.ID); err != nil {
			m.flash = err.Error()
			return m, nil
		}
		m.openForm()
		return m, textinput.Blink
	case " ", "x":
		t, ok := m.selectedTask()
		if !ok || t.ID == "" {
			return m, nil
		}
		op, err := m.board.Toggle(t.ID)
		if err != nil {
			m.flash = err.Error()
			return m, nil
		}
		m.syncList()
		return m, m.runCmd(op)
	case "d":
		t, ok := m.selectedTask()
		if !ok || t.ID == "" {
			return m, nil
		}
		m.modal = modalConfirmDelete
		m.confirmFocus = confirmFocusCancel
		m.pendingDeleteID = t.ID
		return m, nil
	case "r":
		op, err := m.board.Refresh()
		if err != nil {
			m.flash = err.Error()
			return m, nil
		}
		return m, m.runCmd(op)
	case "t":
		theme, err := m.gate.SetTheme(store.ToggleTheme(m.theme))
		if err != nil {
			m.flash = err.Error()
			return m, nil
		}
		m.theme = theme
		applyTheme(theme)
		return m, nil
	case "L":
		m.log.WithField("user", m.sess.User.ID).Info("signing out")
		m.enterLogin("")
		return m, m.logoutCmd()
	}

	var cmd tea.Cmd
	m.tasks, cmd = m.tasks.Update(msg)
	return m, cmd
}

func (m appModel) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "n":
		m.modal = modalNone
		m.pendingDeleteID = ""
		return m, nil
	case "tab", "shift+tab", "left", "right":
		m.confirmFocus = m.confirmFocus.toggle()
		return m, nil
	case "y":
		m.confirmFocus = confirmFocusConfirm
		return m.confirmDelete()
	case "enter":
		if m.confirmFocus == confirmFocusConfirm {
			return m.confirmDelete()
		}
		m.modal = modalNone
		m.pendingDeleteID = ""
		return m, nil
	}
	return m, nil
}

func (m appModel) confirmDelete() (tea.Model, tea.Cmd) {
	id := m.pendingDeleteID
	m.modal = modalNone
	m.pendingDeleteID = ""
	op, err := m.board.Delete(id)
	if err != nil {
		m.flash = err.Error()
		return m, nil
	}
	m.syncList()
	return m, m.runCmd(op)
}

func (m *appModel) openForm() {
	f := m.board.Form()
	m.title.SetValue(f.Title)
	m.dueDate.SetValue(f.DueDate)
	m.title.CursorEnd()
	m.dueDate.CursorEnd()
	m.formOpen = true
	m.formFocus = fieldTitle
	m.focusForm()
	m.resizeList()
}

func (m *appModel) closeForm() {
	m.formOpen = false
	m.title.Blur()
	m.dueDate.Blur()
	m.resizeList()
}

func (m *appModel) focusForm() {
	m.title.Blur()
	m.dueDate.Blur()
	switch m.formFocus {
	case fieldTitle:
		m.title.Focus()
	case fieldDueDate:
		m.dueDate.Focus()
	}
}

func (m appModel) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.board.CancelEdit()
		m.closeForm()
		return m, nil
	case "tab", "down":
		m.formFocus = (m.formFocus + 1) % 3
		m.focusForm()
		return m, nil
	case "shift+tab", "up":
		m.formFocus = (m.formFocus + 2) % 3
		m.focusForm()
		return m, nil
	case "enter":
		op, err := m.board.Submit()
		if errors.Is(err, board.ErrUnknownTask) {
			// The edited task is gone; the board already left edit mode.
			m.closeForm()
			m.syncList()
			m.flash = err.Error()
			return m, nil
		}
		if err != nil {
			// Field errors render inline; ErrBusy just waits for the current op.
			return m, nil
		}
		m.syncList()
		return m, m.runCmd(op)
	}

	if m.formFocus == fieldPriority {
		p := m.board.Form().Priority
		switch msg.String() {
		case "right", "l", " ":
			m.board.SetPriority(p.Next())
		case "left", "h":
			m.board.SetPriority(p.Next().Next())
		case "1", "L":
			m.board.SetPriority(model.PriorityLow)
		case "2", "M":
			m.board.SetPriority(model.PriorityMedium)
		case "3", "H":
			m.board.SetPriority(model.PriorityHigh)
		}
		return m, nil
	}

	var cmd tea.Cmd
	if m.formFocus == fieldTitle {
		m.title, cmd = m.title.Update(msg)
		m.board.SetTitle(m.title.Value())
	} else {
		m.dueDate, cmd = m.dueDate.Update(msg)
		m.board.SetDueDate(m.dueDate.Value())
	}
	return m, cmd
}

