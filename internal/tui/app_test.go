package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	xansi "github.com/charmbracelet/x/ansi"

	"taskboard/internal/board"
	"taskboard/internal/model"
	"taskboard/internal/session"
	"taskboard/internal/store"
)

type fakeAuth struct{}

func (fakeAuth) Login(_ context.Context, email, password string) (model.Session, error) {
	if email != "a@b.com" || password != "x" {
		return model.Session{}, session.ErrInvalidCredentials
	}
	return model.Session{User: model.User{ID: "u1", FirstName: "Ada", Email: email}, Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (fakeAuth) Logout(context.Context, string) error { return nil }

type memTasks struct {
	tasks        []model.Task
	n            int
	unauthorized bool
}

func (m *memTasks) deny() error {
	if m.unauthorized {
		return session.ErrUnauthorized
	}
	return nil
}

func (m *memTasks) ListTasks(context.Context, string) ([]model.Task, error) {
	if err := m.deny(); err != nil {
		return nil, err
	}
	return slices.Clone(m.tasks), nil
}

func (m *memTasks) CreateTask(_ context.Context, t model.Task) (model.Task, error) {
	if err := m.deny(); err != nil {
		return model.Task{}, err
	}
	m.n++
	t.ID = fmt.Sprintf("t%d", m.n)
	m.tasks = append(m.tasks, t)
	return t, nil
}

func (m *memTasks) ReplaceTask(_ context.Context, t model.Task) (model.Task, error) {
	if err := m.deny(); err != nil {
		return model.Task{}, err
	}
	for i := range m.tasks {
		if m.tasks[i].ID == t.ID {
			m.tasks[i] = t
			return t, nil
		}
	}
	return model.Task{}, errors.New("not found")
}

func (m *memTasks) SetCompleted(_ context.Context, _ string, id string, completed bool) (model.Task, error) {
	if err := m.deny(); err != nil {
		return model.Task{}, err
	}
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			m.tasks[i].Completed = completed
			return m.tasks[i], nil
		}
	}
	return model.Task{}, errors.New("not found")
}

func (m *memTasks) DeleteTask(_ context.Context, _ string, id string) error {
	if err := m.deny(); err != nil {
		return err
	}
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			m.tasks = slices.Delete(m.tasks, i, i+1)
			return nil
		}
	}
	return errors.New("not found")
}

func newTestModel(t *testing.T, svc *memTasks) (appModel, *session.Gate) {
	t.Helper()
	gate := session.NewGate(fakeAuth{}, store.Store{Dir: t.TempDir()})
	m := newAppModel(context.Background(), gate, func(model.Session) board.Service { return svc }, nil)
	mAny, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return mAny.(appModel), gate
}

// send feeds msg through Update and then drains the returned command chain synchronously,
// skipping blink/batch commands that would block.
func send(t *testing.T, m appModel, msg tea.Msg) appModel {
	t.Helper()
	mAny, cmd := m.Update(msg)
	m = mAny.(appModel)
	for cmd != nil {
		out := cmd()
		switch out.(type) {
		case loginDoneMsg, boardResultMsg, logoutDoneMsg:
			mAny, cmd = m.Update(out)
			m = mAny.(appModel)
		default:
			cmd = nil
		}
	}
	return m
}

func typeText(t *testing.T, m appModel, s string) appModel {
	t.Helper()
	for _, r := range s {
		m = send(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func key(k tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: k} }

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func signIn(t *testing.T, m appModel) appModel {
	t.Helper()
	m = typeText(t, m, "a@b.com")
	m = send(t, m, key(tea.KeyEnter))
	m = typeText(t, m, "x")
	return send(t, m, key(tea.KeyEnter))
}

func TestApp_StartsAtLoginWithoutSession(t *testing.T) {
	m, _ := newTestModel(t, &memTasks{})
	if m.view != viewLogin {
		t.Fatalf("expected login view, got %v", m.view)
	}
	if m.canLogin() {
		t.Fatalf("expected submit disabled with empty fields")
	}
}

func TestApp_LoginFailureShowsInlineError(t *testing.T) {
	m, _ := newTestModel(t, &memTasks{})
	m = typeText(t, m, "a@b.com")
	m = send(t, m, key(tea.KeyTab))
	m = typeText(t, m, "wrong")
	m = send(t, m, key(tea.KeyEnter))

	if m.view != viewLogin {
		t.Fatalf("expected to stay on login view")
	}
	if m.loginErr != "Invalid email or password" {
		t.Fatalf("unexpected login error %q", m.loginErr)
	}
	if !strings.Contains(xansi.Strip(m.View()), "Invalid email or password") {
		t.Fatalf("expected error rendered in view")
	}
}

func TestApp_LoginShowsBoardAndMasksPassword(t *testing.T) {
	svc := &memTasks{tasks: []model.Task{{ID: "t1", UserID: "u1", Title: "File brief", DueDate: "2024-05-01", Priority: model.PriorityHigh}}}
	m, gate := newTestModel(t, svc)

	m = typeText(t, m, "a@b.com")
	m = send(t, m, key(tea.KeyEnter))
	m = typeText(t, m, "x")
	if strings.Contains(xansi.Strip(m.View()), "Password x") {
		t.Fatalf("password must not be echoed")
	}
	m = send(t, m, key(tea.KeyEnter))

	if m.view != viewBoard {
		t.Fatalf("expected board view after login, got %v (err=%q)", m.view, m.loginErr)
	}
	if _, err := gate.Current(); err != nil {
		t.Fatalf("expected cached session: %v", err)
	}
	if got := len(m.tasks.Items()); got != 1 {
		t.Fatalf("expected 1 task listed, got %d", got)
	}
	if !strings.Contains(xansi.Strip(m.View()), "File brief") {
		t.Fatalf("expected task title in view")
	}
}

func TestApp_ComposeCreatesTask(t *testing.T) {
	svc := &memTasks{}
	m, _ := newTestModel(t, svc)
	m = signIn(t, m)

	m = send(t, m, runes("a"))
	if !m.formOpen || m.board.Editing() {
		t.Fatalf("expected compose form open")
	}
	m = typeText(t, m, "File brief")
	m = send(t, m, key(tea.KeyTab))
	m = typeText(t, m, "2024-05-01")
	m = send(t, m, key(tea.KeyTab))
	m = send(t, m, key(tea.KeyRight)) // Medium -> High
	m = send(t, m, key(tea.KeyEnter))

	if m.formOpen {
		t.Fatalf("expected form closed after save")
	}
	if len(svc.tasks) != 1 {
		t.Fatalf("expected 1 stored task, got %d", len(svc.tasks))
	}
	want := model.Task{ID: "t1", UserID: "u1", Title: "File brief", DueDate: "2024-05-01", Priority: model.PriorityHigh}
	if svc.tasks[0] != want {
		t.Fatalf("got %+v, want %+v", svc.tasks[0], want)
	}
}

func TestApp_ComposeValidationErrorsInline(t *testing.T) {
	m, _ := newTestModel(t, &memTasks{})
	m = signIn(t, m)
	m = send(t, m, runes("a"))
	m = send(t, m, key(tea.KeyEnter))

	if !m.formOpen {
		t.Fatalf("expected form to stay open")
	}
	out := xansi.Strip(m.View())
	if !strings.Contains(out, "Title is required") || !strings.Contains(out, "Due date is required") {
		t.Fatalf("expected inline field errors, got:\n%s", out)
	}
}

func TestApp_ToggleEditAndDelete(t *testing.T) {
	svc := &memTasks{tasks: []model.Task{
		{ID: "t1", UserID: "u1", Title: "A", DueDate: "2024-01-01", Priority: model.PriorityLow},
		{ID: "t2", UserID: "u1", Title: "B", DueDate: "2024-01-02", Priority: model.PriorityLow},
	}}
	m, _ := newTestModel(t, svc)
	m = signIn(t, m)

	m = send(t, m, runes(" "))
	if !svc.tasks[0].Completed || svc.tasks[1].Completed {
		t.Fatalf("expected only first task completed: %+v", svc.tasks)
	}

	m = send(t, m, runes("e"))
	if !m.formOpen || m.board.EditingID() != "t1" {
		t.Fatalf("expected edit form for t1")
	}
	m = typeText(t, m, "!")
	m = send(t, m, key(tea.KeyEnter))
	if svc.tasks[0].Title != "A!" || !svc.tasks[0].Completed {
		t.Fatalf("expected title replaced and completed kept: %+v", svc.tasks[0])
	}

	m = send(t, m, runes("d"))
	if m.modal != modalConfirmDelete {
		t.Fatalf("expected confirm modal")
	}
	// Default focus is Cancel; enter closes without deleting.
	m = send(t, m, key(tea.KeyEnter))
	if len(svc.tasks) != 2 || m.modal != modalNone {
		t.Fatalf("expected cancel to keep tasks")
	}

	m = send(t, m, runes("d"))
	m = send(t, m, key(tea.KeyTab))
	m = send(t, m, key(tea.KeyEnter))
	if len(svc.tasks) != 1 || svc.tasks[0].ID != "t2" {
		t.Fatalf("expected t1 deleted, got %+v", svc.tasks)
	}
	if len(m.tasks.Items()) != 1 {
		t.Fatalf("expected list refreshed")
	}
}

func TestApp_ThemeTogglePersists(t *testing.T) {
	m, gate := newTestModel(t, &memTasks{})
	m = signIn(t, m)
	if m.theme != store.ThemeLight {
		t.Fatalf("expected light default, got %q", m.theme)
	}
	m = send(t, m, runes("t"))
	if m.theme != store.ThemeDark || gate.Theme() != store.ThemeDark {
		t.Fatalf("expected dark theme persisted, got %q/%q", m.theme, gate.Theme())
	}
	applyTheme(store.ThemeLight)
}

func TestApp_UnauthorizedReturnsToLogin(t *testing.T) {
	svc := &memTasks{}
	m, gate := newTestModel(t, svc)
	m = signIn(t, m)

	svc.unauthorized = true
	m = send(t, m, runes("r"))
	if m.view != viewLogin {
		t.Fatalf("expected login view after 401")
	}
	if _, err := gate.Current(); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("expected session cleared, got %v", err)
	}
}

func TestApp_LogoutClearsSession(t *testing.T) {
	m, gate := newTestModel(t, &memTasks{})
	m = signIn(t, m)
	m = send(t, m, runes("L"))
	if m.view != viewLogin {
		t.Fatalf("expected login view after logout")
	}
	if _, err := gate.Current(); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("expected no session, got %v", err)
	}
}

func TestApp_ResumesCachedSession(t *testing.T) {
	svc := &memTasks{}
	m, gate := newTestModel(t, svc)
	_ = signIn(t, m)

	m2 := newAppModel(context.Background(), gate, func(model.Session) board.Service { return svc }, nil)
	if m2.view != viewBoard {
		t.Fatalf("expected board view from cached session")
	}
	if m2.Init() == nil {
		t.Fatalf("expected initial refresh cmd")
	}
}

func TestApp_HelpModalRendersMarkdown(t *testing.T) {
	m, _ := newTestModel(t, &memTasks{})
	m = signIn(t, m)
	m = send(t, m, runes("?"))
	if m.modal != modalHelp {
		t.Fatalf("expected help modal")
	}
	if !strings.Contains(xansi.Strip(m.View()), "toggle") {
		t.Fatalf("expected help text in view")
	}
	m = send(t, m, key(tea.KeyEsc))
	if m.modal != modalNone {
		t.Fatalf("expected help closed")
	}
}

func TestApp_IgnoresResultFromAnotherBoard(t *testing.T) {
	svc := &memTasks{tasks: []model.Task{
		{ID: "t1", UserID: "u1", Title: "Mine", DueDate: "2024-01-01", Priority: model.PriorityLow},
	}}
	m, _ := newTestModel(t, svc)
	m = signIn(t, m)

	other := &memTasks{tasks: []model.Task{
		{ID: "x1", UserID: "u2", Title: "Someone else's", DueDate: "2024-01-01", Priority: model.PriorityHigh},
	}}
	foreign := board.New("u2")
	if err := foreign.Load(context.Background(), other); err != nil {
		t.Fatalf("load foreign board: %v", err)
	}
	op, err := foreign.Toggle("x1")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	other.unauthorized = true
	m = send(t, m, boardResultMsg{res: board.Run(context.Background(), other, op)})

	if m.view != viewBoard {
		t.Fatalf("a foreign 401 must not sign this user out")
	}
	if got := m.board.Tasks(); len(got) != 1 || got[0].ID != "t1" {
		t.Fatalf("expected own tasks only, got %+v", got)
	}
	if out := xansi.Strip(m.View()); strings.Contains(out, "Someone else's") {
		t.Fatalf("foreign task rendered:\n%s", out)
	}
}

func TestApp_IgnoresResultFromEarlierSignIn(t *testing.T) {
	svc := &memTasks{tasks: []model.Task{
		{ID: "t1", UserID: "u1", Title: "A", DueDate: "2024-01-01", Priority: model.PriorityLow},
	}}
	m, _ := newTestModel(t, svc)
	m = signIn(t, m)

	// Start a toggle and sign out before its result arrives.
	op, err := m.board.Toggle("t1")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	m = send(t, m, runes("L"))
	// The email is kept; only the password is asked for again.
	m = typeText(t, m, "x")
	m = send(t, m, key(tea.KeyEnter))
	if m.view != viewBoard {
		t.Fatalf("expected to be signed in again")
	}

	res := board.Run(context.Background(), svc, op)
	svc.tasks[0].Completed = false
	m = send(t, m, boardResultMsg{res: res})

	if m.board.Busy() {
		t.Fatalf("stale result must not touch the new board")
	}
	if got := m.board.Tasks(); len(got) != 1 || got[0].Completed {
		t.Fatalf("expected new board untouched, got %+v", got)
	}
}

func TestApp_EditedTaskVanishingClosesForm(t *testing.T) {
	svc := &memTasks{tasks: []model.Task{
		{ID: "t1", UserID: "u1", Title: "A", DueDate: "2024-01-01", Priority: model.PriorityLow},
	}}
	m, _ := newTestModel(t, svc)
	m = signIn(t, m)

	m = send(t, m, runes("e"))
	if !m.formOpen || m.board.EditingID() != "t1" {
		t.Fatalf("expected edit form for t1")
	}

	// Deleted elsewhere; the next refetch drops it.
	svc.tasks = nil
	cmd := m.refreshCmd()
	m = send(t, m, cmd())

	if m.formOpen || m.board.Editing() {
		t.Fatalf("expected form closed once the edited task is gone")
	}
	if m.flash != board.ErrUnknownTask.Error() {
		t.Fatalf("expected flash %q, got %q", board.ErrUnknownTask.Error(), m.flash)
	}

	// Enter on the board must not resubmit the stale text as a new task.
	m = send(t, m, key(tea.KeyEnter))
	if len(svc.tasks) != 0 {
		t.Fatalf("stale edit created a task: %+v", svc.tasks)
	}
}
