package board

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"taskboard/internal/model"
)

// memService is an in-memory task collection with per-call failure injection.
type memService struct {
	tasks  []model.Task
	nextID int

	failWrite error
	failList  error
	calls     []string
}

func (m *memService) ListTasks(_ context.Context, userID string) ([]model.Task, error) {
	m.calls = append(m.calls, "list")
	if m.failList != nil {
		return nil, m.failList
	}
	// Return every record so the board's own ownership filter is exercised.
	return slices.Clone(m.tasks), nil
}

func (m *memService) CreateTask(_ context.Context, t model.Task) (model.Task, error) {
	m.calls = append(m.calls, "create")
	if m.failWrite != nil {
		return model.Task{}, m.failWrite
	}
	m.nextID++
	t.ID = fmt.Sprintf("t%d", m.nextID)
	m.tasks = append(m.tasks, t)
	return t, nil
}

func (m *memService) find(userID, id string) int {
	return slices.IndexFunc(m.tasks, func(t model.Task) bool { return t.ID == id && t.UserID == userID })
}

func (m *memService) ReplaceTask(_ context.Context, t model.Task) (model.Task, error) {
	m.calls = append(m.calls, "replace")
	if m.failWrite != nil {
		return model.Task{}, m.failWrite
	}
	i := m.find(t.UserID, t.ID)
	if i < 0 {
		return model.Task{}, errors.New("not found")
	}
	m.tasks[i] = t
	return t, nil
}

func (m *memService) SetCompleted(_ context.Context, userID, id string, completed bool) (model.Task, error) {
	m.calls = append(m.calls, "toggle")
	if m.failWrite != nil {
		return model.Task{}, m.failWrite
	}
	i := m.find(userID, id)
	if i < 0 {
		return model.Task{}, errors.New("not found")
	}
	m.tasks[i].Completed = completed
	return m.tasks[i], nil
}

func (m *memService) DeleteTask(_ context.Context, userID, id string) error {
	m.calls = append(m.calls, "delete")
	if m.failWrite != nil {
		return m.failWrite
	}
	i := m.find(userID, id)
	if i < 0 {
		return errors.New("not found")
	}
	m.tasks = slices.Delete(m.tasks, i, i+1)
	return nil
}

func fill(b *Board, title, due string, p model.Priority) {
	b.SetTitle(title)
	b.SetDueDate(due)
	b.SetPriority(p)
}

func submit(t *testing.T, ctx context.Context, b *Board, svc Service) {
	t.Helper()
	op, err := b.Submit()
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := b.Do(ctx, svc, op); err != nil {
		t.Fatalf("do %v: %v", op.Kind, err)
	}
}

func TestBoard_CreateFileBrief(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		due      string
		priority model.Priority
		want     model.Task
	}{
		{
			name:     "high",
			title:    "File brief",
			due:      "2024-05-01",
			priority: model.PriorityHigh,
			want:     model.Task{ID: "t1", UserID: "u1", Title: "File brief", DueDate: "2024-05-01", Priority: model.PriorityHigh},
		},
		{
			name:     "medium",
			title:    "Call client",
			due:      "2024-06-15",
			priority: model.PriorityMedium,
			want:     model.Task{ID: "t1", UserID: "u1", Title: "Call client", DueDate: "2024-06-15", Priority: model.PriorityMedium},
		},
		{
			name:     "low",
			title:    "Tidy desk",
			due:      "2024-12-31",
			priority: model.PriorityLow,
			want:     model.Task{ID: "t1", UserID: "u1", Title: "Tidy desk", DueDate: "2024-12-31", Priority: model.PriorityLow},
		},
		{
			name:     "trims surrounding spaces",
			title:    "  File brief  ",
			due:      " 2024-05-01 ",
			priority: model.PriorityHigh,
			want:     model.Task{ID: "t1", UserID: "u1", Title: "File brief", DueDate: "2024-05-01", Priority: model.PriorityHigh},
		},
		{
			name:     "past due date",
			title:    "Overdue filing",
			due:      "1999-01-01",
			priority: model.PriorityLow,
			want:     model.Task{ID: "t1", UserID: "u1", Title: "Overdue filing", DueDate: "1999-01-01", Priority: model.PriorityLow},
		},
		{
			name:     "unset priority defaults to medium",
			title:    "Plain",
			due:      "2024-05-01",
			priority: "",
			want:     model.Task{ID: "t1", UserID: "u1", Title: "Plain", DueDate: "2024-05-01", Priority: model.PriorityMedium},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			svc := &memService{}
			b := New("u1")
			if err := b.Load(ctx, svc); err != nil {
				t.Fatalf("load: %v", err)
			}

			fill(b, tt.title, tt.due, tt.priority)
			submit(t, ctx, b, svc)

			got := b.Tasks()
			if len(got) != 1 {
				t.Fatalf("expected 1 task, got %d", len(got))
			}
			if got[0] != tt.want {
				t.Fatalf("got %+v, want %+v", got[0], tt.want)
			}
			if svc.tasks[0] != tt.want {
				t.Fatalf("stored %+v, want %+v", svc.tasks[0], tt.want)
			}
			if f := b.Form(); f.Title != "" || f.DueDate != "" || f.Priority != model.PriorityMedium {
				t.Fatalf("expected form reset after create, got %+v", f)
			}
			if !slices.Equal(svc.calls, []string{"list", "create", "list"}) {
				t.Fatalf("expected refetch after create, calls=%v", svc.calls)
			}
		})
	}
}

func TestBoard_EditPreservesIDAndCompleted(t *testing.T) {
	ctx := context.Background()
	svc := &memService{tasks: []model.Task{
		{ID: "t1", UserID: "u1", Title: "Old", DueDate: "2024-01-01", Priority: model.PriorityLow, Completed: true},
		{ID: "t2", UserID: "u1", Title: "Other", DueDate: "2024-01-02", Priority: model.PriorityLow},
	}}
	b := New("u1")
	if err := b.Load(ctx, svc); err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := b.Edit("t1"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if f := b.Form(); f.Title != "Old" || f.DueDate != "2024-01-01" || f.Priority != model.PriorityLow {
		t.Fatalf("expected form pre-populated, got %+v", f)
	}
	fill(b, "New", "2025-02-03", model.PriorityHigh)
	submit(t, ctx, b, svc)

	if b.Editing() {
		t.Fatalf("expected edit mode cleared")
	}
	got, ok := b.Task("t1")
	if !ok {
		t.Fatalf("t1 missing after edit")
	}
	want := model.Task{ID: "t1", UserID: "u1", Title: "New", DueDate: "2025-02-03", Priority: model.PriorityHigh, Completed: true}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if other, _ := b.Task("t2"); other.Title != "Other" {
		t.Fatalf("unrelated task changed: %+v", other)
	}
}

func TestBoard_ToggleFlipsOnlyTarget(t *testing.T) {
	ctx := context.Background()
	svc := &memService{tasks: []model.Task{
		{ID: "t1", UserID: "u1", Title: "A", DueDate: "2024-01-01", Priority: model.PriorityLow},
		{ID: "t2", UserID: "u1", Title: "B", DueDate: "2024-01-01", Priority: model.PriorityLow},
	}}
	b := New("u1")
	if err := b.Load(ctx, svc); err != nil {
		t.Fatalf("load: %v", err)
	}

	op, err := b.Toggle("t2")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := b.Do(ctx, svc, op); err != nil {
		t.Fatalf("do: %v", err)
	}
	t1, _ := b.Task("t1")
	t2, _ := b.Task("t2")
	if t1.Completed || !t2.Completed {
		t.Fatalf("expected only t2 completed: t1=%v t2=%v", t1.Completed, t2.Completed)
	}
}

func TestBoard_DeleteRemovesOnlyTarget(t *testing.T) {
	ctx := context.Background()
	svc := &memService{tasks: []model.Task{
		{ID: "t1", UserID: "u1", Title: "A", DueDate: "2024-01-01", Priority: model.PriorityLow},
		{ID: "t2", UserID: "u1", Title: "B", DueDate: "2024-01-01", Priority: model.PriorityLow},
	}}
	b := New("u1")
	if err := b.Load(ctx, svc); err != nil {
		t.Fatalf("load: %v", err)
	}
	op, err := b.Delete("t1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := b.Do(ctx, svc, op); err != nil {
		t.Fatalf("do: %v", err)
	}
	got := b.Tasks()
	if len(got) != 1 || got[0].ID != "t2" {
		t.Fatalf("expected only t2 left, got %+v", got)
	}
}

func TestBoard_ValidationBlocksSubmit(t *testing.T) {
	b := New("u1")
	if b.CanSubmit() {
		t.Fatalf("expected CanSubmit=false on empty form")
	}

	cases := []struct {
		name, title, due string
		wantTitle, wantDue string
	}{
		{"both empty", "", "", model.ErrTitleRequired.Error(), model.ErrDueDateRequired.Error()},
		{"blank title", "   ", "2024-05-01", model.ErrTitleRequired.Error(), ""},
		{"bad date", "Pay rent", "May 1st", "", model.ErrDueDateFormat.Error()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := New("u1")
			fill(b, tc.title, tc.due, model.PriorityMedium)
			if _, err := b.Submit(); !errors.Is(err, ErrInvalidForm) {
				t.Fatalf("expected ErrInvalidForm, got %v", err)
			}
			title, due := b.FieldErrors()
			if title != tc.wantTitle || due != tc.wantDue {
				t.Fatalf("field errors = (%q, %q), want (%q, %q)", title, due, tc.wantTitle, tc.wantDue)
			}
			if b.Busy() || len(b.Tasks()) != 0 {
				t.Fatalf("invalid submit must not start a write")
			}
		})
	}
}

func TestBoard_WriteFailureRollsBackAndKeepsForm(t *testing.T) {
	ctx := context.Background()
	svc := &memService{tasks: []model.Task{
		{ID: "t1", UserID: "u1", Title: "A", DueDate: "2024-01-01", Priority: model.PriorityLow},
	}}
	b := New("u1")
	if err := b.Load(ctx, svc); err != nil {
		t.Fatalf("load: %v", err)
	}
	before := b.Tasks()

	svc.failWrite = errors.New("connection reset by peer")
	fill(b, "New", "2024-06-01", model.PriorityHigh)
	op, err := b.Submit()
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(b.Tasks()) != 2 {
		t.Fatalf("expected optimistic append before the write")
	}

	if err := b.Do(ctx, svc, op); err == nil {
		t.Fatalf("expected write error")
	}
	if !slices.Equal(b.Tasks(), before) {
		t.Fatalf("expected rollback, got %+v", b.Tasks())
	}
	if b.Err() != "connection reset by peer" {
		t.Fatalf("expected verbatim transport error, got %q", b.Err())
	}
	if f := b.Form(); f.Title != "New" {
		t.Fatalf("expected form kept for retry, got %+v", f)
	}

	// Toggle and delete roll back too.
	op, _ = b.Toggle("t1")
	_ = b.Do(ctx, svc, op)
	op, _ = b.Delete("t1")
	_ = b.Do(ctx, svc, op)
	if !slices.Equal(b.Tasks(), before) {
		t.Fatalf("expected rollback after toggle/delete, got %+v", b.Tasks())
	}
}

func TestBoard_RefetchFailureKeepsWrite(t *testing.T) {
	ctx := context.Background()
	svc := &memService{}
	b := New("u1")
	if err := b.Load(ctx, svc); err != nil {
		t.Fatalf("load: %v", err)
	}
	svc.failList = errors.New("timeout")

	fill(b, "Draft", "2024-06-01", model.PriorityLow)
	op, _ := b.Submit()
	if err := b.Do(ctx, svc, op); err == nil {
		t.Fatalf("expected refresh error")
	}
	if len(b.Tasks()) != 1 || b.Tasks()[0].Title != "Draft" {
		t.Fatalf("expected optimistic task kept, got %+v", b.Tasks())
	}
	if b.Err() != "refresh failed: timeout" {
		t.Fatalf("unexpected err %q", b.Err())
	}
	if b.Form().Title != "" {
		t.Fatalf("expected form reset since the write landed")
	}
}

func TestBoard_DropsForeignTasks(t *testing.T) {
	svc := &memService{tasks: []model.Task{
		{ID: "t1", UserID: "u1", Title: "Mine", DueDate: "2024-01-01", Priority: model.PriorityLow},
		{ID: "t2", UserID: "u2", Title: "Theirs", DueDate: "2024-01-01", Priority: model.PriorityLow},
	}}
	b := New("u1")
	if err := b.Load(context.Background(), svc); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := b.Tasks(); len(got) != 1 || got[0].ID != "t1" {
		t.Fatalf("expected only own tasks, got %+v", got)
	}
}

func TestBoard_BusyRejectsSecondOp(t *testing.T) {
	svc := &memService{tasks: []model.Task{
		{ID: "t1", UserID: "u1", Title: "A", DueDate: "2024-01-01", Priority: model.PriorityLow},
	}}
	b := New("u1")
	if err := b.Load(context.Background(), svc); err != nil {
		t.Fatalf("load: %v", err)
	}
	op, err := b.Toggle("t1")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if _, err := b.Delete("t1"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	fill(b, "x", "2024-01-01", model.PriorityLow)
	if b.CanSubmit() {
		t.Fatalf("expected CanSubmit=false while busy")
	}

	res := Run(context.Background(), svc, op)
	if err := b.Apply(res); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if b.Busy() {
		t.Fatalf("expected idle after apply")
	}
}

func TestBoard_CancelEditAndUnknownTask(t *testing.T) {
	svc := &memService{tasks: []model.Task{
		{ID: "t1", UserID: "u1", Title: "A", DueDate: "2024-01-01", Priority: model.PriorityHigh},
	}}
	b := New("u1")
	if err := b.Load(context.Background(), svc); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := b.Edit("nope"); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}
	if err := b.Edit("t1"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	b.CancelEdit()
	if b.Editing() || b.Form().Title != "" {
		t.Fatalf("expected compose mode with empty form, got %+v", b.Form())
	}
}

func TestBoard_IgnoresResultsFromOtherBoards(t *testing.T) {
	ctx := context.Background()
	svc := &memService{tasks: []model.Task{
		{ID: "a1", UserID: "ua", Title: "Alice's", DueDate: "2024-01-01", Priority: model.PriorityLow},
		{ID: "b1", UserID: "ub", Title: "Bob's", DueDate: "2024-01-02", Priority: model.PriorityHigh},
	}}

	alice := New("ua")
	if err := alice.Load(ctx, svc); err != nil {
		t.Fatalf("load alice: %v", err)
	}
	stale, err := alice.Toggle("a1")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	svc.failWrite = errors.New("boom")
	res := Run(ctx, svc, stale)
	svc.failWrite = nil

	tests := []struct {
		name   string
		userID string
	}{
		{name: "another user", userID: "ub"},
		{name: "same user, new board", userID: "ua"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(tt.userID)
			if err := b.Load(ctx, svc); err != nil {
				t.Fatalf("load: %v", err)
			}
			before := b.Tasks()
			op, err := b.Refresh()
			if err != nil {
				t.Fatalf("refresh: %v", err)
			}

			if b.Owns(res) {
				t.Fatalf("board must not own a result it did not start")
			}
			if err := b.Apply(res); err != nil {
				t.Fatalf("expected foreign result to be ignored, got %v", err)
			}
			if !slices.Equal(b.Tasks(), before) {
				t.Fatalf("foreign result changed tasks: %+v, want %+v", b.Tasks(), before)
			}
			if !b.Busy() || b.Err() != "" {
				t.Fatalf("foreign result must not settle this board's op (busy=%v err=%q)", b.Busy(), b.Err())
			}

			if err := b.Apply(Run(ctx, svc, op)); err != nil {
				t.Fatalf("apply own result: %v", err)
			}
			if b.Busy() {
				t.Fatalf("expected idle after own result")
			}
		})
	}
}
