// Package board is the Task Board: the signed-in user's task list plus the add/edit form.
//
// Mutations are two-phase so interactive front ends never block their update loop:
// a method such as Submit validates, patches the list optimistically and returns an Op;
// Run performs the write and the refetch (off the UI goroutine); Apply folds the Result
// back in, rolling back to the pre-write snapshot if the write failed.
package board

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"taskboard/internal/model"
)

var (
	ErrBusy        = errors.New("another change is still being saved")
	ErrInvalidForm = errors.New("form has errors")
	ErrUnknownTask = errors.New("task not found on board")
)

// Service is the task collection as seen by the board.
type Service interface {
	ListTasks(ctx context.Context, userID string) ([]model.Task, error)
	CreateTask(ctx context.Context, t model.Task) (model.Task, error)
	ReplaceTask(ctx context.Context, t model.Task) (model.Task, error)
	SetCompleted(ctx context.Context, userID, id string, completed bool) (model.Task, error)
	DeleteTask(ctx context.Context, userID, id string) error
}

type Form struct {
	Title    string
	DueDate  string
	Priority model.Priority
}

func emptyForm() Form { return Form{Priority: model.PriorityMedium} }

// boardSerial numbers boards so a Result can only land on the board that started its Op.
var boardSerial atomic.Uint64

type Board struct {
	serial uint64
	userID string
	tasks  []model.Task

	form      Form
	editingID string

	titleErr   string
	dueDateErr string
	err        string

	busy bool
}

func New(userID string) *Board {
	return &Board{serial: boardSerial.Add(1), userID: userID, form: emptyForm()}
}

func (b *Board) UserID() string { return b.userID }

// Tasks returns a copy of the cached list.
func (b *Board) Tasks() []model.Task { return slices.Clone(b.tasks) }

func (b *Board) Task(id string) (model.Task, bool) {
	i := b.indexOf(id)
	if i < 0 {
		return model.Task{}, false
	}
	return b.tasks[i], true
}

func (b *Board) Form() Form        { return b.form }
func (b *Board) EditingID() string { return b.editingID }
func (b *Board) Editing() bool     { return b.editingID != "" }
func (b *Board) Busy() bool        { return b.busy }

// Err is the last transport error, shown verbatim.
func (b *Board) Err() string { return b.err }

func (b *Board) FieldErrors() (title, dueDate string) { return b.titleErr, b.dueDateErr }

func (b *Board) SetTitle(s string) {
	b.form.Title = s
	if strings.TrimSpace(s) != "" {
		b.titleErr = ""
	}
}

func (b *Board) SetDueDate(s string) {
	b.form.DueDate = s
	if strings.TrimSpace(s) != "" {
		b.dueDateErr = ""
	}
}

func (b *Board) SetPriority(p model.Priority) {
	if p.Valid() {
		b.form.Priority = p
	}
}

// CanSubmit mirrors a disabled submit button: both required fields present and nothing in flight.
func (b *Board) CanSubmit() bool {
	return !b.busy && strings.TrimSpace(b.form.Title) != "" && strings.TrimSpace(b.form.DueDate) != ""
}

// Edit switches the form into edit mode for id, pre-populated from the cached task.
func (b *Board) Edit(id string) error {
	t, ok := b.Task(id)
	if !ok {
		return ErrUnknownTask
	}
	b.editingID = t.ID
	b.form = Form{Title: t.Title, DueDate: t.DueDate, Priority: t.Priority}
	if !b.form.Priority.Valid() {
		b.form.Priority = model.PriorityMedium
	}
	b.titleErr, b.dueDateErr = "", ""
	return nil
}

// CancelEdit returns the form to compose mode with empty fields.
func (b *Board) CancelEdit() {
	b.editingID = ""
	b.resetForm()
}

func (b *Board) resetForm() {
	b.form = emptyForm()
	b.titleErr, b.dueDateErr = "", ""
}

func (b *Board) indexOf(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(b.tasks, func(t model.Task) bool { return t.ID == id })
}

func (b *Board) begin(kind OpKind, task model.Task) Op {
	b.busy = true
	b.err = ""
	return Op{Kind: kind, UserID: b.userID, Task: task, board: b.serial, snapshot: slices.Clone(b.tasks)}
}

// Refresh starts a full refetch.
func (b *Board) Refresh() (Op, error) {
	if b.busy {
		return Op{}, ErrBusy
	}
	return b.begin(OpRefresh, model.Task{}), nil
}

// Submit validates the form and starts a create (compose mode) or full replace (edit mode).
// Validation failures set the inline field errors and return ErrInvalidForm.
func (b *Board) Submit() (Op, error) {
	if b.busy {
		return Op{}, ErrBusy
	}
	b.titleErr, b.dueDateErr = "", ""
	if err := model.ValidateTitle(b.form.Title); err != nil {
		b.titleErr = err.Error()
	}
	if err := model.ValidateDueDate(b.form.DueDate); err != nil {
		b.dueDateErr = err.Error()
	}
	if b.titleErr != "" || b.dueDateErr != "" {
		return Op{}, ErrInvalidForm
	}

	task := model.Task{
		UserID:   b.userID,
		Title:    strings.TrimSpace(b.form.Title),
		DueDate:  strings.TrimSpace(b.form.DueDate),
		Priority: b.form.Priority,
	}
	if !task.Priority.Valid() {
		task.Priority = model.PriorityMedium
	}

	if b.editingID == "" {
		op := b.begin(OpCreate, task)
		b.tasks = append(b.tasks, task)
		return op, nil
	}

	i := b.indexOf(b.editingID)
	if i < 0 {
		// The task vanished in a refetch while being edited.
		b.CancelEdit()
		return Op{}, ErrUnknownTask
	}
	task.ID = b.editingID
	task.Completed = b.tasks[i].Completed
	op := b.begin(OpReplace, task)
	b.tasks[i] = task
	return op, nil
}

// Toggle starts flipping the completed flag of id.
func (b *Board) Toggle(id string) (Op, error) {
	if b.busy {
		return Op{}, ErrBusy
	}
	i := b.indexOf(id)
	if i < 0 {
		return Op{}, ErrUnknownTask
	}
	task := b.tasks[i]
	task.Completed = !task.Completed
	op := b.begin(OpToggle, task)
	b.tasks[i] = task
	return op, nil
}

// Delete starts removing id.
func (b *Board) Delete(id string) (Op, error) {
	if b.busy {
		return Op{}, ErrBusy
	}
	i := b.indexOf(id)
	if i < 0 {
		return Op{}, ErrUnknownTask
	}
	op := b.begin(OpDelete, b.tasks[i])
	b.tasks = slices.Delete(b.tasks, i, i+1)
	if b.editingID == id {
		b.CancelEdit()
	}
	return op, nil
}

// Apply folds a Result into the board and returns the error the user should see, if any.
// A Result from another board (an earlier session, or another user) is ignored.
func (b *Board) Apply(res Result) error {
	if !b.Owns(res) {
		return nil
	}
	b.busy = false

	if res.Err != nil {
		b.tasks = res.Op.snapshot
		b.err = res.Err.Error()
		return res.Err
	}

	switch res.Op.Kind {
	case OpCreate:
		b.resetForm()
	case OpReplace:
		b.editingID = ""
		b.resetForm()
	}

	if res.RefreshErr != nil {
		// The write landed; keep the optimistic list until the next successful refetch.
		b.err = fmt.Sprintf("refresh failed: %v", res.RefreshErr)
		return res.RefreshErr
	}

	b.tasks = ownedBy(b.userID, res.Tasks)
	b.err = ""
	if b.editingID != "" && b.indexOf(b.editingID) < 0 {
		b.CancelEdit()
	}
	return nil
}

// Owns reports whether res was produced by an Op this board started.
func (b *Board) Owns(res Result) bool {
	return res.Op.board == b.serial && res.Op.UserID == b.userID
}

// Do runs op synchronously: Run followed by Apply.
func (b *Board) Do(ctx context.Context, svc Service, op Op) error {
	return b.Apply(Run(ctx, svc, op))
}

// Load performs the initial fetch.
func (b *Board) Load(ctx context.Context, svc Service) error {
	op, err := b.Refresh()
	if err != nil {
		return err
	}
	return b.Do(ctx, svc, op)
}

func ownedBy(userID string, tasks []model.Task) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}
