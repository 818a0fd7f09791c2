package board

import (
	"context"
	"fmt"

	"taskboard/internal/model"
)

type OpKind int

const (
	OpRefresh OpKind = iota
	OpCreate
	OpReplace
	OpToggle
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpRefresh:
		return "refresh"
	case OpCreate:
		return "create"
	case OpReplace:
		return "update"
	case OpToggle:
		return "toggle"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", int(k))
	}
}

// Op is one pending board mutation. Task carries the payload: the new record for
// create/replace, the flipped record for toggle, the removed record for delete.
type Op struct {
	Kind   OpKind
	UserID string
	Task   model.Task

	board    uint64
	snapshot []model.Task
}

type Result struct {
	Op Op

	// Created holds the record the collection returned for OpCreate.
	Created model.Task

	// Tasks is the refetched list (valid when Err and RefreshErr are nil).
	Tasks []model.Task

	// Err is the write error; the board rolls back when it is set.
	Err error

	// RefreshErr is set when the write succeeded but the follow-up fetch failed.
	RefreshErr error
}

// Run performs op against svc and, if the write succeeds, refetches the full list.
// It does not touch the Board and is safe to call from any goroutine.
func Run(ctx context.Context, svc Service, op Op) Result {
	res := Result{Op: op}

	var err error
	switch op.Kind {
	case OpRefresh:
	case OpCreate:
		res.Created, err = svc.CreateTask(ctx, op.Task)
	case OpReplace:
		_, err = svc.ReplaceTask(ctx, op.Task)
	case OpToggle:
		_, err = svc.SetCompleted(ctx, op.UserID, op.Task.ID, op.Task.Completed)
	case OpDelete:
		err = svc.DeleteTask(ctx, op.UserID, op.Task.ID)
	default:
		err = fmt.Errorf("unknown board op %v", op.Kind)
	}
	if err != nil {
		res.Err = err
		return res
	}

	tasks, err := svc.ListTasks(ctx, op.UserID)
	if err != nil {
		if op.Kind == OpRefresh {
			res.Err = err
		} else {
			res.RefreshErr = err
		}
		return res
	}
	res.Tasks = tasks
	return res
}
